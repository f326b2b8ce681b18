package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// errDraining rejects streams that arrive after shutdown began.
var errDraining = errors.New("server shutting down")

// streamTracker counts running stream handlers. Once draining starts no new
// stream is admitted, so the count only falls.
type streamTracker struct {
	mu       sync.Mutex
	active   int
	draining bool
	idle     chan struct{}
}

func (t *streamTracker) enter() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draining {
		return false
	}
	t.active++
	return true
}

func (t *streamTracker) leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active--
	if t.draining && t.active == 0 {
		close(t.idle)
	}
}

// drain stops admitting streams and waits for the running ones to return.
func (t *streamTracker) drain(ctx context.Context) error {
	t.mu.Lock()
	if !t.draining {
		t.draining = true
		t.idle = make(chan struct{})
		if t.active == 0 {
			close(t.idle)
		}
	}
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *streamTracker) running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Shutdown stops srv and waits for in-flight streams to persist. If ctx
// expires before srv is idle, cancelRequests is called; it must cancel the
// context returned by srv.BaseContext so running streams fail and save what
// they delivered. Streams then get up to drain to finish. The history store
// can be closed once Shutdown returns.
func (s *Server) Shutdown(ctx context.Context, srv *http.Server, cancelRequests context.CancelFunc, drain time.Duration) error {
	err := srv.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("grace period expired, cancelling in-flight streams",
			zap.Int("streams", s.streams.running()), zap.Error(err))
		if cancelRequests != nil {
			cancelRequests()
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if derr := s.streams.drain(drainCtx); derr != nil {
		s.logger.Error("streams still running after drain",
			zap.Int("streams", s.streams.running()), zap.Error(derr))
		return errors.Join(err, fmt.Errorf("drain streams: %w", derr))
	}
	return err
}
