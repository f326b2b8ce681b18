// Package relay forwards generated fragments to a client while accumulating
// them, and records every exchange exactly once whether the stream completes
// or fails.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/adapter"
	"github.com/tokligence/streamledger/internal/history"
)

// ErrStreamInterrupted marks a failure of an established stream.
var ErrStreamInterrupted = errors.New("stream interrupted")

// DefaultSaveTimeout bounds the persistence step.
const DefaultSaveTimeout = 10 * time.Second

// State is the lifecycle position of one Run.
type State int

const (
	StateStarted State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Opener establishes rendered chunk streams. *adapter.Source implements it.
type Opener interface {
	Open(ctx context.Context, prompt string, f adapter.Format) (adapter.ChunkStream, error)
}

// Saver persists one exchange. history.Store implements it.
type Saver interface {
	Save(ctx context.Context, prompt, response string) (history.Record, error)
}

// Sink delivers a fragment to the client. Send returns only after the
// fragment has been written and flushed.
type Sink interface {
	Send(fragment string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(fragment string) error

func (f SinkFunc) Send(fragment string) error { return f(fragment) }

// Recorder observes relay outcomes.
type Recorder interface {
	StreamStarted()
	FragmentRelayed(bytes int)
	StreamFinished(state State, elapsed time.Duration)
	PersistenceFailed()
}

// InterruptedError is returned when an established stream fails.
// Fragments is the number delivered to the sink before the failure.
type InterruptedError struct {
	Fragments int
	Err       error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("relay: %s after %d fragment(s): %v", ErrStreamInterrupted, e.Fragments, e.Err)
}

func (e *InterruptedError) Unwrap() []error {
	return []error{ErrStreamInterrupted, e.Err}
}

// Result summarises one Run.
type Result struct {
	State     State
	RecordID  uuid.UUID
	Fragments int
	Response  string
	Err       error
}

// Config wires a Relay.
type Config struct {
	Source      Opener
	Store       Saver
	Logger      *zap.Logger
	Recorder    Recorder
	SaveTimeout time.Duration
}

// Relay runs prompt streams. It holds no per-stream state and is safe for
// concurrent use.
type Relay struct {
	source      Opener
	store       Saver
	logger      *zap.Logger
	recorder    Recorder
	saveTimeout time.Duration
}

// New creates a Relay.
func New(cfg Config) (*Relay, error) {
	if cfg.Source == nil {
		return nil, errors.New("relay: source required")
	}
	if cfg.Store == nil {
		return nil, errors.New("relay: store required")
	}
	r := &Relay{
		source:      cfg.Source,
		store:       cfg.Store,
		logger:      cfg.Logger,
		recorder:    cfg.Recorder,
		saveTimeout: cfg.SaveTimeout,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	if r.saveTimeout <= 0 {
		r.saveTimeout = DefaultSaveTimeout
	}
	return r, nil
}

// Run streams the response to prompt into sink, then saves the prompt and
// the exact concatenation of delivered fragments. The save happens once, on
// success and on failure, and is not cancelled with ctx. A streaming error is
// returned after the save attempt; if the save also fails both errors are
// joined.
func (r *Relay) Run(ctx context.Context, prompt string, f adapter.Format, sink Sink) (Result, error) {
	start := time.Now()
	r.recorder.StreamStarted()

	var acc strings.Builder
	res := Result{State: StateStarted}
	streamErr := r.stream(ctx, prompt, f, sink, &acc, &res)
	res.Response = acc.String()
	if streamErr != nil {
		res.State = StateFailed
	} else {
		res.State = StateCompleted
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.saveTimeout)
	rec, saveErr := r.store.Save(saveCtx, prompt, res.Response)
	cancel()
	if saveErr == nil {
		res.RecordID = rec.ID
	} else {
		if !errors.Is(saveErr, history.ErrPersistence) {
			saveErr = &history.PersistenceError{Op: "save", Err: saveErr}
		}
		r.recorder.PersistenceFailed()
		r.logger.Error("failed to persist conversation",
			zap.String("state", res.State.String()),
			zap.Int("fragments", res.Fragments),
			zap.Int("response_bytes", len(res.Response)),
			zap.Error(saveErr))
	}

	elapsed := time.Since(start)
	r.recorder.StreamFinished(res.State, elapsed)

	switch {
	case streamErr != nil && saveErr != nil:
		res.Err = errors.Join(streamErr, saveErr)
	case streamErr != nil:
		res.Err = streamErr
	default:
		res.Err = saveErr
	}

	fields := []zap.Field{
		zap.String("state", res.State.String()),
		zap.Int("fragments", res.Fragments),
		zap.Int("response_bytes", len(res.Response)),
		zap.Duration("elapsed", elapsed),
	}
	if res.RecordID != uuid.Nil {
		fields = append(fields, zap.String("conversation_id", res.RecordID.String()))
	}
	if streamErr != nil {
		r.logger.Warn("stream failed", append(fields, zap.Error(streamErr))...)
	} else {
		r.logger.Info("stream completed", fields...)
	}
	return res, res.Err
}

func (r *Relay) stream(ctx context.Context, prompt string, f adapter.Format, sink Sink, acc *strings.Builder, res *Result) error {
	stream, err := r.source.Open(ctx, prompt, f)
	if err != nil {
		return err
	}
	defer stream.Close()
	res.State = StateStreaming

	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &InterruptedError{Fragments: res.Fragments, Err: err}
		}
		if err := sink.Send(frag); err != nil {
			return &InterruptedError{Fragments: res.Fragments, Err: fmt.Errorf("send fragment: %w", err)}
		}
		acc.WriteString(frag)
		res.Fragments++
		r.recorder.FragmentRelayed(len(frag))
	}
}

type nopRecorder struct{}

func (nopRecorder) StreamStarted()                      {}
func (nopRecorder) FragmentRelayed(int)                 {}
func (nopRecorder) StreamFinished(State, time.Duration) {}
func (nopRecorder) PersistenceFailed()                  {}
