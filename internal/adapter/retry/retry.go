package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/adapter"
)

// Ensure RetryAdapter implements Provider.
var _ adapter.Provider = (*RetryAdapter)(nil)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 500 * time.Millisecond
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds configuration for the RetryAdapter.
type Config struct {
	Provider  adapter.Provider
	Attempts  int           // total attempts to establish a stream (default: 3)
	BaseDelay time.Duration // delay after the first failure, doubled each time (default: 500ms)
	Sleep     SleepFunc     // defaults to a timer honouring ctx
	Logger    *zap.Logger
	// OnFailure is called after every failed attempt.
	OnFailure func(provider string, attempt int, err error)
}

// RetryAdapter retries stream establishment with exponential backoff. Once a
// stream is open its fragments pass through untouched; mid-stream failures
// are never retried.
type RetryAdapter struct {
	inner     adapter.Provider
	attempts  int
	baseDelay time.Duration
	sleep     SleepFunc
	logger    *zap.Logger
	onFailure func(string, int, error)
}

// New creates a new RetryAdapter.
func New(cfg Config) (*RetryAdapter, error) {
	if cfg.Provider == nil {
		return nil, errors.New("retry: provider required")
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryAdapter{
		inner:     cfg.Provider,
		attempts:  attempts,
		baseDelay: baseDelay,
		sleep:     sleep,
		logger:    logger,
		onFailure: cfg.OnFailure,
	}, nil
}

func (r *RetryAdapter) Name() string { return r.inner.Name() }

// Backoff returns the wait after failed attempt i (0-indexed).
func (r *RetryAdapter) Backoff(attempt int) time.Duration {
	return r.baseDelay << attempt
}

// OpenStream tries to establish a stream up to the configured number of
// attempts. Every failure, including a non-retryable one, is reported as an
// *adapter.UnavailableError wrapping the last cause.
func (r *RetryAdapter) OpenStream(ctx context.Context, req adapter.Request) (adapter.ChunkStream, error) {
	var lastErr error
	attempt := 0
	for ; attempt < r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		stream, err := r.inner.OpenStream(ctx, req)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("stream established after retry",
					zap.String("provider", r.inner.Name()), zap.Int("attempt", attempt+1))
			}
			return stream, nil
		}
		lastErr = err
		if r.onFailure != nil {
			r.onFailure(r.inner.Name(), attempt, err)
		}

		if !IsRetryable(ctx, err) {
			r.logger.Warn("stream open failed, not retrying",
				zap.String("provider", r.inner.Name()), zap.Int("attempt", attempt+1), zap.Error(err))
			attempt++
			break
		}
		if attempt == r.attempts-1 {
			r.logger.Warn("stream open failed, attempts exhausted",
				zap.String("provider", r.inner.Name()), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		delay := r.Backoff(attempt)
		r.logger.Warn("stream open failed, retrying",
			zap.String("provider", r.inner.Name()), zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay), zap.Error(err))
		if err := r.sleep(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			attempt++
			break
		}
	}
	return nil, &adapter.UnavailableError{Provider: r.inner.Name(), Attempts: attempt, Err: lastErr}
}

// IsRetryable reports whether a failed stream open is worth another attempt.
// Caller cancellation and client-side upstream rejections are final; network
// failures, rate limits and server errors are transient.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *adapter.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusUnprocessableEntity:
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
