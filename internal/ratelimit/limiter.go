package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time // end of the current window
}

// Store defines the interface for rate limit storage backends.
type Store interface {
	// Allow counts one request for key in the fixed window of the given size
	// and reports whether it fits within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)

	// Reset forgets the window for key.
	Reset(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// Limiter applies a fixed-window request limit per client key using a
// pluggable storage backend.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// Config holds configuration for the rate limiter.
type Config struct {
	// Storage backend (optional, defaults to MemoryStore)
	Store Store

	Requests int           // requests allowed per window
	Window   time.Duration // window length
}

// DefaultConfig returns 60 requests per minute.
func DefaultConfig() Config {
	return Config{Requests: 60, Window: time.Minute}
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{store: store, limit: cfg.Requests, window: cfg.Window}
}

// Allow counts a request for key. Storage errors fail open.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	d, err := l.store.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, Reset: time.Now().Add(l.window)}
	}
	return d
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int { return l.limit }

// Close stops the limiter and releases resources.
func (l *Limiter) Close() error {
	return l.store.Close()
}
