package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Middleware wraps HTTP handlers with per-client rate limiting.
type Middleware struct {
	limiter  *Limiter
	enabled  bool
	logger   *zap.Logger
	exempt   map[string]bool
	onReject func()
}

// MiddlewareOption customises a Middleware.
type MiddlewareOption func(*Middleware)

// WithExemptPaths skips limiting for exact request paths.
func WithExemptPaths(paths ...string) MiddlewareOption {
	return func(m *Middleware) {
		for _, p := range paths {
			m.exempt[p] = true
		}
	}
}

// WithRejectHook is called for every rejected request.
func WithRejectHook(fn func()) MiddlewareOption {
	return func(m *Middleware) { m.onReject = fn }
}

// NewMiddleware creates a new rate limiting middleware.
func NewMiddleware(limiter *Limiter, enabled bool, logger *zap.Logger, opts ...MiddlewareOption) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Middleware{limiter: limiter, enabled: enabled, logger: logger, exempt: map[string]bool{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap applies rate limiting to an HTTP handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if !m.enabled || m.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key := ClientKey(r)
		d := m.limiter.Allow(r.Context(), key)
		addRateLimitHeaders(w, d)

		if !d.Allowed {
			if m.onReject != nil {
				m.onReject()
			}
			m.logger.Warn("rate limit exceeded", zap.String("client", key), zap.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey identifies the caller: the first X-Forwarded-For entry, else the
// remote host, else "anon".
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if r.RemoteAddr == "" {
		return "anon"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// addRateLimitHeaders adds the X-RateLimit-* headers to the response.
func addRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}
