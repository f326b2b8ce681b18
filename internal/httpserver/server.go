package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/adapter"
	"github.com/tokligence/streamledger/internal/health"
	"github.com/tokligence/streamledger/internal/history"
	"github.com/tokligence/streamledger/internal/httpserver/protocol"
	"github.com/tokligence/streamledger/internal/metrics"
	"github.com/tokligence/streamledger/internal/ratelimit"
	"github.com/tokligence/streamledger/internal/relay"
)

const (
	defaultPageLimit = 10
	defaultMaxLimit  = 100
	// MaxPromptRunes bounds the trimmed prompt accepted by POST /stream.
	MaxPromptRunes = 10000
	maxBodyBytes   = 1 << 20
)

// Streamer runs one prompt stream into a sink.
type Streamer interface {
	Run(ctx context.Context, prompt string, f adapter.Format, sink relay.Sink) (relay.Result, error)
}

// HistoryReader is the read side of the conversation store.
type HistoryReader interface {
	Get(ctx context.Context, id uuid.UUID) (history.Record, error)
	List(ctx context.Context, limit, offset int) (history.Page, error)
}

// Config wires a Server.
type Config struct {
	Relay   Streamer
	History HistoryReader
	Health  *health.Checker
	Metrics *metrics.Collector
	// RateLimit is optional; nil disables rate limiting.
	RateLimit *ratelimit.Middleware
	Logger    *zap.Logger

	APIKey             string
	CORSAllowedOrigins []string
	DefaultFormat      adapter.Format
	DefaultPageLimit   int
	MaxPageLimit       int
	Provider           string
}

// Server exposes the streaming and history endpoints.
type Server struct {
	relay     Streamer
	history   HistoryReader
	health    *health.Checker
	metrics   *metrics.Collector
	rateLimit *ratelimit.Middleware
	logger    *zap.Logger
	streams   streamTracker

	apiKey        string
	corsOrigins   []string
	defaultFormat adapter.Format
	pageLimit     int
	maxPageLimit  int
	provider      string
}

// New constructs a Server with the required dependencies.
func New(cfg Config) (*Server, error) {
	if cfg.Relay == nil {
		return nil, errors.New("httpserver: relay required")
	}
	if cfg.History == nil {
		return nil, errors.New("httpserver: history reader required")
	}
	s := &Server{
		relay:         cfg.Relay,
		history:       cfg.History,
		health:        cfg.Health,
		metrics:       cfg.Metrics,
		rateLimit:     cfg.RateLimit,
		logger:        cfg.Logger,
		apiKey:        cfg.APIKey,
		corsOrigins:   cfg.CORSAllowedOrigins,
		defaultFormat: cfg.DefaultFormat,
		pageLimit:     cfg.DefaultPageLimit,
		maxPageLimit:  cfg.MaxPageLimit,
		provider:      cfg.Provider,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector()
	}
	if s.defaultFormat == "" {
		s.defaultFormat = adapter.FormatText
	}
	if s.maxPageLimit <= 0 {
		s.maxPageLimit = defaultMaxLimit
	}
	if s.pageLimit <= 0 {
		s.pageLimit = defaultPageLimit
	}
	if s.pageLimit > s.maxPageLimit {
		s.pageLimit = s.maxPageLimit
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}
	return s, nil
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	names := protocol.Register(r,
		newStreamEndpoint(s),
		newHistoryEndpoint(s),
		newHealthEndpoint(s),
		newMetricsEndpoint(s),
	)
	s.logger.Debug("endpoints registered", zap.Strings("endpoints", names))
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.requireAPIKey)
	if s.rateLimit != nil {
		r.Use(s.rateLimit.Wrap)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

// echoRequestID returns the request id assigned by middleware.RequestID.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			s.metrics.RecordRequest(route, status, elapsed)
			s.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
