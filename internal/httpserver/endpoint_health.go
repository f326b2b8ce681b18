package httpserver

import (
	"io"
	"net/http"
	"time"

	"github.com/tokligence/streamledger/internal/health"
	"github.com/tokligence/streamledger/internal/httpserver/protocol"
	"github.com/tokligence/streamledger/internal/metrics"
	"github.com/tokligence/streamledger/internal/version"
)

// DatabaseComponent is the health target name of the history store.
const DatabaseComponent = "database"

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(e.server.HandleHealth)},
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	Provider  string    `json:"provider,omitempty"`
}

// HandleHealth reports liveness. The service itself is always "ok"; the
// database field reflects a live ping of the history store.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "unknown",
		Version:   version.Info(),
		Provider:  s.provider,
	}
	if s.health != nil {
		status := s.health.Check(r.Context())
		if comp, ok := status.Component(DatabaseComponent); ok {
			if comp.Status == health.StatusUnhealthy {
				resp.Database = "disconnected"
			} else {
				resp.Database = "connected"
			}
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type metricsEndpoint struct {
	server *Server
}

func newMetricsEndpoint(server *Server) protocol.Endpoint {
	return &metricsEndpoint{server: server}
}

func (e *metricsEndpoint) Name() string { return "metrics" }

func (e *metricsEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/metrics", Handler: http.HandlerFunc(e.server.HandleMetrics)},
	}
}

// HandleMetrics serves the Prometheus text exposition.
func (s *Server) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, metrics.FormatPrometheus(s.metrics.GetSnapshot()))
}
