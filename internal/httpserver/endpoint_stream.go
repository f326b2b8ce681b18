package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/adapter"
	"github.com/tokligence/streamledger/internal/httpserver/protocol"
)

type streamEndpoint struct {
	server *Server
}

func newStreamEndpoint(server *Server) protocol.Endpoint {
	return &streamEndpoint{server: server}
}

func (e *streamEndpoint) Name() string { return "stream" }

func (e *streamEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/stream", Handler: http.HandlerFunc(e.server.HandleStream)},
	}
}

// StreamRequest is the body of POST /stream.
type StreamRequest struct {
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
}

// HandleStream relays the response to a prompt as it is generated. Headers
// are committed with the first fragment, so a failure before any output is
// reported as a JSON error while a later one aborts the connection.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !s.streams.enter() {
		s.respondError(w, http.StatusServiceUnavailable, errDraining)
		return
	}
	defer s.streams.leave()

	var req StreamRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, fmt.Errorf("invalid request body: %w", err))
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if n := utf8.RuneCountInString(prompt); n == 0 || n > MaxPromptRunes {
		s.respondError(w, http.StatusUnprocessableEntity,
			fmt.Errorf("prompt must be between 1 and %d characters", MaxPromptRunes))
		return
	}
	format := s.defaultFormat
	if req.Format != "" {
		f, err := adapter.ParseFormat(req.Format)
		if err != nil {
			s.respondError(w, http.StatusUnprocessableEntity, err)
			return
		}
		format = f
	}

	sink := newResponseSink(w, format)
	res, err := s.relay.Run(r.Context(), prompt, format, sink)
	if err == nil {
		sink.commit()
		return
	}

	logger := s.logger.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("state", res.State.String()),
		zap.Int("fragments", res.Fragments),
	)
	if sink.started {
		logger.Warn("stream aborted after partial delivery", zap.Error(err))
		panic(http.ErrAbortHandler)
	}
	if r.Context().Err() != nil {
		logger.Info("client went away before first fragment", zap.Error(err))
		return
	}
	logger.Error("stream failed before first fragment", zap.Error(err))
	if errors.Is(err, adapter.ErrUpstreamUnavailable) {
		s.respondError(w, http.StatusServiceUnavailable, errors.New("upstream unavailable"))
		return
	}
	s.respondError(w, http.StatusInternalServerError, errors.New("stream failed"))
}

// responseSink writes fragments straight to the client, flushing each one.
type responseSink struct {
	w           http.ResponseWriter
	rc          *http.ResponseController
	contentType string
	started     bool
}

func newResponseSink(w http.ResponseWriter, f adapter.Format) *responseSink {
	return &responseSink{
		w:           w,
		rc:          http.NewResponseController(w),
		contentType: f.ContentType(),
	}
}

func (s *responseSink) commit() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", s.contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *responseSink) Send(fragment string) error {
	s.commit()
	if _, err := io.WriteString(s.w, fragment); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
