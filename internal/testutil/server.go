package testutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
)

// Server is an HTTP server bound to the IPv4 loopback interface.
type Server struct {
	URL       string
	listener  net.Listener
	server    *http.Server
	transport *http.Transport
	client    *http.Client
}

// NewServer starts an HTTP server bound to the IPv4 loopback interface and
// registers its shutdown with t.Cleanup.
func NewServer(t *testing.T, handler http.Handler) *Server {
	t.Helper()
	if handler == nil {
		handler = http.NewServeMux()
	}
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	transport := &http.Transport{}
	s := &Server{
		URL:       "http://" + l.Addr().String(),
		listener:  l,
		server:    &http.Server{Handler: handler},
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("test server serve error: %v", err)
		}
	}()
	t.Cleanup(s.Close)
	return s
}

// Client returns an HTTP client configured for the server.
func (s *Server) Client() *http.Client {
	return s.client
}

// Close shuts down the underlying server and frees resources.
func (s *Server) Close() {
	_ = s.server.Shutdown(context.Background())
	s.transport.CloseIdleConnections()
}

// SSEHandler replays data payloads as server-sent events, flushing after
// each. Requests is incremented for every request served.
type SSEHandler struct {
	Events   []string
	Requests atomic.Int32
	// Abort drops the connection after the events instead of ending cleanly.
	Abort bool
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Requests.Add(1)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	for _, ev := range h.Events {
		fmt.Fprintf(w, "data: %s\n\n", ev)
		flusher.Flush()
	}
	if h.Abort {
		panic(http.ErrAbortHandler)
	}
}

// StatusHandler answers every request with status and a JSON error body,
// counting requests.
func StatusHandler(status int, counter *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if counter != nil {
			counter.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":"status %d","type":"test_error"}}`, status)
	}
}
