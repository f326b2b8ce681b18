package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/history"
	"github.com/tokligence/streamledger/internal/httpserver/protocol"
)

type historyEndpoint struct {
	server *Server
}

func newHistoryEndpoint(server *Server) protocol.Endpoint {
	return &historyEndpoint{server: server}
}

func (e *historyEndpoint) Name() string { return "history" }

func (e *historyEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/history", Handler: http.HandlerFunc(e.server.HandleListHistory)},
		{Method: http.MethodGet, Path: "/history/{id}", Handler: http.HandlerFunc(e.server.HandleGetHistory)},
	}
}

// HandleListHistory handles GET /history?limit=&offset=
func (s *Server) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := s.pageLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > s.maxPageLimit {
			s.respondError(w, http.StatusUnprocessableEntity,
				fmt.Errorf("limit must be between 1 and %d", s.maxPageLimit))
			return
		}
		limit = n
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusUnprocessableEntity, errors.New("offset must be non-negative"))
			return
		}
		offset = n
	}

	page, err := s.history.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, errors.New("database error"))
		return
	}
	if page.Records == nil {
		page.Records = []history.Record{}
	}
	s.respondJSON(w, http.StatusOK, page)
}

// HandleGetHistory handles GET /history/{id}
func (s *Server) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, errors.New("invalid UUID format"))
		return
	}
	rec, err := s.history.Get(r.Context(), id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		s.respondError(w, http.StatusNotFound, history.ErrNotFound)
	case err != nil:
		s.logger.Error("get history failed", zap.Stringer("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, errors.New("database error"))
	default:
		s.respondJSON(w, http.StatusOK, rec)
	}
}
