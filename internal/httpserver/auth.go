package httpserver

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

// APIKeyHeader carries the shared secret when an API key is configured.
const APIKeyHeader = "X-API-Key"

var errUnauthorized = errors.New("unauthorized")

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	want := []byte(s.apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(APIKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.respondError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
