package api

import (
	"net/http"
	"strings"

	"globalchat/pkg/types"
)

// authenticatedHandler receives the caller resolved from the bearer token.
type authenticatedHandler func(w http.ResponseWriter, r *http.Request, caller types.Identity)

// authMiddleware resolves the bearer token and rejects anonymous requests
func (s *Server) authMiddleware(next authenticatedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.sendError(w, r, types.ErrUnauthenticated)
			return
		}
		caller, err := s.deps.Auth.Resolve(r.Context(), token)
		if err != nil {
			s.log.Debug("Rejected API token", "path", r.URL.Path, "error", err)
			s.sendError(w, r, types.ErrUnauthenticated)
			return
		}
		next(w, r, caller)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// FUNCTIONAL DISCOVERY: Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets the JSON content type for all API responses
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
