package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

type contextKey int

const userIDKey contextKey = 0

// currentUserID returns the authenticated user id placed in the request
// context by the authenticate middleware.
func currentUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// authenticate resolves the Authorization bearer token to a session and
// stores the user id in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		sess, err := s.sessions.Get(r.Context(), token)
		if err != nil {
			log.Printf("[api] session lookup failed: %v", err)
			writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRetryable marks infrastructure failures the client may retry, such
// as a candidate pool fetch failing.
func writeRetryable(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error":     msg,
		"retryable": true,
	})
}
