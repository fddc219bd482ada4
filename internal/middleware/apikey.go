package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIKeyHeader is the pre-shared key header checked on protected routes.
const APIKeyHeader = "x-api-key"

// APIKey returns middleware that rejects requests whose x-api-key header
// does not match the configured key. WebSocket clients cannot set headers
// from browsers, so a `key` query parameter is accepted as a fallback.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				provided = r.URL.Query().Get("key")
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				slog.Warn("rejected request with invalid api key",
					"path", r.URL.Path, "remote", r.RemoteAddr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status": "error",
					"error":  "invalid api key",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
