// Package api implements the vault gateway REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware returns middleware that validates the API key.
// If enabled is false, all requests pass through (disabled mode).
// Otherwise the key is read from the X-API-Key header or an
// "Authorization: Bearer <key>" header. A missing key is 401, a wrong key 403.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			key := requestKey(r)
			if key == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("missing API key"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
				writeJSON(w, http.StatusForbidden, errorBody("invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
