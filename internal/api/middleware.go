/**
 * @description
 * Internal API key middleware for the operator routes. The engine is internal
 * infrastructure, so service-to-service auth is a shared header secret rather
 * than end-user tokens.
 */
package api

import (
	"crypto/subtle"
	"net/http"
)

// InternalAuthMiddleware enforces the X-Internal-Api-Key header. When the
// configured key is empty the middleware is a pass-through.
func InternalAuthMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				provided := r.Header.Get("X-Internal-Api-Key")
				if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
