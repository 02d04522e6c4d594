// Package middleware holds HTTP middleware shared by all routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// CORS returns middleware allowing cross-origin requests from the given
// origins. "*" allows any origin.
func CORS(allowed []string) func(http.Handler) http.Handler {
	anyOrigin := lo.Contains(allowed, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (anyOrigin || lo.Contains(allowed, strings.TrimRight(origin, "/"))) {
				if anyOrigin {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OriginAllowed reports whether a WebSocket handshake origin is accepted.
// Requests without an Origin header are non-browser clients and pass.
func OriginAllowed(allowed []string) func(r *http.Request) bool {
	anyOrigin := lo.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin {
			return true
		}
		return lo.Contains(allowed, strings.TrimRight(origin, "/"))
	}
}
