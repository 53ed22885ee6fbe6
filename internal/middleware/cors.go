package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// corsHeaders are the request headers a dashboard may send: bearer tokens and JSON bodies.
const corsHeaders = "Authorization, Content-Type"

// CORS answers preflight requests and tags responses for the allowed origins.
// A preflight from an origin outside the list is refused with 403.
func CORS(allowedOrigins, allowedMethods []string) func(http.Handler) http.Handler {
	anyOrigin := slices.Contains(allowedOrigins, "*")
	methods := strings.Join(allowedMethods, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := anyOrigin || (origin != "" && slices.Contains(allowedOrigins, origin))

			h := w.Header()
			if allowed {
				if anyOrigin {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				writeJSONError(w, http.StatusForbidden, "Origin not allowed")
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
