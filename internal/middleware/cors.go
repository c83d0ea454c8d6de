// Package middleware holds the HTTP middleware of the API.
package middleware

import "net/http"

// CORS answers preflight requests and sets CORS headers for allowed origins.
// "*" allows any origin but never enables credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				explicit, allowed := matchOrigin(allowedOrigins, origin)
				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
					w.Header().Add("Vary", "Origin")
					if explicit {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matchOrigin(allowedOrigins []string, origin string) (explicit, allowed bool) {
	for _, o := range allowedOrigins {
		if o == origin {
			return true, true
		}
		if o == "*" {
			allowed = true
		}
	}
	return false, allowed
}
