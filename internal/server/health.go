package server

import "net/http"

// HealthPath answers liveness probes.
const HealthPath = "/health"

// HealthMiddleware answers HealthPath with an empty 200 for any method.
// It must be the outermost stage: health checks skip metrics, logging and dispatch.
func HealthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
