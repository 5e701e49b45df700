package server

import (
	"encoding/json"
	"net"
	"net/http"
)

// rateLimitMiddleware enforces the token-bucket + hourly cap limiter keyed
// by client: the X-API-Key header when present (a caller with their own
// key gets their own budget), falling back to the remote address so
// anonymous callers still share a bucket per source IP rather than one
// global bucket for the whole gateway.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			}
		}

		if !s.limiter.Allow(key) {
			if s.metrics != nil {
				s.metrics.RateLimitExceededTotal.WithLabelValues(key).Inc()
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
