package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimit allows limit requests per window for each remote host with a
// token bucket. Idle buckets are evicted after a few windows.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit < 1 {
		return func(next http.Handler) http.Handler { return next }
	}
	every := rate.Every(per / time.Duration(limit))
	buckets := cache.New(3*per, per)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := RemoteHost(r)
			var limiter *rate.Limiter
			if v, ok := buckets.Get(ip); ok {
				limiter = v.(*rate.Limiter)
			} else {
				limiter = rate.NewLimiter(every, limit)
				if err := buckets.Add(ip, limiter, cache.DefaultExpiration); err != nil {
					if v, ok := buckets.Get(ip); ok {
						limiter = v.(*rate.Limiter)
					}
				}
			}
			// Touch so active clients keep their bucket.
			buckets.Set(ip, limiter, cache.DefaultExpiration)

			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
