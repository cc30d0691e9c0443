// Package http provides net/http middleware for the billing API: per-client
// rate limiting and request logging.
package http

import (
	"net/http"
	"time"

	"github.com/mihaimyh/golease/internal/httputil"
	"github.com/mihaimyh/golease/pkg/golease"
)

// Config holds middleware configuration
type Config struct {
	// Limiter bounds requests per client IP. If nil, requests are not limited
	Limiter *httputil.RateLimiter

	// Logger records one line per request. If nil, requests are not logged
	Logger golease.Logger

	// OnRateLimited is called when a client exceeds the limit
	// If nil, returns 429 JSON
	OnRateLimited func(w http.ResponseWriter, r *http.Request)
}

// Middleware creates an HTTP middleware that limits and logs requests
func Middleware(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Limiter != nil && !config.Limiter.Allow(httputil.GetClientIP(r)) {
				if config.OnRateLimited != nil {
					config.OnRateLimited(w, r)
				} else {
					httputil.WriteError(w, http.StatusTooManyRequests, httputil.ErrRateLimited)
				}
				return
			}

			if config.Logger == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			config.Logger.Info("http request",
				golease.Field{Key: "method", Value: r.Method},
				golease.Field{Key: "path", Value: r.URL.Path},
				golease.Field{Key: "status", Value: rec.status},
				golease.Field{Key: "duration", Value: time.Since(start).String()},
			)
		})
	}
}

// statusRecorder captures the status code written by the next handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
