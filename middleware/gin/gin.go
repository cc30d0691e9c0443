// Package gin mounts the billing API on a Gin router and provides Gin
// middleware for per-client rate limiting and request logging.
package gin

import (
	"net/http"
	"time"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/golease/internal/httputil"
	"github.com/mihaimyh/golease/pkg/api"
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
	OnRateLimited func(c *gongin.Context)
}

// Middleware creates a Gin middleware that limits and logs requests
func Middleware(cfg Config) gongin.HandlerFunc {
	return func(c *gongin.Context) {
		if cfg.Limiter != nil && !cfg.Limiter.Allow(c.ClientIP()) {
			if cfg.OnRateLimited != nil {
				cfg.OnRateLimited(c)
			} else {
				defaultRateLimited(c)
			}
			c.Abort()
			return
		}

		start := time.Now()
		c.Next()

		if cfg.Logger != nil {
			cfg.Logger.Info("http request",
				golease.Field{Key: "method", Value: c.Request.Method},
				golease.Field{Key: "path", Value: c.FullPath()},
				golease.Field{Key: "status", Value: c.Writer.Status()},
				golease.Field{Key: "duration", Value: time.Since(start).String()},
			)
		}
	}
}

// Register mounts every API endpoint on r, behind the given middleware
func Register(r gongin.IRouter, h *api.Handler, middleware ...gongin.HandlerFunc) {
	if h == nil {
		panic("golease/gin: api handler is required")
	}
	group := r.Group("", middleware...)
	for _, e := range h.Endpoints() {
		group.Handle(e.Method, e.Path, gongin.WrapF(e.Handler))
	}
}

func defaultRateLimited(c *gongin.Context) {
	c.JSON(http.StatusTooManyRequests, httputil.ErrorResponse{Error: httputil.ErrRateLimited.Error()})
}
