// Package fiber mounts the billing API on a Fiber app and provides Fiber
// middleware for per-client rate limiting and request logging.
package fiber

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

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
	OnRateLimited func(c *fiber.Ctx) error
}

// Middleware creates a Fiber middleware that limits and logs requests
func Middleware(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Limiter != nil && !cfg.Limiter.Allow(c.IP()) {
			if cfg.OnRateLimited != nil {
				return cfg.OnRateLimited(c)
			}
			return defaultRateLimited(c)
		}

		start := time.Now()
		err := c.Next()

		if cfg.Logger != nil {
			cfg.Logger.Info("http request",
				golease.Field{Key: "method", Value: c.Method()},
				golease.Field{Key: "path", Value: c.Path()},
				golease.Field{Key: "status", Value: c.Response().StatusCode()},
				golease.Field{Key: "duration", Value: time.Since(start).String()},
			)
		}
		return err
	}
}

// Register mounts every API endpoint on r, behind the given middleware
func Register(r fiber.Router, h *api.Handler, middleware ...fiber.Handler) {
	if h == nil {
		panic("golease/fiber: api handler is required")
	}
	for _, e := range h.Endpoints() {
		handlers := append(append([]fiber.Handler{}, middleware...), adaptor.HTTPHandlerFunc(e.Handler))
		r.Add(e.Method, e.Path, handlers...)
	}
}

func defaultRateLimited(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(httputil.ErrorResponse{Error: httputil.ErrRateLimited.Error()})
}
