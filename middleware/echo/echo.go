// Package echo mounts the billing API on an Echo router and provides Echo
// middleware for per-client rate limiting and request logging.
package echo

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

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
	OnRateLimited func(c echo.Context) error
}

// Router is satisfied by *echo.Echo and *echo.Group
type Router interface {
	Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route
}

// Middleware creates an Echo middleware that limits and logs requests
func Middleware(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Limiter != nil && !cfg.Limiter.Allow(c.RealIP()) {
				if cfg.OnRateLimited != nil {
					return cfg.OnRateLimited(c)
				}
				return defaultRateLimited(c)
			}

			start := time.Now()
			err := next(c)

			if cfg.Logger != nil {
				cfg.Logger.Info("http request",
					golease.Field{Key: "method", Value: c.Request().Method},
					golease.Field{Key: "path", Value: c.Path()},
					golease.Field{Key: "status", Value: c.Response().Status},
					golease.Field{Key: "duration", Value: time.Since(start).String()},
				)
			}
			return err
		}
	}
}

// Register mounts every API endpoint on r, behind the given middleware
func Register(r Router, h *api.Handler, middleware ...echo.MiddlewareFunc) {
	if h == nil {
		panic("golease/echo: api handler is required")
	}
	for _, e := range h.Endpoints() {
		r.Add(e.Method, e.Path, echo.WrapHandler(e.Handler), middleware...)
	}
}

func defaultRateLimited(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, httputil.ErrorResponse{Error: httputil.ErrRateLimited.Error()})
}
