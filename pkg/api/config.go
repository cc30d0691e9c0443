package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/golease/pkg/golease"
)

const defaultMaxBodyBytes = 1 << 20

// Config holds configuration for the billing API handler
type Config struct {
	// Manager is the billing manager instance (required)
	Manager *golease.Manager

	// OnError handles errors. If nil, errors are written as
	// {"error": "..."} with the status from StatusCode
	OnError func(http.ResponseWriter, *http.Request, error)

	// MaxBodyBytes limits request bodies. Default: 1 MiB
	MaxBodyBytes int64

	// Logger records request failures. Default: no-op
	Logger golease.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("maxBodyBytes must not be negative")
	}
	return nil
}

// NewHandler creates a new billing API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	if config.Logger == nil {
		config.Logger = &golease.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}
