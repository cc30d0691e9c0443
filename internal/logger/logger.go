package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mihaimyh/golease/pkg/golease"
	zerologadapter "github.com/mihaimyh/golease/pkg/golease/logger/zerolog"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json, console
	TimeFormat string // Go layout, or "unix"
	Output     string // stdout, stderr, or file path
}

// DefaultConfig returns the configuration used when nothing else is set
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     "stderr",
	}
}

// Setup initializes the global logger. The returned closer releases the
// log file when Output is a path; it is a no-op otherwise.
func Setup(config LogConfig) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch config.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, closer = file, file
	}

	timeFormat := config.TimeFormat
	if strings.EqualFold(timeFormat, "unix") {
		timeFormat = zerolog.TimeFormatUnix
	}

	switch strings.ToLower(config.Format) {
	case "", "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	case "json":
	default:
		_ = closer.Close()
		return nil, fmt.Errorf("invalid log format %q", config.Format)
	}

	zerolog.SetGlobalLevel(level)
	if timeFormat != "" {
		zerolog.TimeFieldFormat = timeFormat
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	return closer, nil
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// Component returns a golease.Logger writing through the global logger.
func Component(component string) golease.Logger {
	return zerologadapter.NewLogger(WithComponent(component))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
