package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/golease/pkg/golease"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	prevFormat := zerolog.TimeFieldFormat
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
		zerolog.TimeFieldFormat = prevFormat
	})
}

func TestSetup_FileOutputJSON(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "golease.log")

	closer, err := Setup(LogConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	Component("rates").Warn("live rate fetch failed", golease.Field{Key: "date", Value: "2024-06-15"})
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"component":"rates"`)
	assert.Contains(t, line, `"date":"2024-06-15"`)
	assert.Contains(t, line, `"level":"warn"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetup_LevelFilters(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "golease.log")

	closer, err := Setup(LogConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	l := WithComponent("cli")
	l.Info().Msg("hidden")
	l.Error().Msg("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hidden"))
	assert.True(t, strings.Contains(string(data), "shown"))
}

func TestSetup_Invalid(t *testing.T) {
	restoreGlobals(t)

	tests := []struct {
		name   string
		config LogConfig
	}{
		{"bad level", LogConfig{Level: "loud", Format: "json", Output: "stderr"}},
		{"bad format", LogConfig{Level: "info", Format: "xml", Output: "stderr"}},
		{"bad path", LogConfig{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "missing", "x.log")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Setup(tt.config)
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	restoreGlobals(t)

	closer, err := Setup(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}
