package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/golease/pkg/golease"
)

var _ golease.Logger = (*Logger)(nil)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *Logger, msg string, fields ...golease.Field)
	}{
		{"debug", (*Logger).Debug},
		{"info", (*Logger).Info},
		{"warn", (*Logger).Warn},
		{"error", (*Logger).Error},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(zerolog.New(&buf))

			tt.log(logger, "rate resolved", golease.Field{Key: "date", Value: "2024-06-14"})

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "rate resolved", entry["message"])
			assert.Equal(t, "2024-06-14", entry["date"])
		})
	}
}

func TestLogger_FieldTypes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Warn("live rate fetch failed",
		golease.Field{Key: "count", Value: 3},
		golease.Field{Key: "error", Value: errors.New("timeout")},
		golease.Field{Key: "rate", Value: 4.9771},
	)

	entry := decodeLine(t, &buf)
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "timeout", entry["error"])
	assert.Equal(t, 4.9771, entry["rate"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf)).With(golease.Field{Key: "component", Value: "rates"})

	logger.Info("fallback used")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "rates", entry["component"])
}
