package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer

	New(&buf, "info", "json").Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	New(&buf, "info", "text").Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), "k=v")

	buf.Reset()
	New(&buf, "warn", "text").Info("hidden")
	assert.Empty(t, buf.String())
}
