package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Writer: &buf,
		JSON:   true,
		Level:  slog.LevelInfo,
	})

	l.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, `"level":"INFO"`)
	assert.Contains(t, output, `"msg":"test message"`)
	assert.Contains(t, output, `"key":"value"`)
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Writer:  &buf,
		JSON:    false,
		NoColor: true, // test without color codes for easier matching
		Level:   slog.LevelDebug,
	})

	l.Debug("debug msg", "foo", "bar")
	l.Warn("warn msg")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[DEBUG]")
	assert.Contains(t, lines[0], "debug msg")
	assert.Contains(t, lines[0], "foo=bar")

	assert.Contains(t, lines[1], "[WARN]")
	assert.Contains(t, lines[1], "warn msg")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Writer:  &buf,
		JSON:    false,
		NoColor: true,
		Level:   slog.LevelWarn, // Should ignore Info and Debug
	})

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	output := buf.String()
	assert.NotContains(t, output, "debug")
	assert.NotContains(t, output, "info")
	assert.Contains(t, output, "warn")
	assert.Contains(t, output, "error")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Writer: &buf,
		JSON:   true,
		Level:  slog.LevelInfo,
	})

	l2 := l.With("context", "request123")
	l2.Info("processing")

	output := buf.String()
	assert.Contains(t, output, `"context":"request123"`)
}

func TestLogger_TextWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		Writer:  &buf,
		NoColor: true,
		Level:   slog.LevelInfo,
	})

	l.With("archive", "target.bita").Info("clone started", "seeds", 2)

	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "archive=target.bita")
	assert.Contains(t, output, "seeds=2")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, JSON: true, Level: slog.LevelInfo})

	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Info("from context")
	assert.Contains(t, buf.String(), `"msg":"from context"`)

	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
