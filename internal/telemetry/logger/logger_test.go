package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level, format string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: format, Output: &buf})
	require.NoError(t, err)
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	l, buf := newBufferLogger(t, "debug", "json")

	tests := []struct {
		level   string
		logFunc func(string, ...any)
	}{
		{"DEBUG", l.Debug},
		{"INFO", l.Info},
		{"WARN", l.Warn},
		{"ERROR", l.Error},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			tt.logFunc("lock granted", "map", "counter-map", "key", "counter")
			entry := decodeLine(t, buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "lock granted", entry["msg"])
			assert.Equal(t, "counter-map", entry["map"])
			assert.Equal(t, "counter", entry["key"], "map keys are not redacted")
		})
	}
}

func TestLogger_WithAndFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, "warn", "json")

	l.Debug("dropped")
	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.With("component", "respserver").Warn("slow client")
	entry := decodeLine(t, buf)
	assert.Equal(t, "respserver", entry["component"])
}

func TestSetLevel(t *testing.T) {
	l, buf := newBufferLogger(t, "error", "json")
	t.Cleanup(func() { SetLevel("info") })

	l.Info("filtered")
	assert.Zero(t, buf.Len())

	SetLevel("debug")
	l.Info("visible")
	assert.NotZero(t, buf.Len())
	assert.Equal(t, "debug", GetLevel())
}

func TestParseLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })
	for input, want := range map[string]string{
		"debug": "debug", "DEBUG": "debug", "info": "info", "warn": "warn",
		"warning": "warn", "error": "error", "invalid": "info", "": "info",
	} {
		SetLevel(input)
		assert.Equal(t, want, GetLevel(), "input %q", input)
	}
}

func TestLogger_TextFormat(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "text")
	l.Info("queue full", "queue", "bounded-queue")
	out := buf.String()
	assert.Contains(t, out, "queue full")
	assert.Contains(t, out, "queue=bounded-queue")
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev); SetLevel("info") })

	l, buf := newBufferLogger(t, "debug", "json")
	SetDefault(l)
	Default().Debug("hello")
	assert.NotZero(t, buf.Len())

	SetDefault(foreignLogger{})
	assert.Same(t, l, Default(), "foreign loggers are ignored")
}

type foreignLogger struct{}

func (foreignLogger) Debug(string, ...any) {}
func (foreignLogger) Info(string, ...any) {}
func (foreignLogger) Warn(string, ...any) {}
func (foreignLogger) Error(string, ...any) {}
func (f foreignLogger) With(...any) Logger { return f }

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridmesh.log")
	l, err := New(Config{
		Level:  "info",
		Format: "json",
		File:   FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2},
	})
	require.NoError(t, err)

	l.Info("written to file", "password", "hunter2")
	require.NoError(t, Close(l))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.NotContains(t, string(data), "hunter2")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(data)), "}"))
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Error("nothing")
	assert.NoError(t, Close(l))
}

func TestSlog(t *testing.T) {
	SetLevel("info")
	l, buf := newBufferLogger(t, "info", "json")
	Slog(l).Info("via slog", "password", "hunter2")
	assert.Contains(t, buf.String(), `"msg":"via slog"`)
	assert.NotContains(t, buf.String(), "hunter2")

	assert.NotNil(t, Slog(nil))
	assert.NotNil(t, Slog(foreignLogger{}))
}
