package clog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("hello", String("key", "value"))
}

func TestNewInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"invalid level", &Config{Level: "verbose"}},
		{"invalid format", &Config{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	logger, err := New(&Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file", Int("answer", 42))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), `"answer":42`)
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.log")
	logger, err := New(&Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "debug message")
	assert.NotContains(t, string(data), "info message")
	assert.Contains(t, string(data), "warn message")
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setlevel.log")
	logger, err := New(&Config{Level: "error", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("before")
	require.NoError(t, logger.SetLevel(LevelDebug))
	logger.Info("after")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "before")
	assert.Contains(t, string(data), "after")

	assert.Error(t, logger.SetLevel(Level(99)))
}

func TestWithNamespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.log")
	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.WithNamespace("registry", "watch").Info("namespaced")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"namespace":"registry.watch"`)
}

func TestWithFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "with.log")
	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	child := logger.With(String("component", "test"))
	child.Info("first")
	child.Info("second")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, `"component":"test"`)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Info("silent")
	assert.Same(t, logger, logger.With(String("a", "b")))
	assert.NoError(t, logger.SetLevel(LevelDebug))
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{
		"debug": LevelDebug, "info": LevelInfo, "warn": LevelWarn,
		"warning": LevelWarn, "error": LevelError, "fatal": LevelFatal,
	} {
		got, err := ParseLevel(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("nope")
	assert.Error(t, err)
}
