package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Registry struct {
		Namespace  string        `mapstructure:"namespace"`
		DefaultTTL time.Duration `mapstructure:"default_ttl"`
	} `mapstructure:"registry"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return dir
}

func newTestLoader(t *testing.T, dir string) Loader {
	t.Helper()
	l, err := New(
		WithConfigName("beacon"),
		WithConfigPaths(dir),
		WithEnvPrefix("BEACON_TEST"),
	)
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))
	return l
}

func TestLoadAndUnmarshal(t *testing.T) {
	dir := writeTestConfig(t, `
registry:
  namespace: /beacon/services
  default_ttl: 30s
log:
  level: debug
`)
	l := newTestLoader(t, dir)

	var cfg testConfig
	require.NoError(t, l.Unmarshal(&cfg))
	assert.Equal(t, "/beacon/services", cfg.Registry.Namespace)
	assert.Equal(t, 30*time.Second, cfg.Registry.DefaultTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestUnmarshalKey(t *testing.T) {
	dir := writeTestConfig(t, `
registry:
  namespace: /custom
`)
	l := newTestLoader(t, dir)

	var reg struct {
		Namespace string `mapstructure:"namespace"`
	}
	require.NoError(t, l.UnmarshalKey("registry", &reg))
	assert.Equal(t, "/custom", reg.Namespace)
}

func TestEnvOverride(t *testing.T) {
	dir := writeTestConfig(t, `
registry:
  namespace: /from-file
`)
	t.Setenv("BEACON_TEST_REGISTRY_NAMESPACE", "/from-env")

	l := newTestLoader(t, dir)
	assert.Equal(t, "/from-env", l.Get("registry.namespace"))
}

func TestMissingConfigFileAllowed(t *testing.T) {
	l, err := New(WithConfigPaths(t.TempDir()), WithEnvPrefix("BEACON_TEST"))
	require.NoError(t, err)

	// 没有配置文件时允许纯环境变量运行
	require.NoError(t, l.Load(context.Background()))

	t.Setenv("BEACON_TEST_FOO", "bar")
	assert.Equal(t, "bar", l.Get("foo"))
}

func TestReadBeforeLoad(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	var v struct{}
	assert.ErrorIs(t, l.Unmarshal(&v), ErrNotLoaded)
	assert.ErrorIs(t, l.UnmarshalKey("k", &v), ErrNotLoaded)
	_, err = l.Watch(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestWatchConfigChange(t *testing.T) {
	dir := writeTestConfig(t, "log:\n  level: info\n")
	l := newTestLoader(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := l.Watch(ctx)
	require.NoError(t, err)

	// 修改配置文件触发事件
	path := filepath.Join(dir, "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))

	select {
	case event := <-ch:
		assert.NotZero(t, event.Timestamp)
	case <-time.After(3 * time.Second):
		t.Skip("filesystem notification not delivered in time")
	}
}

func TestWatchCancelClosesChannel(t *testing.T) {
	dir := writeTestConfig(t, "log:\n  level: info\n")
	l := newTestLoader(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}
