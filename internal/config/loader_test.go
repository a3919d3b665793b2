package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the hapticd config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "hapticd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  http_port: 9999
  shutdown_timeout: 3s
store:
  backend: memory
nats:
  enabled: true
  url: nats://broker:4222
engine:
  ignore_packages:
    - com.hapticd
    - com.system
generator:
  enabled: true
  base_url: https://gen.example.com
  api_key: sk-test
  attempt_timeout: 5s
logging:
  level: debug
  format: console
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, []string{"com.hapticd", "com.system"}, cfg.Engine.IgnorePackages)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey.Value())
	assert.Equal(t, 5*time.Second, cfg.Generator.AttemptTimeout.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Defaults still fill the gaps.
	assert.Equal(t, "haptics.vibrate", cfg.NATS.HapticsPrefix)
	assert.Equal(t, "gpt-5-mini", cfg.Generator.Model)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 9470, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
}

func TestLoadWithFile_EnvOverrides(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9999\n", 0600)

	t.Setenv("HAPTICD_SERVER_HTTP_PORT", "7000")
	t.Setenv("HAPTICD_STORE_BACKEND", "memory")
	t.Setenv("HAPTICD_ENGINE_IGNORE_PACKAGES", "com.a, com.b,")
	t.Setenv("HAPTICD_BUNDLE_WATCH", "true")
	t.Setenv("HAPTICD_BUNDLE_DEBOUNCE", "2s")
	t.Setenv("SERVER_HTTP_PORT", "1") // unprefixed, ignored

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, []string{"com.a", "com.b"}, cfg.Engine.IgnorePackages)
	assert.True(t, cfg.Bundle.Watch)
	assert.Equal(t, 2*time.Second, cfg.Bundle.Debounce.Duration())
}

func TestLoadWithFile_Rejections(t *testing.T) {
	t.Run("path outside allowed dirs", func(t *testing.T) {
		setupTestHome(t)
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path validation")
	})

	t.Run("sibling prefix dir", func(t *testing.T) {
		dir := setupTestHome(t)
		evil := dir + "-evil"
		require.NoError(t, os.MkdirAll(evil, 0700))
		_, err := LoadWithFile(filepath.Join(evil, "config.yaml"))
		assert.Error(t, err)
	})

	t.Run("insecure permissions", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs")
		}
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "server:\n  http_port: 9999\n", 0644)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("too large", func(t *testing.T) {
		dir := setupTestHome(t)
		big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
		path := writeConfig(t, dir, big, 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "server: [unclosed\n", 0600)
		_, err := LoadWithFile(path)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "store:\n  backend: redis\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())

	info, err := os.Stat(filepath.Join(home, ".config", "hapticd"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnvKeyValue(t *testing.T) {
	key, val := envKeyValue("HAPTICD_GENERATOR_BASE_URL", "https://x")
	assert.Equal(t, "generator.base_url", key)
	assert.Equal(t, "https://x", val)

	key, val = envKeyValue("HAPTICD_ENGINE_IGNORE_PACKAGES", "a,,b")
	assert.Equal(t, "engine.ignore_packages", key)
	assert.Equal(t, []string{"a", "b"}, val)
}
