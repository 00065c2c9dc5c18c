package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) { // A
	t.Parallel()
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) { // A
	t.Parallel()
	path := writeFile(t, "node.yaml", `
logLevel: debug
handlers:
  - echo
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, FormatTint, cfg.LogFormat)
	assert.Equal(t, []string{HandlerEcho}, cfg.Handlers)
	assert.Equal(t, defaultMaxLineBytes, cfg.MaxLineBytes)
}

func TestLoadErrors(t *testing.T) { // A
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "handlers: [echo\n")
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) { // A
	t.Parallel()
	env := map[string]string{
		EnvLogLevel:     "warn",
		EnvLogFormat:    FormatJSON,
		EnvHandlers:     " echo , counter-ids ,",
		EnvMaxLineBytes: "1024",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, FormatJSON, cfg.LogFormat)
	assert.Equal(t,
		[]string{HandlerEcho, HandlerCounterIDs},
		cfg.Handlers)
	assert.Equal(t, 1024, cfg.MaxLineBytes)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvRejectsBadNumber(t *testing.T) { // A
	t.Parallel()
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == EnvMaxLineBytes {
			return "lots", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) { // A
	// Mutates the process environment; not parallel.
	const key = "MAELNODE_TEST_ENV_FILE"
	path := writeFile(t, ".env", key+"=from-file\n")
	t.Cleanup(func() { os.Unsetenv(key) })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv(key))

	assert.NoError(t, LoadEnvFile(""))
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "none")))
}

func TestValidate(t *testing.T) { // A
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
		{"no handlers", func(c *Config) { c.Handlers = nil }},
		{"unknown handler", func(c *Config) {
			c.Handlers = []string{"broadcast"}
		}},
		{"duplicate handler", func(c *Config) {
			c.Handlers = []string{HandlerEcho, HandlerEcho}
		}},
		{"zero line size", func(c *Config) { c.MaxLineBytes = 0 }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSplitList(t *testing.T) { // H
	t.Parallel()
	assert.Equal(t, []string{"a", "b"}, SplitList("a, ,b,"))
	assert.Empty(t, SplitList(""))
}
