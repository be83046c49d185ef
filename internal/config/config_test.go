package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "codex", cfg.Backend.BinaryPath)
	assert.Equal(t, []string{"app-server"}, cfg.Backend.Args)
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "default", cfg.DefaultMode)
	assert.NotEmpty(t, cfg.WorkspaceCwd)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workspaceCwd: /srv/project
backend:
  binaryPath: /opt/backend/bin/agent
  timeoutMs: 90000
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/project", cfg.WorkspaceCwd)
	assert.Equal(t, "/opt/backend/bin/agent", cfg.Backend.BinaryPath)
	assert.Equal(t, 90000, cfg.Backend.TimeoutMs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 18790, cfg.Gateway.Port)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspaceCwd: [unclosed"), 0o600))

	_, err := Load(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEGATE_BINARY", "/usr/local/bin/backend")
	t.Setenv("LEGATE_TIMEOUT_MS", "5000")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/backend", cfg.Backend.BinaryPath)
	assert.Equal(t, 5000, cfg.Backend.TimeoutMs)
}

func TestTokenEnvExpansion(t *testing.T) {
	t.Setenv("GATEWAY_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  token: ${GATEWAY_SECRET}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Gateway.Token)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.WorkspaceCwd = "/srv/project"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty workspace", func(c *Config) { c.WorkspaceCwd = "" }, "workspaceCwd is required"},
		{"relative workspace", func(c *Config) { c.WorkspaceCwd = "rel/path" }, "absolute"},
		{"empty binary", func(c *Config) { c.Backend.BinaryPath = "" }, "binaryPath"},
		{"negative timeout", func(c *Config) { c.Backend.TimeoutMs = -1 }, "timeoutMs"},
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }, "out of range"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "everywhere" }, "gateway.bind"},
		{"bad mode", func(c *Config) { c.DefaultMode = "turbo" }, "defaultMode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestResolvePathsHonorsHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv("LEGATE_HOME", base)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, base, paths.Base)
	assert.Equal(t, filepath.Join(base, "sessions", "index.json"), paths.Index())
	assert.Equal(t, filepath.Join(base, "data", "transcript.db"), paths.Transcript())

	require.NoError(t, paths.EnsureDirs())
	for _, d := range []string{paths.Sessions, paths.Data} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
