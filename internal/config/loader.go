package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigError is a configuration failure. These are fatal at startup.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with baseline values applied.
func Defaults() Config {
	return Config{
		DefaultMode: "default",
		Backend: BackendConfig{
			BinaryPath: "codex",
			Args:       []string{"app-server"},
		},
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file, fills defaults, and applies env overrides.
// A missing file yields defaults only. The result is not yet validated;
// callers run Validate before using it.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	cfg.Gateway.Token = expandEnvVars(cfg.Gateway.Token)
	return cfg, nil
}

// applyDefaults fills zero-value fields after YAML merging.
func applyDefaults(cfg *Config) {
	if cfg.WorkspaceCwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.WorkspaceCwd = wd
		}
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = "default"
	}
	if cfg.Backend.BinaryPath == "" {
		cfg.Backend.BinaryPath = "codex"
	}
	if cfg.Backend.Args == nil {
		cfg.Backend.Args = []string{"app-server"}
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides reads LEGATE_* environment variables over config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEGATE_WORKSPACE"); v != "" {
		cfg.WorkspaceCwd = v
	}
	if v := os.Getenv("LEGATE_BINARY"); v != "" {
		cfg.Backend.BinaryPath = v
	}
	if v := os.Getenv("LEGATE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = ms
		}
	}
	if v := os.Getenv("LEGATE_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("LEGATE_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("LEGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// envVarPattern matches ${VAR_NAME} references in credential fields.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} references so tokens can live outside the
// config file. Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}
