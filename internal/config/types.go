// Package config loads and validates the relay configuration.
package config

// Config is the root configuration for legate.
type Config struct {
	// WorkspaceCwd is the absolute working directory backend threads run in.
	WorkspaceCwd string `yaml:"workspaceCwd,omitempty"`

	DefaultMode string           `yaml:"defaultMode,omitempty"` // "default" | "plan"
	Backend     BackendConfig    `yaml:"backend,omitempty"`
	Gateway     GatewayConfig    `yaml:"gateway,omitempty"`
	Transcript  TranscriptConfig `yaml:"transcript,omitempty"`
	Logging     LoggingConfig    `yaml:"logging,omitempty"`
}

// BackendConfig describes the AI backend subprocess.
type BackendConfig struct {
	BinaryPath string   `yaml:"binaryPath,omitempty"`
	Args       []string `yaml:"args,omitempty"`
	// TimeoutMs bounds one create-thread or run-turn operation end to end.
	// Zero disables the deadline.
	TimeoutMs int `yaml:"timeoutMs,omitempty"`
}

// GatewayConfig controls the bundled WebSocket chat adapter.
type GatewayConfig struct {
	Port  int    `yaml:"port,omitempty"`
	Bind  string `yaml:"bind,omitempty"` // "loopback" | "lan"
	Token string `yaml:"token,omitempty"`
}

// TranscriptConfig controls the SQLite turn archive.
type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}
