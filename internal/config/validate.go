package config

import (
	"fmt"
	"path/filepath"
)

// Validate checks the loaded config. Violations are fatal at startup: the
// process must not proceed with unvalidated state.
func (c Config) Validate() error {
	if c.WorkspaceCwd == "" {
		return &ConfigError{Message: "workspaceCwd is required"}
	}
	if !filepath.IsAbs(c.WorkspaceCwd) {
		return &ConfigError{Message: fmt.Sprintf("workspaceCwd must be an absolute path (got %q)", c.WorkspaceCwd)}
	}
	if c.Backend.BinaryPath == "" {
		return &ConfigError{Message: "backend.binaryPath is required"}
	}
	if c.Backend.TimeoutMs < 0 {
		return &ConfigError{Message: "backend.timeoutMs must not be negative"}
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return &ConfigError{Message: fmt.Sprintf("gateway.port %d is out of range", c.Gateway.Port)}
	}
	switch c.Gateway.Bind {
	case "loopback", "lan":
	default:
		return &ConfigError{Message: fmt.Sprintf("gateway.bind must be \"loopback\" or \"lan\" (got %q)", c.Gateway.Bind)}
	}
	switch c.DefaultMode {
	case "default", "plan":
	default:
		return &ConfigError{Message: fmt.Sprintf("defaultMode must be \"default\" or \"plan\" (got %q)", c.DefaultMode)}
	}
	return nil
}
