package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".legate"

// Paths holds the resolved filesystem locations for legate data.
type Paths struct {
	Base     string // ~/.legate
	Config   string // ~/.legate/config.yaml
	Sessions string // ~/.legate/sessions
	Data     string // ~/.legate/data
}

// Index returns the persisted session index file path.
func (p Paths) Index() string {
	return filepath.Join(p.Sessions, "index.json")
}

// Transcript returns the default transcript database path.
func (p Paths) Transcript() string {
	return filepath.Join(p.Data, "transcript.db")
}

// ResolvePaths computes the standard paths from the home directory.
// LEGATE_HOME overrides the base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("LEGATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}
	return Paths{
		Base:     base,
		Config:   filepath.Join(base, "config.yaml"),
		Sessions: filepath.Join(base, "sessions"),
		Data:     filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates the standard directories if missing.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Sessions, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
