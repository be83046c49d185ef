package cli

import (
	"fmt"
	"time"

	"github.com/dbrandt/legate/internal/config"
	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/routing"
	"github.com/dbrandt/legate/internal/session"
	"github.com/dbrandt/legate/internal/transcript"
	"github.com/dbrandt/legate/internal/turn"
)

// loadConfig loads and validates the effective configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildRouter assembles the store, orchestrator, and optional transcript
// archive behind a router. The returned cleanup closes what was opened.
func buildRouter(cfg config.Config) (*routing.Router, func(), error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	store, err := session.Open(paths.Index(), cfg.WorkspaceCwd, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session index: %w", err)
	}

	var archive *transcript.Store
	cleanup := func() {}
	if cfg.Transcript.Enabled {
		dbPath := cfg.Transcript.Path
		if dbPath == "" {
			dbPath = paths.Transcript()
		}
		archive, err = transcript.Open(dbPath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening transcript archive: %w", err)
		}
		cleanup = func() { archive.Close() }
		log.Info().Str("path", dbPath).Msg("transcript archive enabled")
	}

	runner := turn.New(turn.Config{
		Binary:  cfg.Backend.BinaryPath,
		Args:    cfg.Backend.Args,
		Timeout: time.Duration(cfg.Backend.TimeoutMs) * time.Millisecond,
	}, log)

	router := routing.New(runner, store, archive, cfg.WorkspaceCwd, domain.Mode(cfg.DefaultMode), log)
	return router, cleanup, nil
}
