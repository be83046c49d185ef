package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dbrandt/legate/internal/domain"
)

// indexVersion is the only persisted format this build reads or writes.
const indexVersion = 1

// Record is one persisted session snapshot. Active records are replaced on
// every save; history copies are append-only and never pruned.
type Record struct {
	ID       string      `json:"id"`
	ThreadID string      `json:"threadId"`
	Mode     domain.Mode `json:"mode"`
	Model    string      `json:"model"`
	Cwd      string      `json:"cwd"`
	Title    string      `json:"title,omitempty"`
	SavedAt  time.Time   `json:"savedAt"`
}

// workspaceRecords holds all records for one workspace. Records for one
// workspace are never visible when operating in another.
type workspaceRecords struct {
	ActiveBySessionKey  map[string]Record   `json:"activeBySessionKey"`
	HistoryBySessionKey map[string][]Record `json:"historyBySessionKey"`
}

type indexFile struct {
	Version    int                          `json:"version"`
	UpdatedAt  time.Time                    `json:"updatedAt"`
	Workspaces map[string]*workspaceRecords `json:"workspaces"`
}

func newIndexFile() *indexFile {
	return &indexFile{
		Version:    indexVersion,
		UpdatedAt:  time.Now().UTC(),
		Workspaces: make(map[string]*workspaceRecords),
	}
}

// loadIndex reads and strictly validates the index file, creating a fresh
// template when none exists. Validation failures are fatal: the process must
// not proceed with unvalidated state.
func loadIndex(path string) (*indexFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		idx := newIndexFile()
		if err := saveIndex(path, idx); err != nil {
			return nil, err
		}
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read index %s: %w", path, err)
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("session: index %s is malformed: %w", path, err)
	}
	if idx.Version != indexVersion {
		return nil, fmt.Errorf("session: index %s: version must be %d (got %d)", path, indexVersion, idx.Version)
	}
	if idx.Workspaces == nil {
		return nil, fmt.Errorf("session: index %s: workspaces must be an object", path)
	}
	for cwd, ws := range idx.Workspaces {
		if ws == nil {
			return nil, fmt.Errorf("session: index %s: workspace %q must be an object", path, cwd)
		}
		if ws.ActiveBySessionKey == nil {
			ws.ActiveBySessionKey = make(map[string]Record)
		}
		if ws.HistoryBySessionKey == nil {
			ws.HistoryBySessionKey = make(map[string][]Record)
		}
	}
	return &idx, nil
}

// saveIndex writes atomically: serialize to a temp file in the same
// directory, then rename over the target.
func saveIndex(path string, idx *indexFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("session: create index directory: %w", err)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode index: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.json")
	if err != nil {
		return fmt.Errorf("session: create temp index: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: close temp index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: replace index: %w", err)
	}
	return nil
}

// workspace returns the records for cwd, creating the entry on first use.
func (idx *indexFile) workspace(cwd string) *workspaceRecords {
	ws, ok := idx.Workspaces[cwd]
	if !ok {
		ws = &workspaceRecords{
			ActiveBySessionKey:  make(map[string]Record),
			HistoryBySessionKey: make(map[string][]Record),
		}
		idx.Workspaces[cwd] = ws
	}
	return ws
}
