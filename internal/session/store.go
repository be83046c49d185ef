// Package session owns the per-conversation session map, the per-key
// serialization locks, and the persisted index.
//
// The index file assumes a single writer process; concurrent processes
// sharing the same file are not coordinated.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/logging"
)

// Store maps session keys to active sessions for one workspace, mirroring
// every change into the persisted index.
type Store struct {
	path      string
	workspace string
	log       *logging.Logger
	locks     *keyedLocks

	mu       sync.Mutex
	sessions map[string]domain.Session
	index    *indexFile
}

// Open loads the index at path and hydrates the active records for the given
// workspace. Records belonging to other workspaces stay on disk untouched.
func Open(path, workspace string, log *logging.Logger) (*Store, error) {
	idx, err := loadIndex(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:      path,
		workspace: workspace,
		log:       log.Named("session"),
		locks:     newKeyedLocks(),
		sessions:  make(map[string]domain.Session),
		index:     idx,
	}

	if ws, ok := idx.Workspaces[workspace]; ok {
		for key, rec := range ws.ActiveBySessionKey {
			s.sessions[key] = domain.Session{
				ThreadID: rec.ThreadID,
				Mode:     rec.Mode,
				Model:    rec.Model,
				Cwd:      rec.Cwd,
				Title:    rec.Title,
			}
		}
	}

	s.log.Debug().Str("path", path).Str("workspace", workspace).Int("active", len(s.sessions)).Msg("session index loaded")
	return s, nil
}

// WithLock runs fn while holding the per-key lock. Calls under the same key
// execute strictly in order, success or failure alike; calls under distinct
// keys proceed concurrently.
func (s *Store) WithLock(key string, fn func() error) error {
	e := s.locks.acquire(key)
	defer s.locks.release(key, e)
	return fn()
}

// Get returns the active session for key, or nil.
func (s *Store) Get(key string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return &sess
	}
	return nil
}

// Set stores the session for key and persists it: the active record is
// replaced and a copy is appended to the key's history.
func (s *Store) Set(key string, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[key] = sess

	now := time.Now().UTC()
	rec := Record{
		ID:       ulid.Make().String(),
		ThreadID: sess.ThreadID,
		Mode:     sess.Mode,
		Model:    sess.Model,
		Cwd:      sess.Cwd,
		Title:    sess.Title,
		SavedAt:  now,
	}

	ws := s.index.workspace(s.workspace)
	ws.ActiveBySessionKey[key] = rec
	ws.HistoryBySessionKey[key] = append(ws.HistoryBySessionKey[key], rec)
	s.index.UpdatedAt = now

	return saveIndex(s.path, s.index)
}

// Clear removes the active session for key, leaving history untouched.
// Nothing is written when there was nothing to remove.
func (s *Store) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, inMemory := s.sessions[key]
	delete(s.sessions, key)

	changed := inMemory
	if ws, ok := s.index.Workspaces[s.workspace]; ok {
		if _, onDisk := ws.ActiveBySessionKey[key]; onDisk {
			delete(ws.ActiveBySessionKey, key)
			changed = true
		}
	}

	if !changed {
		return nil
	}
	s.index.UpdatedAt = time.Now().UTC()
	return saveIndex(s.path, s.index)
}

// Active returns the current workspace's active sessions, keyed by session
// key, sorted stably for display.
func (s *Store) Active() []ActiveEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]ActiveEntry, 0, len(s.sessions))
	for key, sess := range s.sessions {
		entries = append(entries, ActiveEntry{Key: key, Session: sess})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// ActiveEntry pairs a session key with its active session.
type ActiveEntry struct {
	Key     string
	Session domain.Session
}

// History returns the persisted history records for key in this workspace.
func (s *Store) History(key string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.index.Workspaces[s.workspace]
	if !ok {
		return nil
	}
	recs := ws.HistoryBySessionKey[key]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}
