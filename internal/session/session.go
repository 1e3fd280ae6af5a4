// Package session stores and restores an opaque snapshot of the pane
// registry: layout, sizes, cwds, and titles. The on-disk byte layout is a
// private implementation detail; callers only ever see a path in and a pane
// count out.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ehrlich-b/crux/internal/protocol"
	"github.com/ehrlich-b/crux/internal/registry"
)

// PaneSnapshot is one pane's persisted layout metadata.
type PaneSnapshot struct {
	PaneID   protocol.PaneID  `json:"pane_id"`
	ParentID *protocol.PaneID `json:"parent_id,omitempty"`
	Title    string           `json:"title"`
	Cwd      *string          `json:"cwd,omitempty"`
	Rows     uint32           `json:"rows"`
	Cols     uint32           `json:"cols"`
}

// Snapshot is the full opaque payload persisted by crux:session/save.
type Snapshot struct {
	Panes []PaneSnapshot `json:"panes"`
}

// SnapshotRegistry captures the registry's current pane tree.
func SnapshotRegistry(reg *registry.Registry) Snapshot {
	entries := reg.List()
	out := Snapshot{Panes: make([]PaneSnapshot, 0, len(entries))}
	for _, e := range entries {
		snap := e.Pane.Content()
		out.Panes = append(out.Panes, PaneSnapshot{
			PaneID:   e.PaneID,
			ParentID: e.ParentID,
			Title:    e.Title,
			Cwd:      e.Cwd,
			Rows:     uint32(snap.Rows),
			Cols:     uint32(snap.Cols),
		})
	}
	return out
}

// Store persists session snapshots as single-row opaque blobs keyed by path.
type Store struct {
	db *sql.DB
}

// DefaultPath returns $XDG_STATE_HOME/crux/sessions.db, falling back to
// $HOME/.local/state when XDG_STATE_HOME is unset.
func DefaultPath() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, "crux", "sessions.db")
}

// Open opens (creating if necessary) the sqlite database at dsn.
func Open(dsn string) (*Store, error) {
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		path TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save marshals snap and upserts it under path (or "default" when path is
// nil), returning the key it was stored under.
func (s *Store) Save(path *string, snap Snapshot) (string, error) {
	key := "default"
	if path != nil && *path != "" {
		key = *path
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO sessions (path, payload, saved_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`, key, payload)
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	return key, nil
}

// Load retrieves the snapshot stored under path (or "default" when path is
// nil).
func (s *Store) Load(path *string) (Snapshot, error) {
	key := "default"
	if path != nil && *path != "" {
		key = *path
	}
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM sessions WHERE path = ?", key).Scan(&payload)
	if err == sql.ErrNoRows {
		return Snapshot{}, fmt.Errorf("no session saved at %q", key)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
