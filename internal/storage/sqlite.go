// Package storage persists game save slots and player progression. The
// sqlite store backs the server; the memory store backs tests and
// ephemeral sessions.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trashgame/trash-server-go/internal/game"
	"github.com/trashgame/trash-server-go/internal/game/progression"
)

const schema = `
CREATE TABLE IF NOT EXISTS save_slots (
	save_id    TEXT PRIMARY KEY,
	snapshot   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS player_progress (
	player_id  TEXT PRIMARY KEY,
	progress   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLiteStore implements game.Store on a single sqlite database file.
// Snapshots and progression records are stored as JSON documents keyed by
// save id and player id.
type SQLiteStore struct {
	db *sql.DB
}

var _ game.Store = (*SQLiteStore)(nil)

// Open opens (or creates) the sqlite database at path and applies the
// schema. The DSN enables WAL, foreign keys and a busy timeout so the
// gateway and controller can share the handle.
func Open(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database. Nil-safe so callers can defer it
// in all startup paths.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot upserts the snapshot under the save id.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, saveID string, state *game.GameState) error {
	if saveID == "" {
		return fmt.Errorf("save id is required")
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO save_slots (save_id, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(save_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		saveID, string(blob), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", saveID, err)
	}
	return nil
}

// LoadSnapshot fetches and decodes the snapshot for the save id.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, saveID string) (*game.GameState, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM save_slots WHERE save_id = ?`, saveID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("save %q not found", saveID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", saveID, err)
	}
	var state game.GameState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", saveID, err)
	}
	return &state, nil
}

// SaveProgress upserts the player's progression record.
func (s *SQLiteStore) SaveProgress(ctx context.Context, p *progression.Progress) error {
	if p == nil || p.PlayerID == "" {
		return fmt.Errorf("progress with player id is required")
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO player_progress (player_id, progress, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			progress = excluded.progress,
			updated_at = excluded.updated_at`,
		p.PlayerID, string(blob), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save progress for %q: %w", p.PlayerID, err)
	}
	return nil
}

// LoadProgress fetches and decodes the player's progression record.
func (s *SQLiteStore) LoadProgress(ctx context.Context, playerID string) (*progression.Progress, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT progress FROM player_progress WHERE player_id = ?`, playerID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("progress for %q not found", playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load progress for %q: %w", playerID, err)
	}
	var p progression.Progress
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return nil, fmt.Errorf("decode progress for %q: %w", playerID, err)
	}
	return &p, nil
}

// ListSaves returns all save ids, newest first.
func (s *SQLiteStore) ListSaves(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT save_id FROM save_slots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan save id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
