package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

// IndexedStore wraps a FileStore with a SQLite index over session
// metadata. The JSON files remain the source of truth for message
// history; the index only answers List without reading every snapshot
// file, which matters once a data directory has accumulated hundreds of
// sessions. Index writes are best-effort: an index failure never fails
// the underlying save.
type IndexedStore struct {
	*FileStore
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS session_index (
	id           TEXT PRIMARY KEY,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	turn_count   INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS session_index_updated ON session_index (updated_at DESC);
`

// NewIndexedStore opens (creating if needed) sessions.db under dataDir on
// top of a FileStore rooted there.
func NewIndexedStore(dataDir string) (*IndexedStore, error) {
	fileStore, err := NewFileStore(dataDir)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("sessions: open index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: create index schema: %w", err)
	}
	return &IndexedStore{FileStore: fileStore, db: db}, nil
}

// Close releases the index database.
func (s *IndexedStore) Close() error {
	return s.db.Close()
}

// Save persists the snapshot and upserts its index row.
func (s *IndexedStore) Save(ctx context.Context, snapshot *models.SessionSnapshot) error {
	if err := s.FileStore.Save(ctx, snapshot); err != nil {
		return err
	}
	s.upsert(ctx, snapshot)
	return nil
}

func (s *IndexedStore) upsert(ctx context.Context, snapshot *models.SessionSnapshot) {
	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_index (id, created_at, updated_at, turn_count, total_tokens)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			turn_count = excluded.turn_count,
			total_tokens = excluded.total_tokens`,
		snapshot.ID, createdAt, snapshot.UpdatedAt, snapshot.TurnCount, snapshot.TotalUsage.TotalTokens)
	if err != nil {
		// Index drift repairs itself on the next Save or List fallback.
		return
	}
}

// List serves session metadata from the index, newest first. Rows whose
// snapshot file has been deleted out from under the index are dropped and
// cleaned up; an unreadable index falls back to the file scan.
func (s *IndexedStore) List(ctx context.Context) ([]*models.SessionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, turn_count, total_tokens
		FROM session_index ORDER BY updated_at DESC`)
	if err != nil {
		return s.FileStore.List(ctx)
	}
	defer rows.Close()

	var out []*models.SessionSnapshot
	var stale []string
	for rows.Next() {
		var snapshot models.SessionSnapshot
		var totalTokens int
		if err := rows.Scan(&snapshot.ID, &snapshot.CreatedAt, &snapshot.UpdatedAt, &snapshot.TurnCount, &totalTokens); err != nil {
			continue
		}
		snapshot.TotalUsage = models.TokenUsage{TotalTokens: totalTokens}
		if !s.snapshotExists(snapshot.ID) {
			stale = append(stale, snapshot.ID)
			continue
		}
		out = append(out, &snapshot)
	}
	for _, id := range stale {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM session_index WHERE id = ?`, id)
	}
	if len(out) == 0 {
		// Cold index over an existing data directory: backfill from disk.
		snapshots, err := s.FileStore.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, snapshot := range snapshots {
			s.upsert(ctx, snapshot)
		}
		return snapshots, nil
	}
	return out, nil
}

func (s *IndexedStore) snapshotExists(id string) bool {
	_, err := os.Stat(filepath.Join(s.sessionsDir, id+".json"))
	return err == nil
}
