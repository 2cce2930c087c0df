// Package sessions persists agent run state to disk: one JSON snapshot per
// session under sessions/, and point-in-time checkpoints under
// checkpoints/, both beneath a configured data directory.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

// Store persists and retrieves session snapshots and checkpoints.
type Store interface {
	Save(ctx context.Context, snapshot *models.SessionSnapshot) error
	Load(ctx context.Context, id string) (*models.SessionSnapshot, error)
	List(ctx context.Context) ([]*models.SessionSnapshot, error)
	SaveCheckpoint(ctx context.Context, snapshot *models.SessionSnapshot) (string, error)
	LoadCheckpoint(ctx context.Context, checkpointID string) (*models.SessionSnapshot, error)
}

// NewSessionID returns a fresh RFC-4122 v4 session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// FileStore is the default Store: one JSON file per session, one JSON file
// per checkpoint, both written atomically (temp file + rename) so a crash
// mid-write never leaves a corrupt snapshot behind.
type FileStore struct {
	mu            sync.Mutex
	sessionsDir   string
	checkpointsDir string
}

// NewFileStore returns a Store rooted at dataDir, creating
// dataDir/sessions and dataDir/checkpoints if they do not exist.
func NewFileStore(dataDir string) (*FileStore, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")
	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	// Snapshots hold full transcripts; keep them private to the user.
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		return nil, fmt.Errorf("sessions: creating sessions dir: %w", err)
	}
	if err := os.MkdirAll(checkpointsDir, 0o700); err != nil {
		return nil, fmt.Errorf("sessions: creating checkpoints dir: %w", err)
	}
	return &FileStore{sessionsDir: sessionsDir, checkpointsDir: checkpointsDir}, nil
}

// Save writes snapshot to <data-dir>/sessions/<id>.json, overwriting any
// prior snapshot for the same session.
func (s *FileStore) Save(ctx context.Context, snapshot *models.SessionSnapshot) error {
	if snapshot == nil || snapshot.ID == "" {
		return fmt.Errorf("sessions: snapshot missing id")
	}
	snapshot.UpdatedAt = time.Now()
	return writeJSONAtomic(filepath.Join(s.sessionsDir, snapshot.ID+".json"), snapshot)
}

// Load reads the snapshot for id.
func (s *FileStore) Load(ctx context.Context, id string) (*models.SessionSnapshot, error) {
	var snapshot models.SessionSnapshot
	if err := readJSON(filepath.Join(s.sessionsDir, id+".json"), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// List returns every stored session snapshot, most recently updated first.
func (s *FileStore) List(ctx context.Context) ([]*models.SessionSnapshot, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("sessions: listing sessions dir: %w", err)
	}
	out := make([]*models.SessionSnapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		snapshot, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// SaveCheckpoint writes a timestamped, immutable copy of snapshot and
// returns its checkpoint ID.
func (s *FileStore) SaveCheckpoint(ctx context.Context, snapshot *models.SessionSnapshot) (string, error) {
	if snapshot == nil || snapshot.ID == "" {
		return "", fmt.Errorf("sessions: snapshot missing id")
	}
	s.mu.Lock()
	stamp := time.Now().UTC().Format("20060102T150405.000000000Z")
	s.mu.Unlock()
	checkpointID := fmt.Sprintf("%s_%s", snapshot.ID, stamp)
	path := filepath.Join(s.checkpointsDir, checkpointID+".json")
	if err := writeJSONAtomic(path, snapshot); err != nil {
		return "", err
	}
	return checkpointID, nil
}

// LoadCheckpoint reads a previously saved checkpoint by its full ID.
func (s *FileStore) LoadCheckpoint(ctx context.Context, checkpointID string) (*models.SessionSnapshot, error) {
	var snapshot models.SessionSnapshot
	if err := readJSON(filepath.Join(s.checkpointsDir, checkpointID+".json"), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: marshaling snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("sessions: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sessions: renaming temp file: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sessions: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("sessions: decoding %s: %w", path, err)
	}
	return nil
}
