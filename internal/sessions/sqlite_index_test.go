package sessions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

func TestIndexedStoreListFromIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := NewIndexedStore(dir)
	if err != nil {
		t.Fatalf("NewIndexedStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	first := &models.SessionSnapshot{ID: NewSessionID(), CreatedAt: time.Now(), TurnCount: 1}
	second := &models.SessionSnapshot{ID: NewSessionID(), CreatedAt: time.Now(), TurnCount: 5}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(listed))
	}
	if listed[0].ID != second.ID {
		t.Errorf("expected newest first, got %s", listed[0].ID)
	}
	if listed[0].TurnCount != 5 {
		t.Errorf("TurnCount from index = %d", listed[0].TurnCount)
	}
}

func TestIndexedStoreDropsStaleRows(t *testing.T) {
	dir := t.TempDir()
	store, err := NewIndexedStore(dir)
	if err != nil {
		t.Fatalf("NewIndexedStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	keep := &models.SessionSnapshot{ID: NewSessionID(), CreatedAt: time.Now()}
	gone := &models.SessionSnapshot{ID: NewSessionID(), CreatedAt: time.Now()}
	_ = store.Save(ctx, keep)
	_ = store.Save(ctx, gone)

	if err := os.Remove(filepath.Join(dir, "sessions", gone.ID+".json")); err != nil {
		t.Fatalf("remove snapshot: %v", err)
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != keep.ID {
		t.Fatalf("listed = %+v, want only the surviving session", listed)
	}
}

func TestIndexedStoreBackfillsColdIndex(t *testing.T) {
	dir := t.TempDir()

	// Populate via the plain file store first, as an older build would.
	fileStore, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	snapshot := &models.SessionSnapshot{ID: NewSessionID(), CreatedAt: time.Now(), TurnCount: 3}
	if err := fileStore.Save(context.Background(), snapshot); err != nil {
		t.Fatalf("Save: %v", err)
	}

	store, err := NewIndexedStore(dir)
	if err != nil {
		t.Fatalf("NewIndexedStore: %v", err)
	}
	defer store.Close()

	listed, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != snapshot.ID {
		t.Fatalf("listed = %+v, want backfilled session", listed)
	}
}
