package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	snapshot := &models.SessionSnapshot{
		ID:        NewSessionID(),
		CreatedAt: time.Now(),
		TurnCount: 2,
		Messages: []*models.Message{
			{ID: "m1", Role: models.RoleUser, Content: "hello"},
			{ID: "m2", Role: models.RoleAssistant, Content: "hi"},
		},
		TotalUsage: models.TokenUsage{TotalTokens: 10},
	}

	if err := store.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, snapshot.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != snapshot.ID || loaded.TurnCount != 2 || len(loaded.Messages) != 2 {
		t.Fatalf("loaded snapshot mismatch: %+v", loaded)
	}
}

func TestFileStore_List(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		snapshot := &models.SessionSnapshot{ID: NewSessionID(), CreatedAt: time.Now()}
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all))
	}
}

func TestFileStore_CheckpointRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	snapshot := &models.SessionSnapshot{ID: NewSessionID(), TurnCount: 5}
	checkpointID, err := store.SaveCheckpoint(ctx, snapshot)
	if err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	loaded, err := store.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.TurnCount != 5 {
		t.Fatalf("expected TurnCount 5, got %d", loaded.TurnCount)
	}
}

func TestFileStore_LoadMissingSessionErrors(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Load(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected an error loading a missing session")
	}
}
