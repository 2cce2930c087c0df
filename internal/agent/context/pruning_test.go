package context

import (
	"strings"
	"testing"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

func constCounter(n int) TokenCounter {
	return func(string) int { return n }
}

func newMsg(role models.Role, content string) *models.Message {
	return &models.Message{ID: "m", Role: role, Content: content}
}

func TestPruneMessages_BelowMinPrunableIsNoop(t *testing.T) {
	history := []*models.Message{
		newMsg(models.RoleUser, "hello"),
		newMsg(models.RoleTool, strings.Repeat("x", 40)),
	}
	out := PruneMessages(history, constCounter(10))
	if out[1].Content != history[1].Content {
		t.Fatalf("expected no pruning below MinPrunableTokens threshold")
	}
}

func TestPruneMessages_ClearsOldToolResultsBeyondProtectedTail(t *testing.T) {
	var history []*models.Message
	for i := 0; i < 10; i++ {
		history = append(history, newMsg(models.RoleTool, "old output"))
	}
	history = append(history, newMsg(models.RoleAssistant, "recent"))

	counter := func(s string) int {
		if s == "recent" {
			return ProtectedTailTokens + 1
		}
		return 3000
	}

	out := PruneMessages(history, counter)
	for i := 0; i < 10; i++ {
		if out[i].Content != PrunedPlaceholder {
			t.Fatalf("message %d not pruned: %q", i, out[i].Content)
		}
		if out[i].PrunedAt == nil {
			t.Fatalf("message %d missing PrunedAt", i)
		}
	}
	if out[10].Content != "recent" {
		t.Fatalf("protected tail message was modified")
	}
}

func TestPruneMessages_SkipsAlreadyPruned(t *testing.T) {
	already := newMsg(models.RoleTool, PrunedPlaceholder)
	now := already.CreatedAt
	already.PrunedAt = &now

	history := []*models.Message{already}
	out := PruneMessages(history, constCounter(50000))
	if out[0] != already {
		t.Fatalf("already-pruned message should be left untouched")
	}
}

func TestPruneMessages_OnlyToolMessagesAreCleared(t *testing.T) {
	var history []*models.Message
	for i := 0; i < 10; i++ {
		history = append(history, newMsg(models.RoleUser, "old user turn"))
	}
	history = append(history, newMsg(models.RoleAssistant, "recent"))

	counter := func(s string) int {
		if s == "recent" {
			return ProtectedTailTokens + 1
		}
		return 3000
	}

	out := PruneMessages(history, counter)
	for i := 0; i < 10; i++ {
		if out[i].Content != "old user turn" {
			t.Fatalf("non-tool message should never be cleared, got %q", out[i].Content)
		}
	}
}
