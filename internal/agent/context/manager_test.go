package context

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

func TestReplaceWithSummaryInstallsStub(t *testing.T) {
	m := NewManager("system prompt", 100000, nil)
	m.AddUserMessage("fix the bug")
	m.AddAssistantMessage("working on it", nil)
	m.AddToolResult("c1", "tool output")

	m.ReplaceWithSummary("S")

	history := m.GetMessages()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	wantRoles := []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser}
	for i, role := range wantRoles {
		if history[i].Role != role {
			t.Errorf("history[%d].Role = %s, want %s", i, history[i].Role, role)
		}
	}
	if history[1].Content != "S" {
		t.Errorf("summary message = %q, want S verbatim", history[1].Content)
	}
	if m.SystemPrompt() != "system prompt" {
		t.Error("system prompt must survive compaction")
	}
	if m.LatestUsage().TotalTokens != 0 {
		t.Error("latest usage must reset with the summary")
	}
}

func TestNeedsCompressionThreshold(t *testing.T) {
	m := NewManager("sys", 100000, nil)
	if m.NeedsCompression() {
		t.Error("fresh manager must not need compression")
	}

	m.ReportUsage(models.TokenUsage{TotalTokens: 80000})
	if m.NeedsCompression() {
		t.Error("exactly 0.8x must not trigger (threshold is strict)")
	}

	m.ReportUsage(models.TokenUsage{TotalTokens: 80001})
	if !m.NeedsCompression() {
		t.Error("above 0.8x must trigger")
	}
}

func TestNeedsCompressionWithoutWindow(t *testing.T) {
	m := NewManager("sys", 0, nil)
	m.ReportUsage(models.TokenUsage{TotalTokens: 1 << 30})
	if m.NeedsCompression() {
		t.Error("no context window means no compaction")
	}
}

func TestToolResultPairing(t *testing.T) {
	m := NewManager("sys", 1000, nil)
	m.AddUserMessage("go")
	m.AddAssistantMessage("", []models.ToolCall{{ID: "c1", Name: "read"}, {ID: "c2", Name: "grep"}})
	m.AddToolResult("c1", "one")
	m.AddToolResult("c2", "two")

	history := m.GetMessages()
	calls := history[1].ToolCalls
	results := history[2:]
	if len(calls) != len(results) {
		t.Fatalf("calls = %d, results = %d", len(calls), len(results))
	}
	for i := range calls {
		if results[i].ToolCallID != calls[i].ID {
			t.Errorf("result[%d] answers %q, want %q", i, results[i].ToolCallID, calls[i].ID)
		}
	}
}

func TestPruningPreservesMessageCount(t *testing.T) {
	counter := func(s string) int { return len(s) }
	m := NewManager("sys", 1000000, counter)

	big := make([]byte, 30000)
	for i := range big {
		big[i] = 'x'
	}
	for i := 0; i < 3; i++ {
		m.AddToolResult("c", string(big))
	}
	m.AddUserMessage("recent")

	before := m.GetMessages()
	beforeTokens := 0
	for _, msg := range before {
		beforeTokens += msg.TokenCount
	}

	m.PruneToolOutputs()

	after := m.GetMessages()
	if len(after) != len(before) {
		t.Fatalf("message count changed: %d -> %d", len(before), len(after))
	}
	afterTokens := 0
	pruned := 0
	for _, msg := range after {
		afterTokens += msg.TokenCount
		if msg.PrunedAt != nil {
			pruned++
		}
	}
	if pruned == 0 {
		t.Fatal("expected at least one pruned message")
	}
	if afterTokens >= beforeTokens {
		t.Errorf("token sum did not decrease: %d -> %d", beforeTokens, afterTokens)
	}
}

func TestGetMessagesReturnsCopy(t *testing.T) {
	m := NewManager("sys", 1000, nil)
	m.AddUserMessage("one")
	first := m.GetMessages()
	m.AddUserMessage("two")
	if len(first) != 1 {
		t.Error("previously returned slice must not grow")
	}
}

func TestLoadHistoryRoundTrip(t *testing.T) {
	m := NewManager("sys", 1000, nil)
	m.AddUserMessage("hello")
	m.AddAssistantMessage("", []models.ToolCall{{ID: "c1", Name: "read"}})
	m.AddToolResult("c1", "data")
	saved := m.GetMessages()

	restored := NewManager("sys", 1000, nil)
	restored.LoadHistory(saved)

	if diff := cmp.Diff(saved, restored.GetMessages()); diff != "" {
		t.Errorf("history mismatch after load (-want +got):\n%s", diff)
	}
}
