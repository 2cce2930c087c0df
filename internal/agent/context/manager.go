package context

import (
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

// CompactionThreshold is the fraction of the model's context window at
// which Manager reports that compaction is due.
const CompactionThreshold = 0.8

// Manager owns one agent run's message history: the immutable system
// prompt, the growing transcript, and the token accounting that drives
// pruning and compaction. Not safe for concurrent use from more than one
// turn loop at a time, but safe to read (GetMessages) while another
// goroutine reports usage.
type Manager struct {
	mu            sync.Mutex
	systemPrompt  string
	messages      []*models.Message
	contextWindow int
	latestUsage   models.TokenUsage
	counter       TokenCounter
}

// NewManager returns a Manager seeded with an immutable system prompt and
// the model's context window size (used only to evaluate NeedsCompression).
func NewManager(systemPrompt string, contextWindow int, counter TokenCounter) *Manager {
	if counter == nil {
		counter = EstimateTokens
	}
	return &Manager{
		systemPrompt:  systemPrompt,
		contextWindow: contextWindow,
		counter:       counter,
	}
}

// SystemPrompt returns the immutable system prompt.
func (m *Manager) SystemPrompt() string {
	return m.systemPrompt
}

// ContextWindow returns the model's context window size this Manager was
// constructed with, used by a sub-agent to size its own Manager the same
// way as its parent.
func (m *Manager) ContextWindow() int {
	return m.contextWindow
}

// AddUserMessage appends a user-authored message and returns it.
func (m *Manager) AddUserMessage(content string) *models.Message {
	return m.append(&models.Message{
		Role:    models.RoleUser,
		Content: content,
	})
}

// AddAssistantMessage appends an assistant message, optionally carrying
// tool calls the invocation pipeline must still resolve.
func (m *Manager) AddAssistantMessage(content string, toolCalls []models.ToolCall) *models.Message {
	return m.append(&models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResult appends the tool message answering toolCallID.
func (m *Manager) AddToolResult(toolCallID, content string) *models.Message {
	return m.append(&models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
	})
}

func (m *Manager) append(msg *models.Message) *models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.TokenCount = m.counter(msg.Content)
	m.messages = append(m.messages, msg)
	return msg
}

// GetMessages returns the current transcript. The slice is owned by the
// caller; Manager never mutates a previously-returned slice in place.
func (m *Manager) GetMessages() []*models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ReportUsage records the most recent turn's token usage, used by
// NeedsCompression.
func (m *Manager) ReportUsage(usage models.TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestUsage = usage
}

// LatestUsage returns the most recently reported usage.
func (m *Manager) LatestUsage() models.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestUsage
}

// NeedsCompression reports whether the latest reported usage exceeds
// CompactionThreshold of the context window.
func (m *Manager) NeedsCompression() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contextWindow <= 0 {
		return false
	}
	return float64(m.latestUsage.TotalTokens) > CompactionThreshold*float64(m.contextWindow)
}

// PruneToolOutputs runs the token-based pruning pass over the current
// transcript in place.
func (m *Manager) PruneToolOutputs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = PruneMessages(m.messages, m.counter)
}

// ReplaceWithSummary discards the full transcript and installs the fixed
// three-message stub compaction produces: the original user request is
// gone, replaced by a synthetic exchange carrying the summary text so the
// model still has continuity without the pruned history.
func (m *Manager) ReplaceWithSummary(summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = []*models.Message{
		{ID: uuid.NewString(), Role: models.RoleUser, Content: "Summarize the conversation so far.", TokenCount: m.counter("Summarize the conversation so far.")},
		{ID: uuid.NewString(), Role: models.RoleAssistant, Content: summary, TokenCount: m.counter(summary)},
		{ID: uuid.NewString(), Role: models.RoleUser, Content: "Continue from the summary above.", TokenCount: m.counter("Continue from the summary above.")},
	}
	m.latestUsage = models.TokenUsage{}
}

// LoadHistory replaces the transcript with messages loaded from storage,
// e.g. when resuming a session. The caller is responsible for any repair
// the loaded history needs (unanswered tool calls, orphaned tool results)
// before calling this.
func (m *Manager) LoadHistory(messages []*models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append([]*models.Message(nil), messages...)
}

// Clear empties the transcript entirely, leaving the system prompt intact.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.latestUsage = models.TokenUsage{}
}
