package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

// ToolKind classifies a tool for mutation gating and display. The kind
// decides the default mutating policy: write, shell, network, and memory
// tools mutate unless the tool overrides per-invocation.
type ToolKind string

const (
	ToolKindRead    ToolKind = "read"
	ToolKindWrite   ToolKind = "write"
	ToolKindShell   ToolKind = "shell"
	ToolKindNetwork ToolKind = "network"
	ToolKindMemory  ToolKind = "memory"
	ToolKindMCP     ToolKind = "mcp"
)

// kindMutatesByDefault reports the default mutation policy for a kind.
func kindMutatesByDefault(kind ToolKind) bool {
	switch kind {
	case ToolKindWrite, ToolKindShell, ToolKindNetwork, ToolKindMemory:
		return true
	default:
		return false
	}
}

// Tool is a tagged record rather than a classic method-set interface: the
// same shape serves a built-in Go tool, an MCP-bridged tool, and a
// sub-agent, each supplying only the functions relevant to it. Mutating
// and Confirmation are per-invocation, not per-tool, because whether a
// call mutates (e.g. a shell command that might be "ls" or "rm") can
// depend on its arguments.
type Tool struct {
	ToolName        string
	ToolDescription string
	Kind            ToolKind
	ParameterSchema json.RawMessage

	// Invoke executes the tool and must never panic; a recoverable failure
	// is a ToolResult with Success=false, not a Go error. A returned error
	// signals something the invocation pipeline itself could not continue
	// past (e.g. a context cancellation).
	Invoke func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)

	// Mutating reports whether a specific call changes state outside the
	// conversation (filesystem, shell, network). A nil Mutating falls back
	// to the kind's default policy.
	Mutating func(args json.RawMessage) bool

	// Confirmation describes a mutating call for the approval engine and,
	// when the policy needs one, a human. A nil Confirmation means the
	// call carries no richer description than its raw arguments.
	Confirmation func(args json.RawMessage) *models.ToolConfirmation
}

// Name returns the tool's registry key.
func (t *Tool) Name() string { return t.ToolName }

// Description returns the tool's natural-language description for the LLM.
func (t *Tool) Description() string { return t.ToolDescription }

// Schema returns the tool's JSON Schema parameter definition.
func (t *Tool) Schema() json.RawMessage { return t.ParameterSchema }

// IsMutating evaluates Mutating for a specific call's arguments, falling
// back to the kind's default policy when the tool defines none.
func (t *Tool) IsMutating(args json.RawMessage) bool {
	if t.Mutating == nil {
		return kindMutatesByDefault(t.Kind)
	}
	return t.Mutating(args)
}

// GetConfirmation evaluates Confirmation for a specific call's arguments.
// A mutating invocation with no tool-supplied builder gets a default
// confirmation carrying a one-line description and no diff; non-mutating
// invocations never get one.
func (t *Tool) GetConfirmation(args json.RawMessage) *models.ToolConfirmation {
	if !t.IsMutating(args) {
		return nil
	}
	if t.Confirmation != nil {
		return t.Confirmation(args)
	}
	var arguments map[string]any
	_ = json.Unmarshal(args, &arguments)
	return &models.ToolConfirmation{
		ToolName:    t.ToolName,
		Arguments:   arguments,
		Description: "Run " + t.ToolName,
	}
}

// LLMProvider is the provider-neutral interface every concrete backend
// (Anthropic, OpenAI, ...) implements. A single Stream call both sends the
// request and returns the channel of events describing the response as it
// arrives; callers never poll.
type LLMProvider interface {
	// Stream sends req and returns a channel of StreamEvents describing the
	// response as it is generated. The channel is closed after a
	// MESSAGE_COMPLETE or ERROR event.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error)

	// Name returns the provider's identifier (e.g. "anthropic", "openai").
	Name() string

	// Models returns the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether this provider can accept Tools in a
	// CompletionRequest.
	SupportsTools() bool
}

// CompletionRequest is a single provider-neutral turn request.
type CompletionRequest struct {
	Model     string               `json:"model"`
	System    string               `json:"system,omitempty"`
	Messages  []CompletionMessage  `json:"messages"`
	Tools     []*Tool              `json:"-"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

// CompletionMessage is one provider-neutral message in a request's history.
type CompletionMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// StreamEventType identifies the kind of event a provider emits while
// streaming a single completion.
type StreamEventType string

const (
	StreamEventTextDelta       StreamEventType = "TEXT_DELTA"
	StreamEventToolCallStart   StreamEventType = "TOOL_CALL_START"
	StreamEventToolCallDelta   StreamEventType = "TOOL_CALL_DELTA"
	StreamEventToolCallComplete StreamEventType = "TOOL_CALL_COMPLETE"
	StreamEventMessageComplete StreamEventType = "MESSAGE_COMPLETE"
	StreamEventError           StreamEventType = "ERROR"
)

// StreamEvent is the single discriminated-union event a provider emits.
// Only the fields relevant to Type are populated.
type StreamEvent struct {
	Type StreamEventType

	// TEXT_DELTA
	TextDelta string

	// TOOL_CALL_START / TOOL_CALL_DELTA / TOOL_CALL_COMPLETE
	ToolCallID        string
	ToolName          string
	ToolArgsDelta     string
	ToolCallComplete  *models.ToolCall

	// MESSAGE_COMPLETE
	FinishReason string
	Usage        models.TokenUsage

	// ERROR
	Err       error
	Retryable bool
}

// Model describes an LLM model a provider can serve.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextWindow  int    `json:"context_window"`
	SupportsVision bool   `json:"supports_vision"`
}
