// Package providers implements LLM provider integrations for the agent
// engine. Each provider adapts a concrete SDK to the provider-neutral
// agent.LLMProvider interface: Stream sends a CompletionRequest and
// returns a channel of StreamEvents describing the response as Anthropic
// (or another backend) generates it.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/internal/agent/toolconv"
	"github.com/haasonsaas/ai-agent/internal/backoff"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// anthropicRetryPolicy reproduces the engine's 1s/2s/4s retry schedule on
// top of the shared backoff package rather than a hand-rolled math.Pow
// loop.
var anthropicRetryPolicy = backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 4000, Factor: 2, Jitter: 0}

// AnthropicProvider implements agent.LLMProvider against Claude's Messages
// API. It is safe for concurrent use; each Stream call owns its own SSE
// connection and goroutine.
type AnthropicProvider struct {
	client anthropic.Client

	maxRetries   int
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider. APIKey is required;
// every other field has a default applied by NewAnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	DefaultModel string
}

// NewAnthropicProvider builds a provider from config, applying defaults
// for MaxRetries (3) and DefaultModel (claude-sonnet-4-20250514).
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		maxRetries:   config.MaxRetries,
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Models returns the Claude models this provider can serve.
func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextWindow: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextWindow: 200000, SupportsVision: true},
	}
}

// SupportsTools reports that Claude accepts tool definitions.
func (p *AnthropicProvider) SupportsTools() bool { return true }

// Stream sends req to Claude and returns a channel of StreamEvents. The
// channel is always closed, and always preceded by exactly one
// MESSAGE_COMPLETE or ERROR event as its last entry.
func (p *AnthropicProvider) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.StreamEvent, error) {
	events := make(chan *agent.StreamEvent, 16)

	go func() {
		defer close(events)

		// RetryWithBackoff counts attempts: the first try plus maxRetries retries.
		result, err := backoff.RetryWithBackoff(ctx, anthropicRetryPolicy, p.maxRetries+1, func(attempt int) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
			stream, err := p.createStream(ctx, req)
			if err != nil {
				return nil, err
			}
			return stream, nil
		})
		if err != nil {
			events <- &agent.StreamEvent{Type: agent.StreamEventError, Err: fmt.Errorf("anthropic: %w", err)}
			return
		}

		p.processStream(result.Value, events, p.getModel(req.Model))
	}()

	return events, nil
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *agent.CompletionRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

// maxEmptyStreamEvents guards against a malformed stream that floods
// events carrying nothing this provider recognises.
const maxEmptyStreamEvents = 300

// processStream drains an Anthropic SSE stream, converting Claude's
// content-block event sequence into the engine's StreamEvent union. Tool
// calls arrive as content_block_start (id, name) followed by zero or more
// content_block_delta events carrying partial input JSON, finalized on
// content_block_stop.
func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- *agent.StreamEvent, model string) {
	var currentCallID, currentCallName string
	var currentInput strings.Builder
	inToolUse := false
	emptyEvents := 0

	var usage models.TokenUsage

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			usage.PromptTokens = int(ms.Message.Usage.InputTokens)
			usage.CachedTokens = int(ms.Message.Usage.CacheReadInputTokens)
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentCallID = toolUse.ID
				currentCallName = toolUse.Name
				currentInput.Reset()
				inToolUse = true
				events <- &agent.StreamEvent{Type: agent.StreamEventToolCallStart, ToolCallID: currentCallID, ToolName: currentCallName}
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					events <- &agent.StreamEvent{Type: agent.StreamEventTextDelta, TextDelta: delta.Text}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
					events <- &agent.StreamEvent{Type: agent.StreamEventToolCallDelta, ToolCallID: currentCallID, ToolArgsDelta: delta.PartialJSON}
					processed = true
				}
			}

		case "content_block_stop":
			if inToolUse {
				call := &models.ToolCall{ID: currentCallID, Name: currentCallName, Input: parseToolInput(currentInput.String())}
				events <- &agent.StreamEvent{Type: agent.StreamEventToolCallComplete, ToolCallID: currentCallID, ToolName: currentCallName, ToolCallComplete: call}
				inToolUse = false
				processed = true
			}

		case "message_delta":
			md := event.AsMessageDelta()
			usage.CompletionTokens = int(md.Usage.OutputTokens)
			processed = true

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			events <- &agent.StreamEvent{Type: agent.StreamEventMessageComplete, FinishReason: "stop", Usage: usage}
			return

		case "error":
			events <- &agent.StreamEvent{Type: agent.StreamEventError, Err: fmt.Errorf("anthropic stream error"), Retryable: true}
			return
		}

		if processed {
			emptyEvents = 0
		} else if emptyEvents++; emptyEvents >= maxEmptyStreamEvents {
			events <- &agent.StreamEvent{Type: agent.StreamEventError, Err: fmt.Errorf("anthropic: stream appears malformed after %d empty events", emptyEvents)}
			return
		}
	}

	if err := stream.Err(); err != nil {
		events <- &agent.StreamEvent{Type: agent.StreamEventError, Err: fmt.Errorf("anthropic: %w", err), Retryable: isRetryableErr(err)}
		return
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	events <- &agent.StreamEvent{Type: agent.StreamEventMessageComplete, FinishReason: "stop", Usage: usage}
}

// parseToolInput turns accumulated partial JSON into a tool call's Input.
// A provider that emits unparseable JSON still gets a usable call: the
// raw text is preserved under a synthetic key rather than dropped.
func parseToolInput(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("{}")
	}
	var probe map[string]any
	if json.Unmarshal([]byte(raw), &probe) == nil {
		return json.RawMessage(raw)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw_arguments": raw})
	return wrapped
}

func (p *AnthropicProvider) convertMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "tool":
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case "assistant":
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input map[string]any
				if len(call.Input) > 0 {
					if err := json.Unmarshal(call.Input, &input); err != nil {
						return nil, fmt.Errorf("invalid tool call input for %s: %w", call.Name, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result, nil
}

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	msg := err.Error()
	for _, marker := range []string{"rate_limit", "429", "too many requests", "timeout", "deadline exceeded", "connection reset", "connection refused", "no such host", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
