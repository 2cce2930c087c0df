package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/internal/backoff"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

var openaiRetryPolicy = backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 4000, Factor: 2, Jitter: 0}

// OpenAIProvider implements agent.LLMProvider against the Chat Completions
// API, for use as a drop-in alternative backend alongside AnthropicProvider.
type OpenAIProvider struct {
	client       *openai.Client
	maxRetries   int
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	DefaultModel string
}

// NewOpenAIProvider builds a provider from config, applying defaults for
// MaxRetries (3) and DefaultModel (gpt-4o).
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientCfg.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		maxRetries:   config.MaxRetries,
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (p *OpenAIProvider) Name() string { return "openai" }

// Models returns the GPT models this provider can serve.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000, SupportsVision: true},
	}
}

// SupportsTools reports that GPT accepts function-tool definitions.
func (p *OpenAIProvider) SupportsTools() bool { return true }

// Stream sends req and returns a channel of StreamEvents describing the
// response as OpenAI generates it.
func (p *OpenAIProvider) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.StreamEvent, error) {
	events := make(chan *agent.StreamEvent, 16)

	go func() {
		defer close(events)

		chatReq := p.buildRequest(req)

		// RetryWithBackoff counts attempts: the first try plus maxRetries retries.
		result, err := backoff.RetryWithBackoff(ctx, openaiRetryPolicy, p.maxRetries+1, func(attempt int) (*openai.ChatCompletionStream, error) {
			return p.client.CreateChatCompletionStream(ctx, chatReq)
		})
		if err != nil {
			events <- &agent.StreamEvent{Type: agent.StreamEventError, Err: fmt.Errorf("openai: %w", err)}
			return
		}

		p.processStream(result.Value, events)
	}()

	return events, nil
}

func (p *OpenAIProvider) buildRequest(req *agent.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, toOpenAIMessage(msg))
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.getModel(req.Model),
		Messages:    messages,
		MaxTokens:   p.getMaxTokens(req.MaxTokens),
		Temperature: float32(req.Temperature),
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
	}
	return chatReq
}

func toOpenAIMessage(msg agent.CompletionMessage) openai.ChatCompletionMessage {
	switch msg.Role {
	case "tool":
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: msg.Content, ToolCallID: msg.ToolCallID}
	case "assistant":
		out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Input),
				},
			})
		}
		return out
	default:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content}
	}
}

func toOpenAITools(tools []*agent.Tool) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var params map[string]any
		_ = json.Unmarshal(tool.Schema(), &params)
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  params,
			},
		})
	}
	return result
}

// openaiToolCall tracks one tool call being assembled across stream
// chunks, keyed by the delta's index since OpenAI does not repeat the
// call's id on every fragment.
type openaiToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

func (p *OpenAIProvider) processStream(stream *openai.ChatCompletionStream, events chan<- *agent.StreamEvent) {
	defer stream.Close()

	calls := map[int]*openaiToolCall{}
	order := []int{}
	var usage models.TokenUsage

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			events <- &agent.StreamEvent{Type: agent.StreamEventError, Err: fmt.Errorf("openai: %w", err), Retryable: isOpenAIRetryable(err)}
			return
		}

		if resp.Usage != nil {
			usage = models.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			events <- &agent.StreamEvent{Type: agent.StreamEventTextDelta, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &openaiToolCall{}
				calls[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
				events <- &agent.StreamEvent{Type: agent.StreamEventToolCallStart, ToolCallID: call.id, ToolName: call.name}
			}
			if tc.Function.Arguments != "" {
				call.arguments.WriteString(tc.Function.Arguments)
				events <- &agent.StreamEvent{Type: agent.StreamEventToolCallDelta, ToolCallID: call.id, ToolArgsDelta: tc.Function.Arguments}
			}
		}

		if resp.Choices[0].FinishReason != "" {
			for _, idx := range order {
				call := calls[idx]
				events <- &agent.StreamEvent{
					Type:             agent.StreamEventToolCallComplete,
					ToolCallID:       call.id,
					ToolName:         call.name,
					ToolCallComplete: &models.ToolCall{ID: call.id, Name: call.name, Input: parseToolInput(call.arguments.String())},
				}
			}
			events <- &agent.StreamEvent{Type: agent.StreamEventMessageComplete, FinishReason: string(resp.Choices[0].FinishReason), Usage: usage}
			return
		}
	}

	events <- &agent.StreamEvent{Type: agent.StreamEventMessageComplete, FinishReason: "stop", Usage: usage}
}

func (p *OpenAIProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *OpenAIProvider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

func isOpenAIRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"rate limit", "429", "timeout", "connection reset", "connection refused"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
