// Package compaction replaces an agent run's growing message history with
// a single LLM-generated summary once the context manager decides the
// conversation has outgrown its window. Unlike ordinary tool-output
// pruning, compaction is a one-shot, non-streaming call with a fixed
// two-message prompt — it runs rarely and its output becomes the entire
// future context, so its shape is deliberately simple and unconditional.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

// Truncation limits applied to each message's rendered text before it is
// joined into the compaction prompt. An assistant turn gets the largest
// allowance and a tool result a smaller one; a user turn is usually short
// and is cut hardest.
const (
	MaxToolChars      = 2000
	MaxAssistantChars = 3000
	MaxUserChars      = 1500
)

const joiner = "\n\n---\n\n"

const systemPrompt = "You are compacting a coding agent's conversation history into a single " +
	"summary. Preserve the user's goal, decisions made, files touched, and any " +
	"unresolved work. Omit pleasantries and restate facts, not prose."

// Completer performs one non-streaming LLM call. The concrete provider
// (Anthropic, OpenAI, ...) satisfies this with its own request plumbing;
// Compactor only needs the final text and the usage it cost.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, userPrompt string) (string, models.TokenUsage, error)
}

// Compactor turns a message history into a summary via one Completer call.
type Compactor struct {
	completer Completer
}

// New returns a Compactor backed by completer.
func New(completer Completer) *Compactor {
	return &Compactor{completer: completer}
}

// Compact summarizes messages. It returns (nil, nil, nil) when there is
// nothing to summarize — an empty history, one in which no message renders
// any text, or an empty summary from the LLM — rather than treating that
// as an error; callers should skip replacing history in that
// case. A non-nil error means the LLM call itself failed; the caller's
// existing history is left untouched either way, since Compact never
// mutates its input.
func (c *Compactor) Compact(ctx context.Context, messages []*models.Message) (*string, *models.TokenUsage, error) {
	if len(messages) == 0 {
		return nil, nil, nil
	}

	userPrompt := buildUserPrompt(messages)
	if userPrompt == "" {
		return nil, nil, nil
	}

	summary, usage, err := c.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, nil, fmt.Errorf("compaction: %w", err)
	}
	if summary == "" {
		return nil, nil, nil
	}
	return &summary, &usage, nil
}

func buildUserPrompt(messages []*models.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		rendered := renderMessage(msg)
		if rendered == "" {
			continue
		}
		parts = append(parts, rendered)
	}
	return strings.Join(parts, joiner)
}

func renderMessage(msg *models.Message) string {
	switch msg.Role {
	case models.RoleTool:
		return "[tool result]\n" + truncate(msg.Content, MaxToolChars)
	case models.RoleAssistant:
		text := truncate(msg.Content, MaxAssistantChars)
		if text == "" && len(msg.ToolCalls) > 0 {
			names := make([]string, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				names[i] = tc.Name
			}
			return "[assistant called: " + strings.Join(names, ", ") + "]"
		}
		return "[assistant]\n" + text
	case models.RoleUser:
		return "[user]\n" + truncate(msg.Content, MaxUserChars)
	default:
		return ""
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
