// Package context implements message-history management for an agent run:
// token-based pruning of stale tool output and the compaction trigger that
// hands off to the summarizer when a conversation outgrows its window.
package context

import (
	"time"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

// ProtectedTailTokens is the number of trailing tokens (counting from the
// newest message backward) that pruning never touches, regardless of how
// large the conversation has grown.
const ProtectedTailTokens = 40000

// MinPrunableTokens is the minimum number of candidate tokens that must be
// eligible before a pruning pass does anything. Below this, clearing a
// handful of old tool results isn't worth the lost context.
const MinPrunableTokens = 20000

// PrunedPlaceholder replaces a pruned tool result's content.
const PrunedPlaceholder = "[Old tool result content cleared]"

// TokenCounter estimates the token count of a string. Swap in a real model
// tokenizer; the default is the conventional chars/4 estimate.
type TokenCounter func(text string) int

// EstimateTokens approximates token count at four characters per token.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// PruneMessages walks messages newest-first, protecting the trailing
// ProtectedTailTokens tokens from change. Everything older than the
// protected tail is a pruning candidate; tool-result messages among the
// candidates have their content replaced with PrunedPlaceholder and their
// token count recomputed, provided the candidate token total reaches
// MinPrunableTokens. A message already bearing PrunedAt is left alone and
// does not extend the scan — once pruned, always skipped.
//
// Messages is returned unmodified (same slice, same pointers) when no
// pruning is necessary; otherwise a new slice with cloned, mutated entries
// is returned so callers holding the original transcript are unaffected.
func PruneMessages(messages []*models.Message, counter TokenCounter) []*models.Message {
	if len(messages) == 0 {
		return messages
	}
	if counter == nil {
		counter = EstimateTokens
	}

	tailTokens := 0
	cutoff := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg == nil {
			continue
		}
		tokens := messageTokens(msg, counter)
		if tailTokens+tokens > ProtectedTailTokens {
			cutoff = i + 1
			break
		}
		tailTokens += tokens
		cutoff = i
	}

	if cutoff <= 0 {
		return messages
	}

	candidateTokens := 0
	for i := 0; i < cutoff; i++ {
		msg := messages[i]
		if msg == nil || msg.PrunedAt != nil {
			continue
		}
		candidateTokens += messageTokens(msg, counter)
	}
	if candidateTokens < MinPrunableTokens {
		return messages
	}

	out := make([]*models.Message, len(messages))
	copy(out, messages)
	changed := false
	now := time.Now()

	for i := 0; i < cutoff; i++ {
		msg := messages[i]
		if msg == nil || msg.Role != models.RoleTool || msg.PrunedAt != nil {
			continue
		}
		clone := msg.Clone()
		clone.Content = PrunedPlaceholder
		clone.TokenCount = counter(PrunedPlaceholder)
		pruned := now
		clone.PrunedAt = &pruned
		out[i] = clone
		changed = true
	}

	if !changed {
		return messages
	}
	return out
}

func messageTokens(msg *models.Message, counter TokenCounter) int {
	if msg.TokenCount > 0 {
		return msg.TokenCount
	}
	return counter(msg.Content)
}
