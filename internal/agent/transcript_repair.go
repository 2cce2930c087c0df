package agent

import "github.com/haasonsaas/ai-agent/pkg/models"

// repairTranscript restores tool-call/tool-result pairing in a loaded
// history. A session resumed after a crash mid-turn can have an assistant
// message whose tool calls were never answered, or (more rarely) a tool
// message whose call was dropped; either breaks the strict alternation the
// turn loop and most LLM providers require. Unanswered calls are dropped
// from the assistant message; answered-but-orphaned tool messages are
// dropped entirely.
func repairTranscript(history []*models.Message) []*models.Message {
	if len(history) == 0 {
		return history
	}

	pending := make(map[string]struct{})
	repaired := make([]*models.Message, 0, len(history))

	for _, msg := range history {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case models.RoleAssistant:
			for k := range pending {
				delete(pending, k)
			}
			if len(msg.ToolCalls) > 0 {
				for _, call := range msg.ToolCalls {
					if call.ID != "" {
						pending[call.ID] = struct{}{}
					}
				}
			}
			repaired = append(repaired, msg)
		case models.RoleTool:
			if _, ok := pending[msg.ToolCallID]; !ok {
				continue
			}
			delete(pending, msg.ToolCallID)
			repaired = append(repaired, msg)
		default:
			repaired = append(repaired, msg)
		}
	}

	return dropUnansweredToolCalls(repaired)
}

// dropUnansweredToolCalls strips, from every assistant message, the tool
// calls that never received a matching tool result, which would
// otherwise replay as a dangling call with no answer.
func dropUnansweredToolCalls(history []*models.Message) []*models.Message {
	answered := make(map[string]bool)
	for _, msg := range history {
		if msg != nil && msg.Role == models.RoleTool {
			answered[msg.ToolCallID] = true
		}
	}

	out := make([]*models.Message, 0, len(history))
	for _, msg := range history {
		if msg == nil || msg.Role != models.RoleAssistant || len(msg.ToolCalls) == 0 {
			out = append(out, msg)
			continue
		}
		kept := make([]models.ToolCall, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			if answered[call.ID] {
				kept = append(kept, call)
			}
		}
		if len(kept) == len(msg.ToolCalls) {
			out = append(out, msg)
			continue
		}
		clone := msg.Clone()
		clone.ToolCalls = kept
		out = append(out, clone)
	}
	return out
}
