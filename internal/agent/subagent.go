package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	agentcontext "github.com/haasonsaas/ai-agent/internal/agent/context"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// SubAgentDefinition describes one bounded nested agent run, surfaced to
// the parent's model as a single Tool. A sub-agent is not a
// distinct mechanism in the registry: it is a Tool of kind memory whose
// Invoke spins up a fresh Agent sharing the parent's provider but none of
// its mutable state.
type SubAgentDefinition struct {
	Name         string
	Description  string
	GoalPrompt   string
	AllowedTools []string
	MaxTurns     int
	Timeout      time.Duration
}

func (d SubAgentDefinition) sanitized() SubAgentDefinition {
	if d.MaxTurns <= 0 {
		d.MaxTurns = 20
	}
	if d.Timeout <= 0 {
		d.Timeout = 600 * time.Second
	}
	return d
}

var subAgentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"goal": {
			"type": "string",
			"description": "The objective to hand off to the sub-agent."
		}
	},
	"required": ["goal"]
}`)

type subAgentArgs struct {
	Goal string `json:"goal"`
}

// subAgentTermination records why a nested run stopped, independent of
// whether the final text satisfied the caller's goal.
type subAgentTermination string

const (
	subAgentTerminationGoal    subAgentTermination = "goal"
	subAgentTerminationTimeout subAgentTermination = "timeout"
	subAgentTerminationError   subAgentTermination = "error"
)

// NewSubAgentTool builds a Tool that, on each invocation, runs a fresh
// bounded Agent against def's goal prompt plus the caller-supplied goal.
// parent supplies the provider, tool registry (narrowed to
// def.AllowedTools when set), hooks, and approval policy the sub-agent
// inherits; it shares none of the parent's context, session, or detector
// state, so a misbehaving sub-agent run cannot corrupt the parent's
// transcript.
func NewSubAgentTool(def SubAgentDefinition, parent *Agent) *Tool {
	def = def.sanitized()

	return &Tool{
		ToolName:        def.Name,
		ToolDescription: def.Description,
		Kind:            ToolKindMemory,
		ParameterSchema: subAgentSchema,
		Mutating:        func(json.RawMessage) bool { return true },
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			var in subAgentArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
			}
			return runSubAgent(ctx, def, parent, in.Goal), nil
		},
	}
}

func runSubAgent(ctx context.Context, def SubAgentDefinition, parent *Agent, goal string) *models.ToolResult {
	registry := parent.Registry.Subset(def.AllowedTools)

	systemPrompt := def.GoalPrompt
	if systemPrompt == "" {
		systemPrompt = parent.Context.SystemPrompt()
	}
	ctxMgr := agentcontext.NewManager(systemPrompt, parent.Context.ContextWindow(), nil)

	sub := New(parent.Provider, registry, NewApprovalChecker(parent.Approvals.Policy()), ctxMgr, parent.Cwd, RunConfig{
		MaxTurns:    def.MaxTurns,
		MaxWallTime: def.Timeout,
	})
	sub.Hooks = parent.Hooks
	sub.Dispatch = parent.Dispatch

	deadline, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	var finalResponse string
	var toolNames []string
	seen := map[string]bool{}
	termination := subAgentTerminationGoal

	for event := range sub.Run(deadline, goal) {
		switch event.Type {
		case models.AgentEventToolCallStart:
			if !seen[event.Name] {
				seen[event.Name] = true
				toolNames = append(toolNames, event.Name)
			}
		case models.AgentEventTextComplete:
			finalResponse = event.Content
		case models.AgentEventError:
			if deadline.Err() != nil {
				termination = subAgentTerminationTimeout
			} else {
				termination = subAgentTerminationError
			}
			finalResponse = event.Error
		case models.AgentEventEnd:
			if event.Response != "" {
				finalResponse = event.Response
			}
		}
	}

	if deadline.Err() != nil && termination == subAgentTerminationGoal {
		termination = subAgentTerminationTimeout
	}

	summary := fmt.Sprintf(
		"sub-agent: %s\ntermination: %s\ntools invoked: %s\n\nfinal response:\n%s",
		def.Name, termination, strings.Join(toolNames, ", "), finalResponse,
	)

	return &models.ToolResult{
		Success: termination == subAgentTerminationGoal,
		Output:  summary,
		Metadata: map[string]any{
			"termination": string(termination),
			"tools":       toolNames,
		},
	}
}
