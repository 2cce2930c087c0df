// Package tasks implements the session-scoped planning tools: todos, a
// numbered checklist the model maintains while working, and plan, a free
// text plan it can set and re-read. Both are ephemeral — nothing here
// survives the session.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// Todo is one checklist entry.
type Todo struct {
	Text string
	Done bool
}

// State holds one session's todos and plan.
type State struct {
	mu    sync.Mutex
	todos []Todo
	plan  string
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

func (s *State) render() string {
	if len(s.todos) == 0 {
		return "no todos"
	}
	var sb strings.Builder
	for i, todo := range s.todos {
		mark := " "
		if todo.Done {
			mark = "x"
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, mark, todo.Text)
	}
	return sb.String()
}

var todosSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["add", "complete", "remove", "list"], "description": "Todo operation."},
		"text": {"type": "string", "description": "Todo text (required for add)."},
		"index": {"type": "integer", "description": "1-based todo number (required for complete, remove).", "minimum": 1}
	},
	"required": ["action"]
}`)

type todosInput struct {
	Action string `json:"action"`
	Text   string `json:"text"`
	Index  int    `json:"index"`
}

// NewTodosTool returns the todos tool over state. Todos only mutate
// conversation-scoped state, so the tool is never gated.
func NewTodosTool(state *State) *agent.Tool {
	return &agent.Tool{
		ToolName:        "todos",
		ToolDescription: "Track a working checklist for this session (add, complete, remove, list).",
		Kind:            agent.ToolKindRead,
		ParameterSchema: todosSchema,
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			var input todosInput
			if err := json.Unmarshal(args, &input); err != nil {
				return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
			}

			state.mu.Lock()
			defer state.mu.Unlock()

			switch strings.ToLower(input.Action) {
			case "add":
				if strings.TrimSpace(input.Text) == "" {
					return &models.ToolResult{Success: false, Error: "text is required"}, nil
				}
				state.todos = append(state.todos, Todo{Text: input.Text})
				return &models.ToolResult{Success: true, Output: state.render()}, nil

			case "complete":
				if input.Index < 1 || input.Index > len(state.todos) {
					return &models.ToolResult{Success: false, Error: fmt.Sprintf("no todo %d", input.Index)}, nil
				}
				state.todos[input.Index-1].Done = true
				return &models.ToolResult{Success: true, Output: state.render()}, nil

			case "remove":
				if input.Index < 1 || input.Index > len(state.todos) {
					return &models.ToolResult{Success: false, Error: fmt.Sprintf("no todo %d", input.Index)}, nil
				}
				i := input.Index - 1
				state.todos = append(state.todos[:i], state.todos[i+1:]...)
				return &models.ToolResult{Success: true, Output: state.render()}, nil

			case "list":
				return &models.ToolResult{Success: true, Output: state.render()}, nil

			default:
				return &models.ToolResult{Success: false, Error: "unknown action: " + input.Action}, nil
			}
		},
	}
}

var planSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["set", "show", "clear"], "description": "Plan operation."},
		"plan": {"type": "string", "description": "Plan text (required for set)."}
	},
	"required": ["action"]
}`)

type planInput struct {
	Action string `json:"action"`
	Plan   string `json:"plan"`
}

// NewPlanTool returns the plan tool over state.
func NewPlanTool(state *State) *agent.Tool {
	return &agent.Tool{
		ToolName:        "plan",
		ToolDescription: "Record or recall the working plan for this session (set, show, clear).",
		Kind:            agent.ToolKindRead,
		ParameterSchema: planSchema,
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			var input planInput
			if err := json.Unmarshal(args, &input); err != nil {
				return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
			}

			state.mu.Lock()
			defer state.mu.Unlock()

			switch strings.ToLower(input.Action) {
			case "set":
				if strings.TrimSpace(input.Plan) == "" {
					return &models.ToolResult{Success: false, Error: "plan is required"}, nil
				}
				state.plan = input.Plan
				return &models.ToolResult{Success: true, Output: "plan recorded"}, nil

			case "show":
				if state.plan == "" {
					return &models.ToolResult{Success: true, Output: "no plan recorded"}, nil
				}
				return &models.ToolResult{Success: true, Output: state.plan}, nil

			case "clear":
				state.plan = ""
				return &models.ToolResult{Success: true, Output: "plan cleared"}, nil

			default:
				return &models.ToolResult{Success: false, Error: "unknown action: " + input.Action}, nil
			}
		},
	}
}
