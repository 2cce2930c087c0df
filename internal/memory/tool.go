package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

var toolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["set", "get", "delete", "list"], "description": "Memory operation."},
		"key": {"type": "string", "description": "Memory key (required for set, get, delete)."},
		"value": {"type": "string", "description": "Value to store (required for set)."}
	},
	"required": ["action"]
}`)

type toolInput struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// NewTool exposes the user-memory store to the model. Set and delete
// mutate persisted state; get and list do not.
func NewTool(store *Store) *agent.Tool {
	return &agent.Tool{
		ToolName:        "memory",
		ToolDescription: "Remember user preferences across sessions (set, get, delete, list).",
		Kind:            agent.ToolKindMemory,
		ParameterSchema: toolSchema,
		Mutating: func(args json.RawMessage) bool {
			var input toolInput
			_ = json.Unmarshal(args, &input)
			switch strings.ToLower(input.Action) {
			case "set", "delete":
				return true
			default:
				return false
			}
		},
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			var input toolInput
			if err := json.Unmarshal(args, &input); err != nil {
				return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
			}

			switch strings.ToLower(input.Action) {
			case "set":
				if input.Key == "" {
					return &models.ToolResult{Success: false, Error: "key is required"}, nil
				}
				if err := store.Set(input.Key, input.Value); err != nil {
					return &models.ToolResult{Success: false, Error: err.Error()}, nil
				}
				return &models.ToolResult{Success: true, Output: "remembered " + input.Key}, nil

			case "get":
				if input.Key == "" {
					return &models.ToolResult{Success: false, Error: "key is required"}, nil
				}
				value, ok := store.Get(input.Key)
				if !ok {
					return &models.ToolResult{Success: false, Error: "no memory for " + input.Key}, nil
				}
				return &models.ToolResult{Success: true, Output: value}, nil

			case "delete":
				if input.Key == "" {
					return &models.ToolResult{Success: false, Error: "key is required"}, nil
				}
				if err := store.Delete(input.Key); err != nil {
					return &models.ToolResult{Success: false, Error: err.Error()}, nil
				}
				return &models.ToolResult{Success: true, Output: "forgot " + input.Key}, nil

			case "list":
				entries := store.All()
				if len(entries) == 0 {
					return &models.ToolResult{Success: true, Output: "no memories stored"}, nil
				}
				keys := make([]string, 0, len(entries))
				for k := range entries {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				var sb strings.Builder
				for _, k := range keys {
					fmt.Fprintf(&sb, "%s: %s\n", k, entries[k])
				}
				return &models.ToolResult{Success: true, Output: sb.String()}, nil

			default:
				return &models.ToolResult{Success: false, Error: "unknown action: " + input.Action}, nil
			}
		},
	}
}
