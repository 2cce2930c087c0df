package files

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

var editSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Path to edit (relative to workspace)."},
		"edits": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"old_text": {"type": "string", "description": "Text to replace."},
					"new_text": {"type": "string", "description": "Replacement text."},
					"replace_all": {"type": "boolean", "description": "Replace all occurrences (default: false)."}
				},
				"required": ["old_text", "new_text"]
			}
		}
	},
	"required": ["path", "edits"]
}`)

type editInput struct {
	Path  string `json:"path"`
	Edits []struct {
		OldText    string `json:"old_text"`
		NewText    string `json:"new_text"`
		ReplaceAll bool   `json:"replace_all"`
	} `json:"edits"`
}

// NewEditTool returns a tool that applies one or more find/replace edits to
// a file in the workspace.
func NewEditTool(cfg Config) *agent.Tool {
	resolver := Resolver{Root: cfg.Workspace}

	return &agent.Tool{
		ToolName:        "edit",
		ToolDescription: "Apply one or more find/replace edits to a file in the workspace.",
		Kind:            agent.ToolKindWrite,
		ParameterSchema: editSchema,
		Mutating:        func(json.RawMessage) bool { return true },
		Confirmation: func(args json.RawMessage) *models.ToolConfirmation {
			var input editInput
			if err := json.Unmarshal(args, &input); err != nil {
				return nil
			}
			diff := editDiff(resolver, input)
			return &models.ToolConfirmation{
				ToolName:      "edit",
				Arguments:     map[string]any{"path": input.Path, "edits": len(input.Edits)},
				Description:   "Edit " + input.Path,
				Diff:          diff,
				AffectedPaths: []string{input.Path},
			}
		},
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeEdit(resolver, args)
		},
	}
}

func editDiff(resolver Resolver, input editInput) *models.FileDiff {
	resolved, err := resolver.Resolve(input.Path)
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil
	}
	content := applyEdits(string(data), input)
	return &models.FileDiff{Path: input.Path, OldContent: string(data), NewContent: content}
}

func applyEdits(content string, input editInput) string {
	for _, e := range input.Edits {
		if e.ReplaceAll {
			content = strings.ReplaceAll(content, e.OldText, e.NewText)
		} else {
			content = strings.Replace(content, e.OldText, e.NewText, 1)
		}
	}
	return content
}

func executeEdit(resolver Resolver, params json.RawMessage) (*models.ToolResult, error) {
	var input editInput
	if err := json.Unmarshal(params, &input); err != nil {
		return failf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return failf("path is required"), nil
	}
	if len(input.Edits) == 0 {
		return failf("edits are required"), nil
	}

	resolved, err := resolver.Resolve(input.Path)
	if err != nil {
		return failf("%v", err), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return failf("read file: %v", err), nil
	}

	content := string(data)
	replacements := 0
	for _, e := range input.Edits {
		if e.OldText == "" {
			return failf("old_text is required"), nil
		}
		if !strings.Contains(content, e.OldText) {
			return failf("old_text not found"), nil
		}
		if e.ReplaceAll {
			count := strings.Count(content, e.OldText)
			content = strings.ReplaceAll(content, e.OldText, e.NewText)
			replacements += count
		} else {
			content = strings.Replace(content, e.OldText, e.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return failf("write file: %v", err), nil
	}

	return &models.ToolResult{
		Success: true,
		Output:  input.Path,
		Metadata: map[string]any{
			"path":         input.Path,
			"replacements": replacements,
		},
	}, nil
}
