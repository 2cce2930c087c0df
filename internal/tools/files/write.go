package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

var writeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Path to write (relative to workspace)."},
		"content": {"type": "string", "description": "File contents to write."},
		"append": {"type": "boolean", "description": "Append instead of overwrite (default: false)."}
	},
	"required": ["path", "content"]
}`)

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// NewWriteTool returns a tool that writes content to a file in the
// workspace, overwriting by default.
func NewWriteTool(cfg Config) *agent.Tool {
	resolver := Resolver{Root: cfg.Workspace}

	return &agent.Tool{
		ToolName:        "write",
		ToolDescription: "Write content to a file in the workspace (overwrites by default).",
		Kind:            agent.ToolKindWrite,
		ParameterSchema: writeSchema,
		Mutating:        func(json.RawMessage) bool { return true },
		Confirmation: func(args json.RawMessage) *models.ToolConfirmation {
			var input writeInput
			if err := json.Unmarshal(args, &input); err != nil {
				return nil
			}
			diff := writeDiff(resolver, input)
			return &models.ToolConfirmation{
				ToolName:      "write",
				Arguments:     map[string]any{"path": input.Path, "append": input.Append},
				Description:   "Write to " + input.Path,
				Diff:          diff,
				AffectedPaths: []string{input.Path},
			}
		},
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeWrite(resolver, args)
		},
	}
}

func writeDiff(resolver Resolver, input writeInput) *models.FileDiff {
	resolved, err := resolver.Resolve(input.Path)
	if err != nil {
		return nil
	}
	existing, err := os.ReadFile(resolved)
	isNew := err != nil
	newContent := input.Content
	if input.Append {
		newContent = string(existing) + input.Content
	}
	return &models.FileDiff{
		Path:       input.Path,
		OldContent: string(existing),
		NewContent: newContent,
		IsNew:      isNew,
	}
}

func executeWrite(resolver Resolver, params json.RawMessage) (*models.ToolResult, error) {
	var input writeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return failf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return failf("path is required"), nil
	}

	resolved, err := resolver.Resolve(input.Path)
	if err != nil {
		return failf("%v", err), nil
	}
	diff := writeDiff(resolver, input)

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return failf("create directory: %v", err), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return failf("open file: %v", err), nil
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return failf("write file: %v", err), nil
	}

	return &models.ToolResult{
		Success: true,
		Output:  input.Path,
		Diff:    diff,
		Metadata: map[string]any{
			"path":          input.Path,
			"bytes_written": n,
			"append":        input.Append,
		},
	}, nil
}
