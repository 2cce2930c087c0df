package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

var readSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Path to the file (relative to workspace)."},
		"offset": {"type": "integer", "description": "Byte offset to start reading from (default: 0).", "minimum": 0},
		"max_bytes": {"type": "integer", "description": "Maximum bytes to read (capped by tool default).", "minimum": 0}
	},
	"required": ["path"]
}`)

// NewReadTool returns a tool that reads a file from the workspace with an
// optional offset and byte cap.
func NewReadTool(cfg Config) *agent.Tool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200000
	}
	resolver := Resolver{Root: cfg.Workspace}

	return &agent.Tool{
		ToolName:        "read",
		ToolDescription: "Read a file from the workspace with optional offset and byte limit.",
		Kind:            agent.ToolKindRead,
		ParameterSchema: readSchema,
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeRead(resolver, limit, args)
		},
	}
}

func executeRead(resolver Resolver, defaultLimit int, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return failf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return failf("path is required"), nil
	}
	if input.Offset < 0 {
		return failf("offset must be >= 0"), nil
	}

	resolved, err := resolver.Resolve(input.Path)
	if err != nil {
		return failf("%v", err), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return failf("open file: %v", err), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return failf("stat file: %v", err), nil
	}

	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return failf("seek file: %v", err), nil
		}
	}

	limit := defaultLimit
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}

	remaining := int64(limit)
	if size := info.Size(); size > 0 {
		remaining = size - input.Offset
		if remaining < 0 {
			remaining = 0
		}
		if remaining > int64(limit) {
			remaining = int64(limit)
		}
	}

	buf, err := io.ReadAll(io.LimitReader(file, remaining))
	if err != nil {
		return failf("read file: %v", err), nil
	}

	truncated := info.Size() > 0 && input.Offset+int64(len(buf)) < info.Size()

	return &models.ToolResult{
		Success:   true,
		Output:    string(buf),
		Truncated: truncated,
		Metadata: map[string]any{
			"path":   input.Path,
			"offset": input.Offset,
			"bytes":  len(buf),
		},
	}, nil
}

func failf(format string, args ...any) *models.ToolResult {
	return &models.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}
