package exec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/internal/shell"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

var execSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "Shell command to execute."},
		"cwd": {"type": "string", "description": "Working directory (relative to workspace)."},
		"env": {"type": "object", "description": "Environment overrides (string values)."},
		"input": {"type": "string", "description": "Stdin content to pass to the command."},
		"timeout_seconds": {"type": "integer", "description": "Timeout in seconds (default 120, max 600).", "minimum": 0},
		"background": {"type": "boolean", "description": "Run in background and return a process id."}
	},
	"required": ["command"]
}`)

type execInput struct {
	Command        string            `json:"command"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env"`
	Input          string            `json:"input"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Background     bool              `json:"background"`
}

// NewExecTool returns a tool that runs shell commands in the workspace,
// either synchronously or in the background via manager.
func NewExecTool(name string, manager *Manager) *agent.Tool {
	if strings.TrimSpace(name) == "" {
		name = "exec"
	}

	return &agent.Tool{
		ToolName:        name,
		ToolDescription: "Run a shell command in the workspace (supports optional background execution).",
		Kind:            agent.ToolKindShell,
		ParameterSchema: execSchema,
		Mutating:        func(json.RawMessage) bool { return true },
		Confirmation: func(args json.RawMessage) *models.ToolConfirmation {
			var input execInput
			if err := json.Unmarshal(args, &input); err != nil {
				return nil
			}
			return &models.ToolConfirmation{
				ToolName:    name,
				Arguments:   map[string]any{"cwd": input.Cwd, "background": input.Background},
				Description: "Run shell command",
				Command:     input.Command,
			}
		},
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeExec(ctx, manager, args)
		},
	}
}

func executeExec(ctx context.Context, manager *Manager, params json.RawMessage) (*models.ToolResult, error) {
	if manager == nil {
		return failf("exec manager unavailable"), nil
	}
	var input execInput
	if err := json.Unmarshal(params, &input); err != nil {
		return failf("invalid parameters: %v", err), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return failf("command is required"), nil
	}

	timeout := time.Duration(input.TimeoutSeconds) * time.Second

	if input.Background {
		proc, err := manager.startBackground(ctx, command, input.Cwd, input.Env, input.Input, timeout)
		if err != nil {
			if errors.Is(err, shell.ErrBlocked) {
				return &models.ToolResult{Success: false, Error: err.Error(), Blocked: true}, nil
			}
			return failf("%v", err), nil
		}
		return &models.ToolResult{
			Success:  true,
			Output:   "started background process " + proc.id,
			Metadata: map[string]any{"status": "running", "process_id": proc.id},
		}, nil
	}

	result, err := manager.runSync(ctx, command, input.Cwd, input.Env, input.Input, timeout)
	if err != nil {
		if errors.Is(err, shell.ErrBlocked) {
			return &models.ToolResult{Success: false, Error: err.Error(), Blocked: true}, nil
		}
		return failf("%v", err), nil
	}

	exitCode := result.ExitCode
	success := result.ExitCode == 0 && result.Error == ""
	output := result.Stdout
	if result.Stderr != "" {
		output += "\n" + result.Stderr
	}

	toolResult := &models.ToolResult{
		Success:  success,
		Output:   output,
		Error:    result.Error,
		ExitCode: &exitCode,
		Metadata: map[string]any{
			"command":  result.Command,
			"cwd":      result.Cwd,
			"duration": result.Duration.String(),
		},
	}
	return toolResult, nil
}

var processSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "description": "Action: list, status, log, write, kill, remove."},
		"process_id": {"type": "string", "description": "Process id for actions that target a process."},
		"input": {"type": "string", "description": "Input for write action."}
	},
	"required": ["action"]
}`)

// NewProcessTool returns a tool that inspects and manages background exec
// processes started by the exec tool.
func NewProcessTool(manager *Manager) *agent.Tool {
	return &agent.Tool{
		ToolName:        "process",
		ToolDescription: "Manage background exec processes (list, status, log, write, kill, remove).",
		Kind:            agent.ToolKindShell,
		ParameterSchema: processSchema,
		Mutating: func(args json.RawMessage) bool {
			var input struct {
				Action string `json:"action"`
			}
			_ = json.Unmarshal(args, &input)
			switch strings.ToLower(strings.TrimSpace(input.Action)) {
			case "write", "kill", "remove":
				return true
			default:
				return false
			}
		},
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeProcess(manager, args)
		},
	}
}

func executeProcess(manager *Manager, params json.RawMessage) (*models.ToolResult, error) {
	if manager == nil {
		return failf("process manager unavailable"), nil
	}
	var input struct {
		Action    string `json:"action"`
		ProcessID string `json:"process_id"`
		Input     string `json:"input"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return failf("invalid parameters: %v", err), nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "" {
		return failf("action is required"), nil
	}

	if action == "list" {
		return &models.ToolResult{Success: true, Output: "ok", Metadata: map[string]any{"processes": manager.list()}}, nil
	}

	if strings.TrimSpace(input.ProcessID) == "" {
		return failf("process_id is required"), nil
	}
	proc, ok := manager.get(strings.TrimSpace(input.ProcessID))
	if !ok {
		return failf("process not found"), nil
	}

	switch action {
	case "status":
		return &models.ToolResult{Success: true, Output: proc.status(), Metadata: map[string]any{"info": proc.info()}}, nil
	case "log":
		return &models.ToolResult{
			Success: true,
			Output:  proc.stdout.String(),
			Metadata: map[string]any{
				"stderr": proc.stderr.String(),
				"status": proc.status(),
			},
		}, nil
	case "write":
		if proc.stdin == nil {
			return failf("process stdin unavailable"), nil
		}
		if input.Input == "" {
			return failf("input is required"), nil
		}
		if _, err := proc.stdin.Write([]byte(input.Input)); err != nil {
			return failf("write stdin: %v", err), nil
		}
		return &models.ToolResult{Success: true, Output: "written"}, nil
	case "kill":
		if proc.cmd.Process == nil {
			return failf("process not running"), nil
		}
		if err := proc.cmd.Process.Kill(); err != nil {
			return failf("kill process: %v", err), nil
		}
		return &models.ToolResult{Success: true, Output: "killed"}, nil
	case "remove":
		if proc.status() == "running" {
			return failf("process still running"), nil
		}
		if !manager.remove(proc.id) {
			return failf("remove failed"), nil
		}
		return &models.ToolResult{Success: true, Output: "removed"}, nil
	default:
		return failf("unsupported action"), nil
	}
}

func failf(format string, args ...any) *models.ToolResult {
	return &models.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}
