package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/ai-agent/internal/shell"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), shell.EnvPolicy{})
}

func TestExecToolRunsCommand(t *testing.T) {
	tool := NewExecTool("exec", newTestManager(t))

	params, _ := json.Marshal(map[string]any{"command": "echo hello"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Fatalf("expected stdout in output, got %q", result.Output)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", result.ExitCode)
	}
}

func TestExecToolNonZeroExit(t *testing.T) {
	tool := NewExecTool("exec", newTestManager(t))

	params, _ := json.Marshal(map[string]any{"command": "exit 3"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for non-zero exit")
	}
	if result.ExitCode == nil || *result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %v", result.ExitCode)
	}
}

func TestExecToolBlockedCommand(t *testing.T) {
	tool := NewExecTool("exec", newTestManager(t))

	params, _ := json.Marshal(map[string]any{"command": "rm -rf /"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Success {
		t.Fatal("expected blocked command to fail")
	}
	if !result.Blocked {
		t.Errorf("expected Blocked flag set, got %+v", result)
	}
}

func TestExecToolSanitizesEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_secret")
	tool := NewExecTool("exec", newTestManager(t))

	params, _ := json.Marshal(map[string]any{"command": "printenv GITHUB_TOKEN || echo ABSENT"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(result.Output, "ABSENT") {
		t.Errorf("expected GITHUB_TOKEN stripped from child env, got %q", result.Output)
	}
}

func TestExecToolIsMutating(t *testing.T) {
	tool := NewExecTool("exec", newTestManager(t))
	if !tool.IsMutating(json.RawMessage(`{"command":"ls"}`)) {
		t.Error("shell tool should always report mutating")
	}
	confirmation := tool.GetConfirmation(json.RawMessage(`{"command":"make build"}`))
	if confirmation == nil || confirmation.Command != "make build" {
		t.Fatalf("expected confirmation carrying the command, got %+v", confirmation)
	}
}

func TestProcessToolLifecycle(t *testing.T) {
	mgr := newTestManager(t)
	execTool := NewExecTool("exec", mgr)
	procTool := NewProcessTool(mgr)

	params, _ := json.Marshal(map[string]any{
		"command":    "echo background",
		"background": true,
	})
	result, err := execTool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	processID, _ := result.Metadata["process_id"].(string)
	if processID == "" {
		t.Fatalf("expected process_id in metadata, got %v", result.Metadata)
	}

	time.Sleep(50 * time.Millisecond)

	statusParams, _ := json.Marshal(map[string]any{"action": "status", "process_id": processID})
	statusResult, err := procTool.Invoke(context.Background(), statusParams)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !statusResult.Success {
		t.Fatalf("expected status success, got %+v", statusResult)
	}

	removeParams, _ := json.Marshal(map[string]any{"action": "remove", "process_id": processID})
	removeResult, err := procTool.Invoke(context.Background(), removeParams)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removeResult.Success {
		t.Fatalf("expected remove success, got %+v", removeResult)
	}
}
