package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type fakeToolCaller struct {
	server   string
	toolName string
	args     map[string]any
	result   *ToolCallResult
	err      error
}

func (f *fakeToolCaller) CallTool(ctx context.Context, server, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	f.server = server
	f.toolName = toolName
	f.args = arguments
	return f.result, f.err
}

func TestBridgedToolName(t *testing.T) {
	cases := []struct {
		server, tool, want string
	}{
		{"github", "search_repo", "github__search_repo"},
		{"git-hub", "search/repo", "git_hub__search_repo"},
		{"Files", "Read.File", "files__read_file"},
	}
	for _, tc := range cases {
		if got := BridgedToolName(tc.server, tc.tool); got != tc.want {
			t.Errorf("BridgedToolName(%q, %q) = %q, want %q", tc.server, tc.tool, got, tc.want)
		}
	}
}

func TestBridgedToolNameCapsLength(t *testing.T) {
	server := strings.Repeat("server", 10)
	tool := strings.Repeat("tool", 10)
	name := BridgedToolName(server, tool)
	if len(name) > maxToolNameLen {
		t.Fatalf("name length %d exceeds %d (%q)", len(name), maxToolNameLen, name)
	}
	if !strings.HasSuffix(name, nameHash(server, tool)) {
		t.Fatalf("expected truncated name to carry hash suffix, got %q", name)
	}
	// Same inputs, same name; different inputs, different names.
	if BridgedToolName(server, tool) != name {
		t.Error("expected deterministic name")
	}
	if BridgedToolName(server+"x", tool) == name {
		t.Error("expected distinct names for distinct servers")
	}
}

func TestToolBridgeInvoke(t *testing.T) {
	caller := &fakeToolCaller{
		result: &ToolCallResult{
			Content: []ToolResultContent{{Type: "text", Text: "ok"}},
		},
	}
	tool := &Tool{
		Name:        "do_thing",
		Description: "Does the thing",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"value":{"type":"string"}}}`),
	}
	bridged := NewToolBridge(caller, "server", tool, "server__do_thing")

	result, err := bridged.Invoke(context.Background(), json.RawMessage(`{"value":"hi"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !result.Success || result.Output != "ok" {
		t.Fatalf("expected success output %q, got %+v", "ok", result)
	}
	if caller.server != "server" || caller.toolName != "do_thing" {
		t.Fatalf("expected call server/tool server/do_thing, got %q/%q", caller.server, caller.toolName)
	}
	if caller.args["value"] != "hi" {
		t.Fatalf("expected arg value %q, got %v", "hi", caller.args["value"])
	}
}

func TestToolBridgeInvokeError(t *testing.T) {
	caller := &fakeToolCaller{
		result: &ToolCallResult{
			IsError: true,
			Content: []ToolResultContent{{Type: "text", Text: "boom"}},
		},
	}
	bridged := NewToolBridge(caller, "server", &Tool{Name: "fails"}, "server__fails")

	result, err := bridged.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Success || result.Error != "boom" {
		t.Fatalf("expected failure with error %q, got %+v", "boom", result)
	}
}

func TestToolBridgeIsAlwaysMutating(t *testing.T) {
	bridged := NewToolBridge(&fakeToolCaller{}, "server", &Tool{Name: "anything"}, "server__anything")
	if !bridged.IsMutating(json.RawMessage(`{}`)) {
		t.Error("expected MCP-bridged tools to always report mutating")
	}
	confirmation := bridged.GetConfirmation(json.RawMessage(`{}`))
	if confirmation == nil || confirmation.ToolName != "server__anything" {
		t.Fatalf("expected confirmation for bridged tool, got %+v", confirmation)
	}
}
