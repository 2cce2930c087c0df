package engine

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/haasonsaas/ai-agent/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return &config.Config{
		Model: config.ModelConfig{
			Name:          "claude-sonnet-4-5",
			ContextWindow: 200000,
		},
		APIKey:   "test-key",
		Cwd:      t.TempDir(),
		Approval: "on-request",
		MaxTurns: 10,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSessionRegistersBuiltins(t *testing.T) {
	session, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer session.Close()

	names := session.ToolNames()
	for _, want := range []string{
		"read", "write", "edit", "apply_patch", "grep", "glob",
		"shell", "process", "web_fetch", "web_search", "todos", "plan", "memory",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("missing built-in tool %q in %v", want, names)
		}
	}
}

func TestInitializeBuildsAgent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Subagents = []config.SubagentConfig{{
		Name:        "researcher",
		Description: "looks things up",
		MaxTurns:    1,
	}}

	session, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer session.Close()

	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	stats := session.Stats()
	if stats.SessionID == "" || stats.TurnCount != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if !slices.Contains(session.ToolNames(), "researcher") {
		t.Error("sub-agent definition not registered as a tool")
	}
}

func TestSystemPromptCarriesMemoryAndTools(t *testing.T) {
	session, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer session.Close()

	if err := session.memory.Set("editor", "vim"); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	prompt := session.context.SystemPrompt()
	if !strings.Contains(prompt, "editor: vim") {
		t.Error("system prompt missing user-preferences block")
	}
	if !strings.Contains(prompt, "web_fetch") {
		t.Error("system prompt missing tool roster")
	}
}

func TestAllowedToolsRestrictsRoster(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowedTools = []string{"read", "grep"}

	session, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer session.Close()

	names := session.ToolNames()
	if len(names) != 2 || !slices.Contains(names, "read") || !slices.Contains(names, "grep") {
		t.Errorf("roster = %v, want exactly [grep read]", names)
	}
}

func TestSetApprovalPolicyValidates(t *testing.T) {
	session, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer session.Close()

	if err := session.SetApprovalPolicy("yolo"); err != nil {
		t.Errorf("SetApprovalPolicy(yolo): %v", err)
	}
	if err := session.SetApprovalPolicy("sometimes"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestBuildProviderSelection(t *testing.T) {
	cfg := testConfig(t)
	provider, err := buildProvider(cfg)
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Errorf("claude model routed to %s", provider.Name())
	}

	cfg.Model.Name = "gpt-4o"
	provider, err = buildProvider(cfg)
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("gpt model routed to %s", provider.Name())
	}
}

func TestRunBeforeInitializeFails(t *testing.T) {
	session, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer session.Close()

	if _, err := session.Run(context.Background(), "hi"); err == nil {
		t.Error("Run before Initialize must fail")
	}
}
