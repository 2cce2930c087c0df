package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAcceptsSnakeAndCamelCase(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	path := writeConfig(t, t.TempDir(), `
maxTurns = 7
hooksEnabled = true
api_key = "k"

[model]
name = "claude-sonnet-4-5"
contextWindow = 50000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxTurns != 7 {
		t.Errorf("MaxTurns = %d (camelCase key not folded)", cfg.MaxTurns)
	}
	if !cfg.HooksEnabled {
		t.Error("HooksEnabled not set from camelCase key")
	}
	if cfg.Model.ContextWindow != 50000 {
		t.Errorf("ContextWindow = %d", cfg.Model.ContextWindow)
	}
	if cfg.APIKey != "k" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `api_key = "k"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Approval != "on-request" {
		t.Errorf("Approval default = %q", cfg.Approval)
	}
	if cfg.MaxTurns != 100 {
		t.Errorf("MaxTurns default = %d", cfg.MaxTurns)
	}
	if cfg.Model.ContextWindow == 0 {
		t.Error("ContextWindow default missing")
	}
}

func TestLoadEnvFallbackForAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "from-env")

	path := writeConfig(t, t.TempDir(), `max_turns = 3`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env fallback", cfg.APIKey)
	}
}

func TestLoadRejectsBadApproval(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
api_key = "k"
approval = "whatever"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown approval policy")
	}
}

func TestLoadRejectsMCPCommandAndURL(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
api_key = "k"

[mcp_servers.bad]
enabled = true
command = "srv"
url = "http://x"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for command+url server")
	}
}

func TestLoadWithPrecedenceProjectOverridesPlatform(t *testing.T) {
	platformDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", platformDir)
	agentDir := filepath.Join(platformDir, "ai-agent")
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeConfig(t, agentDir, `
api_key = "k"
max_turns = 10

[model]
name = "gpt-4o"
temperature = 0.5
`)

	cwd := t.TempDir()
	projectDir := filepath.Join(cwd, ".ai-agent")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeConfig(t, projectDir, `
max_turns = 20
`)

	cfg, err := LoadWithPrecedence(cwd)
	if err != nil {
		t.Fatalf("LoadWithPrecedence: %v", err)
	}
	if cfg.MaxTurns != 20 {
		t.Errorf("MaxTurns = %d, want project override 20", cfg.MaxTurns)
	}
	if cfg.Model.Name != "gpt-4o" {
		t.Errorf("Model.Name = %q, want platform value preserved", cfg.Model.Name)
	}
	if cfg.Model.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want platform value preserved via map merge", cfg.Model.Temperature)
	}
	if cfg.Cwd != cwd {
		t.Errorf("Cwd = %q, want %q", cfg.Cwd, cwd)
	}
}

func TestContextWindowForModel(t *testing.T) {
	cases := []struct {
		model string
		want  int
	}{
		{"claude-sonnet-4-5", 200000},
		{"gpt-4o-mini", 128000},
		{"gpt-4", 8192},
		{"something-unknown", DefaultContextWindow},
	}
	for _, tc := range cases {
		if got := ContextWindowForModel(tc.model); got != tc.want {
			t.Errorf("ContextWindowForModel(%q) = %d, want %d", tc.model, got, tc.want)
		}
	}
}

func TestResolveInstructionsFallsBackToAgentMD(t *testing.T) {
	cwd := t.TempDir()
	if err := os.WriteFile(filepath.Join(cwd, "AGENT.MD"), []byte("project rules"), 0o644); err != nil {
		t.Fatalf("write AGENT.MD: %v", err)
	}
	cfg := &Config{Cwd: cwd}
	developer, _ := ResolveInstructions(cfg)
	if developer != "project rules" {
		t.Errorf("developer = %q", developer)
	}

	cfg.DeveloperInstructions = "explicit"
	developer, _ = ResolveInstructions(cfg)
	if developer != "explicit" {
		t.Errorf("developer = %q, want explicit config to win", developer)
	}
}
