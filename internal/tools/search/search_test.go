package search

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/ai-agent/internal/tools/files"
)

func seedWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("main.go", "package main\n\nfunc main() {}\n")
	write("pkg/util.go", "package pkg\n\n// helper does things\nfunc helper() {}\n")
	write("docs/readme.md", "# readme\nhelper notes\n")
	return root
}

func TestGrepFindsMatches(t *testing.T) {
	root := seedWorkspace(t)
	tool := NewGrepTool(files.Config{Workspace: root})

	params, _ := json.Marshal(map[string]any{"pattern": "helper"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Success {
		t.Fatalf("grep failed: %+v", result)
	}
	if !strings.Contains(result.Output, "pkg/util.go:3") {
		t.Errorf("expected file:line match, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "docs/readme.md:2") {
		t.Errorf("expected markdown match, got %q", result.Output)
	}
}

func TestGrepIncludeFilter(t *testing.T) {
	root := seedWorkspace(t)
	tool := NewGrepTool(files.Config{Workspace: root})

	params, _ := json.Marshal(map[string]any{"pattern": "helper", "include": "*.go"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if strings.Contains(result.Output, "readme.md") {
		t.Errorf("include filter leaked non-go file: %q", result.Output)
	}
}

func TestGrepInvalidPattern(t *testing.T) {
	tool := NewGrepTool(files.Config{Workspace: t.TempDir()})
	params, _ := json.Marshal(map[string]any{"pattern": "("})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for invalid regexp")
	}
}

func TestGrepNoMatches(t *testing.T) {
	root := seedWorkspace(t)
	tool := NewGrepTool(files.Config{Workspace: root})
	params, _ := json.Marshal(map[string]any{"pattern": "nothing-here-xyz"})
	result, _ := tool.Invoke(context.Background(), params)
	if !result.Success || result.Output != "no matches" {
		t.Fatalf("result = %+v", result)
	}
}

func TestGlobDoubleStar(t *testing.T) {
	root := seedWorkspace(t)
	tool := NewGlobTool(files.Config{Workspace: root})

	params, _ := json.Marshal(map[string]any{"pattern": "**/*.go"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(result.Output, "main.go") || !strings.Contains(result.Output, filepath.Join("pkg", "util.go")) {
		t.Errorf("expected both go files, got %q", result.Output)
	}
	if strings.Contains(result.Output, "readme.md") {
		t.Errorf("glob leaked non-matching file: %q", result.Output)
	}
}

func TestGlobSingleDir(t *testing.T) {
	root := seedWorkspace(t)
	tool := NewGlobTool(files.Config{Workspace: root})

	params, _ := json.Marshal(map[string]any{"pattern": "pkg/*.go"})
	result, err := tool.Invoke(context.Background(), params)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if strings.Contains(result.Output, "main.go") {
		t.Errorf("expected only pkg files, got %q", result.Output)
	}
}

func TestSearchToolsAreReadOnly(t *testing.T) {
	root := seedWorkspace(t)
	grep := NewGrepTool(files.Config{Workspace: root})
	glob := NewGlobTool(files.Config{Workspace: root})
	args := json.RawMessage(`{"pattern":"x"}`)
	if grep.IsMutating(args) || glob.IsMutating(args) {
		t.Error("search tools must not be mutating")
	}
}
