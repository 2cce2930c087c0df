package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Set("editor", "vim"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if value, ok := store.Get("editor"); !ok || value != "vim" {
		t.Fatalf("Get = (%q, %v)", value, ok)
	}

	// A fresh store over the same directory sees the persisted value.
	reloaded := NewStore(dir)
	if value, ok := reloaded.Get("editor"); !ok || value != "vim" {
		t.Fatalf("reloaded Get = (%q, %v)", value, ok)
	}
}

func TestStoreToleratesAbsence(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, ok := store.Get("anything"); ok {
		t.Error("expected miss on empty store")
	}
	if all := store.All(); len(all) != 0 {
		t.Errorf("expected empty map, got %v", all)
	}
	if err := store.Delete("anything"); err != nil {
		t.Errorf("Delete on empty store: %v", err)
	}
}

func TestStoreWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := store.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, Filename+".tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after flush")
	}
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("store file is not valid JSON: %v", err)
	}
	if decoded["k"] != "v" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestPromptBlock(t *testing.T) {
	store := NewStore(t.TempDir())
	if block := store.PromptBlock(); block != "" {
		t.Errorf("empty store should render empty block, got %q", block)
	}

	_ = store.Set("language", "Go")
	_ = store.Set("editor", "vim")
	block := store.PromptBlock()
	if !strings.Contains(block, "editor: vim") || !strings.Contains(block, "language: Go") {
		t.Errorf("block = %q", block)
	}
	// Sorted keys: editor before language.
	if strings.Index(block, "editor") > strings.Index(block, "language") {
		t.Errorf("expected sorted keys, got %q", block)
	}
}

func TestMemoryTool(t *testing.T) {
	store := NewStore(t.TempDir())
	tool := NewTool(store)

	invoke := func(payload string) (success bool, output, errText string) {
		t.Helper()
		result, err := tool.Invoke(context.Background(), json.RawMessage(payload))
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		return result.Success, result.Output, result.Error
	}

	if ok, _, errText := invoke(`{"action":"set","key":"color","value":"green"}`); !ok {
		t.Fatalf("set failed: %s", errText)
	}
	if ok, output, _ := invoke(`{"action":"get","key":"color"}`); !ok || output != "green" {
		t.Fatalf("get = (%v, %q)", ok, output)
	}
	if ok, output, _ := invoke(`{"action":"list"}`); !ok || !strings.Contains(output, "color: green") {
		t.Fatalf("list = (%v, %q)", ok, output)
	}
	if ok, _, _ := invoke(`{"action":"delete","key":"color"}`); !ok {
		t.Fatal("delete failed")
	}
	if ok, _, _ := invoke(`{"action":"get","key":"color"}`); ok {
		t.Fatal("expected miss after delete")
	}

	if !tool.IsMutating(json.RawMessage(`{"action":"set","key":"k","value":"v"}`)) {
		t.Error("set should be mutating")
	}
	if tool.IsMutating(json.RawMessage(`{"action":"get","key":"k"}`)) {
		t.Error("get should not be mutating")
	}
}
