package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/ai-agent/internal/config"
)

func TestDispatchPassesEventEnv(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "env.txt")

	dispatcher := NewDispatcher([]config.HookConfig{{
		Name:    "capture",
		Trigger: "after_tool",
		Command: "env | grep ^AI_AGENT_ > " + outFile,
	}}, true, nil)

	event := NewEvent(EventAfterTool)
	event.Cwd = dir
	event.ToolName = "read"
	event.ToolParams = `{"path":"x"}`
	event.ToolResult = "contents"

	if errs := dispatcher.Dispatch(context.Background(), event); len(errs) != 0 {
		t.Fatalf("dispatch errors: %v", errs)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	captured := string(data)
	for _, want := range []string{
		"AI_AGENT_TRIGGER=after_tool",
		"AI_AGENT_CWD=" + dir,
		"AI_AGENT_TOOL_NAME=read",
		`AI_AGENT_TOOL_PARAMS={"path":"x"}`,
		"AI_AGENT_TOOL_RESULT=contents",
	} {
		if !strings.Contains(captured, want) {
			t.Errorf("hook env missing %q in:\n%s", want, captured)
		}
	}
}

func TestDispatchDisabled(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")

	dispatcher := NewDispatcher([]config.HookConfig{{
		Name:    "never",
		Trigger: "before_agent",
		Command: "touch " + marker,
	}}, false, nil)

	event := NewEvent(EventBeforeAgent)
	event.Cwd = dir
	dispatcher.Dispatch(context.Background(), event)

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("disabled dispatcher must not run hooks")
	}
}

func TestDispatchSkipsOtherTriggers(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")

	dispatcher := NewDispatcher([]config.HookConfig{{
		Name:    "on-error-only",
		Trigger: "on_error",
		Command: "touch " + marker,
	}}, true, nil)

	event := NewEvent(EventBeforeTool)
	event.Cwd = dir
	dispatcher.Dispatch(context.Background(), event)

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("hook fired for the wrong trigger")
	}
}

func TestDispatchFailureNeverPropagates(t *testing.T) {
	dispatcher := NewDispatcher([]config.HookConfig{{
		Name:    "broken",
		Trigger: "after_agent",
		Command: "exit 7",
	}}, true, nil)

	event := NewEvent(EventAfterAgent)
	event.Cwd = t.TempDir()
	errs := dispatcher.Dispatch(context.Background(), event)
	if len(errs) != 1 {
		t.Fatalf("expected the failure recorded, got %v", errs)
	}
	// Recorded for observability only; the caller discards them.
}

func TestRegistryTriggerIsolation(t *testing.T) {
	registry := NewRegistry(nil)

	var calls []string
	registry.Register(EventBeforeTool, func(ctx context.Context, e *Event) error {
		calls = append(calls, "ok")
		return nil
	})
	registry.Register(EventBeforeTool, func(ctx context.Context, e *Event) error {
		return errors.New("broken hook")
	}, WithPriority(PriorityHighest), WithName("broken"))
	registry.Register(EventBeforeTool, func(ctx context.Context, e *Event) error {
		panic("worse hook")
	}, WithName("panicky"))

	if err := registry.Trigger(context.Background(), NewEvent(EventBeforeTool)); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("healthy handler ran %d times, want 1", len(calls))
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	registry := NewRegistry(nil)
	var order []string
	registry.Register(EventAfterTool, func(ctx context.Context, e *Event) error {
		order = append(order, "normal")
		return nil
	})
	registry.Register(EventAfterTool, func(ctx context.Context, e *Event) error {
		order = append(order, "first")
		return nil
	}, WithPriority(PriorityHighest))
	registry.Register(EventAfterTool, func(ctx context.Context, e *Event) error {
		order = append(order, "last")
		return nil
	}, WithPriority(PriorityLowest))

	registry.Trigger(context.Background(), NewEvent(EventAfterTool))

	want := []string{"first", "normal", "last"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestUnregister(t *testing.T) {
	registry := NewRegistry(nil)
	ran := false
	id := registry.Register(EventOnError, func(ctx context.Context, e *Event) error {
		ran = true
		return nil
	})
	if !registry.Unregister(id) {
		t.Fatal("Unregister returned false for live registration")
	}
	registry.Trigger(context.Background(), NewEvent(EventOnError))
	if ran {
		t.Error("unregistered handler ran")
	}
}
