package tasks

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestTodosLifecycle(t *testing.T) {
	state := NewState()
	tool := NewTodosTool(state)

	run := func(payload string) (bool, string, string) {
		t.Helper()
		result, err := tool.Invoke(context.Background(), json.RawMessage(payload))
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		return result.Success, result.Output, result.Error
	}

	if ok, out, _ := run(`{"action":"add","text":"write tests"}`); !ok || !strings.Contains(out, "1. [ ] write tests") {
		t.Fatalf("add = %q", out)
	}
	run(`{"action":"add","text":"run tests"}`)

	if ok, out, _ := run(`{"action":"complete","index":1}`); !ok || !strings.Contains(out, "1. [x] write tests") {
		t.Fatalf("complete = %q", out)
	}
	if ok, out, _ := run(`{"action":"remove","index":2}`); !ok || strings.Contains(out, "run tests") {
		t.Fatalf("remove = %q", out)
	}
	if _, _, errText := run(`{"action":"complete","index":9}`); errText == "" {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestTodosEmptyList(t *testing.T) {
	tool := NewTodosTool(NewState())
	result, err := tool.Invoke(context.Background(), json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Success || result.Output != "no todos" {
		t.Fatalf("result = %+v", result)
	}
}

func TestPlanLifecycle(t *testing.T) {
	state := NewState()
	tool := NewPlanTool(state)

	set, err := tool.Invoke(context.Background(), json.RawMessage(`{"action":"set","plan":"1. read\n2. edit"}`))
	if err != nil || !set.Success {
		t.Fatalf("set = %+v, %v", set, err)
	}
	show, _ := tool.Invoke(context.Background(), json.RawMessage(`{"action":"show"}`))
	if !strings.Contains(show.Output, "2. edit") {
		t.Fatalf("show = %q", show.Output)
	}
	clear, _ := tool.Invoke(context.Background(), json.RawMessage(`{"action":"clear"}`))
	if !clear.Success {
		t.Fatalf("clear = %+v", clear)
	}
	show, _ = tool.Invoke(context.Background(), json.RawMessage(`{"action":"show"}`))
	if show.Output != "no plan recorded" {
		t.Fatalf("show after clear = %q", show.Output)
	}
}

func TestPlanningToolsAreUngated(t *testing.T) {
	state := NewState()
	todos := NewTodosTool(state)
	plan := NewPlanTool(state)
	args := json.RawMessage(`{"action":"add","text":"x"}`)
	if todos.IsMutating(args) || plan.IsMutating(args) {
		t.Error("session-scoped planning tools must not be approval-gated")
	}
}
