package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/ai-agent/pkg/models"
)

// ToolRegistry is the set of tools available to a turn loop: built-in Go
// tools, MCP-bridged tools namespaced "<server>__<tool>", and sub-agents
// registered as Tools of kind memory. Safe for concurrent registration and
// lookup; lookups during a turn never block on registration from another
// goroutine for long.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	allow map[string]struct{}
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool, used when an MCP server disconnects.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// SetAllowList restricts List to the named tools. Lookup by Get is not
// restricted, so an already-issued tool call still resolves; the model
// simply never sees disallowed tools. A nil or empty list clears the
// restriction.
func (r *ToolRegistry) SetAllowList(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		r.allow = nil
		return
	}
	r.allow = make(map[string]struct{}, len(names))
	for _, name := range names {
		r.allow[name] = struct{}{}
	}
}

// List returns every registered tool, filtered by the allow-list when one
// is set, for passing to an LLMProvider.
func (r *ToolRegistry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for name, t := range r.tools {
		if r.allow != nil {
			if _, ok := r.allow[name]; !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// Subset returns a new registry containing only the named tools, for
// building a sub-agent's restricted tool set. An empty or nil allow list
// means no restriction: every tool in r is copied. Unknown names are
// silently skipped rather than erroring, since a sub-agent definition may
// list a tool that an MCP server hasn't (yet) registered.
func (r *ToolRegistry) Subset(allow []string) *ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewToolRegistry()
	if len(allow) == 0 {
		for name, t := range r.tools {
			out.tools[name] = t
		}
		return out
	}
	for _, name := range allow {
		if t, ok := r.tools[name]; ok {
			out.tools[name] = t
		}
	}
	return out
}

// ConfirmationResolver asks whatever front-end is attached whether a
// NEEDS_CONFIRMATION invocation should proceed. Interactive front-ends
// register one; with none registered, confirmations auto-approve.
type ConfirmationResolver func(ctx context.Context, confirmation *models.ToolConfirmation) bool

// Invoker runs the sequential per-tool-call pipeline: schema validation,
// approval classification, optional human confirmation, execution. Every
// step's failure becomes a failure ToolResult, never a Go error returned
// up through Invoke — the turn loop always gets something to feed back to
// the model.
type Invoker struct {
	registry  *ToolRegistry
	approvals *ApprovalChecker
	cwd       string
	resolve   ConfirmationResolver
}

// NewInvoker returns an Invoker bound to one registry, one approval
// checker, and the working directory used for path-escape classification.
// A nil resolve means no front-end is attached: NEEDS_CONFIRMATION
// invocations then proceed, so headless automation is not wedged on a
// prompt nobody can answer. Only a registered resolver that answers no
// produces the user-rejection result.
func NewInvoker(registry *ToolRegistry, approvals *ApprovalChecker, cwd string, resolve ConfirmationResolver) *Invoker {
	return &Invoker{registry: registry, approvals: approvals, cwd: cwd, resolve: resolve}
}

// InvokeToolCall runs one tool call end to end.
func (inv *Invoker) InvokeToolCall(ctx context.Context, call models.ToolCall) *models.ToolResult {
	return inv.InvokeToolCallWithHooks(ctx, call, nil, nil)
}

// InvokeToolCallWithHooks runs one tool call end to end with lifecycle
// callbacks: before fires only once lookup and validation have both
// succeeded, after fires exactly once for every call with the final
// result — including lookup misses and validation failures.
func (inv *Invoker) InvokeToolCallWithHooks(ctx context.Context, call models.ToolCall, before func(), after func(*models.ToolResult)) *models.ToolResult {
	result := inv.invoke(ctx, call, before)
	if after != nil {
		after(result)
	}
	return result
}

func (inv *Invoker) invoke(ctx context.Context, call models.ToolCall, before func()) *models.ToolResult {
	tool, ok := inv.registry.Get(call.Name)
	if !ok {
		return &models.ToolResult{Success: false, Error: "Internal error: unknown tool " + call.Name}
	}

	if err := validateAgainstSchema(tool.Schema(), call.Input); err != nil {
		return &models.ToolResult{Success: false, Error: "Invalid parameters: " + err.Error()}
	}

	if before != nil {
		before()
	}

	var args map[string]any
	_ = json.Unmarshal(call.Input, &args)

	mutating := tool.IsMutating(call.Input)
	approvalCtx := ApprovalContext{
		ToolName:   tool.Name(),
		IsMutating: mutating,
		Cwd:        inv.cwd,
	}
	if confirmation := tool.GetConfirmation(call.Input); confirmation != nil {
		approvalCtx.AffectedPaths = confirmation.AffectedPaths
		approvalCtx.Command = confirmation.Command
		approvalCtx.IsDangerous = confirmation.Dangerous
	}

	decision, _ := inv.approvals.CheckApproval(approvalCtx)
	switch decision {
	case ApprovalRejected:
		return &models.ToolResult{Success: false, Error: "Operation rejected by safety policy"}
	case ApprovalNeedsConfirmation:
		if inv.resolve != nil {
			confirmation := tool.GetConfirmation(call.Input)
			if confirmation == nil {
				confirmation = &models.ToolConfirmation{ToolName: tool.Name(), Arguments: args}
			}
			if !inv.resolve(ctx, confirmation) {
				return &models.ToolResult{Success: false, Error: "User rejected the operation"}
			}
		}
	}

	result, err := safeInvoke(ctx, tool, call.Input)
	if err != nil {
		return &models.ToolResult{Success: false, Error: "Internal error: " + err.Error()}
	}
	if result == nil {
		return &models.ToolResult{Success: true}
	}
	return result
}

// safeInvoke shields the pipeline from a panicking tool: the panic is
// converted into the same internal-error failure a returned error gets.
func safeInvoke(ctx context.Context, tool *Tool, input json.RawMessage) (result *models.ToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.Name(), p)
		}
	}()
	return tool.Invoke(ctx, input)
}

func validateAgainstSchema(schema json.RawMessage, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}

	var value any
	if len(input) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(input, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return err
	}
	return nil
}
