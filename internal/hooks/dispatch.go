package hooks

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/haasonsaas/ai-agent/internal/config"
)

const defaultHookTimeout = 30 * time.Second

// Dispatcher runs user-configured external hooks as subprocesses, on top of
// the in-process Registry. The two mechanisms share the same Event taxonomy:
// a turn loop fires one Event at each lifecycle point and both the Registry
// and the Dispatcher get a look at it.
type Dispatcher struct {
	hooks   []config.HookConfig
	enabled bool
	logger  *slog.Logger
}

// NewDispatcher builds a Dispatcher from the agent's configured hooks.
// enabled mirrors config.Config.HooksEnabled: when false, Dispatch is a
// no-op regardless of what hooks are configured.
func NewDispatcher(hooks []config.HookConfig, enabled bool, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{hooks: hooks, enabled: enabled, logger: logger.With("component", "hooks.dispatch")}
}

// Dispatch runs every enabled hook configured for event.Type as a
// subprocess. A hook's command and its script field are mutually exclusive;
// command runs via the shell, script is executed directly. Failures
// (nonzero exit, timeout, spawn error) are logged and returned in the error
// slice for observability, but are never propagated to the caller in a way
// that could abort the host operation — the turn loop ignores the result.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) []error {
	if d == nil || !d.enabled || event == nil {
		return nil
	}

	var errs []error
	for _, h := range d.hooks {
		if h.Trigger != string(event.Type) || !h.IsEnabled() {
			continue
		}
		if err := d.run(ctx, h, event); err != nil {
			d.logger.Warn("hook failed", "hook", h.Name, "trigger", h.Trigger, "error", err)
			errs = append(errs, fmt.Errorf("hook %q: %w", h.Name, err))
		}
	}
	return errs
}

func (d *Dispatcher) run(ctx context.Context, h config.HookConfig, event *Event) error {
	timeout := defaultHookTimeout
	if h.Timeout > 0 {
		timeout = time.Duration(h.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch {
	case h.Command != "":
		cmd = exec.CommandContext(runCtx, "sh", "-c", h.Command)
	case h.Script != "":
		cmd = exec.CommandContext(runCtx, h.Script)
	default:
		return fmt.Errorf("neither command nor script set")
	}

	cmd.Env = append(cmd.Environ(), hookEnv(event)...)
	if event.Cwd != "" {
		cmd.Dir = event.Cwd
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, stderr.String())
		}
		return err
	}
	return nil
}

// hookEnv builds the AI_AGENT_* environment variables a hook subprocess
// receives, populated from whichever Event fields apply to its trigger.
func hookEnv(event *Event) []string {
	env := []string{
		"AI_AGENT_TRIGGER=" + string(event.Type),
		"AI_AGENT_CWD=" + event.Cwd,
	}
	if event.ToolName != "" {
		env = append(env, "AI_AGENT_TOOL_NAME="+event.ToolName)
	}
	if event.ToolParams != "" {
		env = append(env, "AI_AGENT_TOOL_PARAMS="+event.ToolParams)
	}
	if event.ToolResult != "" {
		env = append(env, "AI_AGENT_TOOL_RESULT="+event.ToolResult)
	}
	if event.UserMessage != "" {
		env = append(env, "AI_AGENT_USER_MESSAGE="+event.UserMessage)
	}
	if event.Response != "" {
		env = append(env, "AI_AGENT_RESPONSE="+event.Response)
	}
	if event.Err != nil {
		env = append(env, "AI_AGENT_ERROR="+event.Err.Error())
	}
	env = append(env, "AI_AGENT_TIMESTAMP="+strconv.FormatInt(event.Timestamp.Unix(), 10))
	return env
}
