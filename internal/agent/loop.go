package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	agentcontext "github.com/haasonsaas/ai-agent/internal/agent/context"
	"github.com/haasonsaas/ai-agent/internal/compaction"
	"github.com/haasonsaas/ai-agent/internal/hooks"
	"github.com/haasonsaas/ai-agent/internal/loopdetect"
	"github.com/haasonsaas/ai-agent/internal/observability"
	"github.com/haasonsaas/ai-agent/internal/sessions"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// RunConfig bounds one turn loop run: how many assistant turns it may take
// and, optionally, how long it may run in wall-clock time. A sub-agent
// invoked as a Tool gets its own, usually tighter, RunConfig.
type RunConfig struct {
	// MaxTurns caps the number of assistant responses in one run. Default 100.
	MaxTurns int

	// MaxWallTime bounds the run's total duration; zero means no limit.
	MaxWallTime time.Duration

	// MaxTokens is the max_tokens sent with every completion request.
	MaxTokens int

	// Temperature is the sampling temperature sent with every request.
	Temperature float64
}

// DefaultRunConfig mirrors config.applyDefaults' agent-level defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{MaxTurns: 100, MaxTokens: 4096}
}

func (c RunConfig) sanitized() RunConfig {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultRunConfig().MaxTurns
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultRunConfig().MaxTokens
	}
	return c
}

// Agent is one configured turn loop: a model, its tools, and the supporting
// machinery (context accounting, compaction, loop detection, hooks,
// approvals, persistence) the loop drives at each step. Not safe for
// concurrent Run calls against the same Agent — one Agent drives one
// session's transcript at a time.
type Agent struct {
	Provider  LLMProvider
	Registry  *ToolRegistry
	Approvals *ApprovalChecker
	Context   *agentcontext.Manager
	Compactor *compaction.Compactor
	Detector  *loopdetect.Detector
	Hooks     *hooks.Registry
	Dispatch  *hooks.Dispatcher
	Sessions  sessions.Store
	SessionID string
	Cwd       string
	Confirm   ConfirmationResolver

	// Model overrides the provider's first advertised model for every
	// completion request. Set from config by whoever assembles the Agent.
	Model string

	// Metrics, when set, receives turn/tool/compaction counters. Nil is
	// fine: the loop checks before every observation.
	Metrics *observability.Metrics

	cfg        RunConfig
	invoker    *Invoker
	totalUsage models.TokenUsage
	turnCount  int
}

// New builds an Agent. Compactor, Hooks, Dispatch, and Sessions may all be
// nil: compaction and session persistence are then skipped, and hooks
// simply never fire.
func New(provider LLMProvider, registry *ToolRegistry, approvals *ApprovalChecker, ctxMgr *agentcontext.Manager, cwd string, cfg RunConfig) *Agent {
	a := &Agent{
		Provider:  provider,
		Registry:  registry,
		Approvals: approvals,
		Context:   ctxMgr,
		Detector:  loopdetect.New(),
		Cwd:       cwd,
		cfg:       cfg.sanitized(),
	}
	a.invoker = NewInvoker(registry, approvals, cwd, nil)
	return a
}

// Resume loads a previously persisted session's history into a, repairing
// any tool-call/tool-result pairing a crash mid-turn may have broken, and
// restores cumulative token usage so a resumed run's AGENT_END usage stays
// additive across process restarts.
func (a *Agent) Resume(ctx context.Context, sessionID string) error {
	if a.Sessions == nil {
		return fmt.Errorf("agent: no session store configured")
	}
	snapshot, err := a.Sessions.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("agent: loading session %s: %w", sessionID, err)
	}
	a.SessionID = sessionID
	a.totalUsage = snapshot.TotalUsage
	a.turnCount = snapshot.TurnCount
	a.Context.LoadHistory(repairTranscript(snapshot.Messages))
	return nil
}

// TurnCount returns how many turns this agent has run, including turns
// restored from a resumed session.
func (a *Agent) TurnCount() int {
	return a.turnCount
}

// TotalUsage returns the cumulative token usage across the agent's runs.
func (a *Agent) TotalUsage() models.TokenUsage {
	return a.totalUsage
}

// Snapshot captures the agent's persistent state for storage.
func (a *Agent) Snapshot() *models.SessionSnapshot {
	return &models.SessionSnapshot{
		ID:         a.SessionID,
		TurnCount:  a.turnCount,
		Messages:   a.Context.GetMessages(),
		TotalUsage: a.totalUsage,
	}
}

// Run drives the turn loop to completion for one user message: it streams a
// completion, executes any requested tools, feeds their results back, and
// repeats until the model stops calling tools or a bound is hit. Every step
// is reported on the returned event channel, which is closed when Run
// returns. Run never returns a partial AGENT_END: the final event is always
// either AGENT_END or AGENT_ERROR.
func (a *Agent) Run(ctx context.Context, userMessage string) <-chan *models.AgentEvent {
	events := make(chan *models.AgentEvent, 16)
	go a.run(ctx, userMessage, events)
	return events
}

func (a *Agent) run(ctx context.Context, userMessage string, events chan<- *models.AgentEvent) {
	defer close(events)

	if a.Provider == nil {
		events <- &models.AgentEvent{Type: models.AgentEventError, Error: ErrNoProvider.Error()}
		return
	}

	// A nil Confirm leaves the invoker without a resolver: confirmations
	// then auto-approve rather than wedging a headless run on a prompt.
	a.invoker.resolve = a.Confirm

	deadline := ctx
	if a.cfg.MaxWallTime > 0 {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(ctx, a.cfg.MaxWallTime)
		defer cancel()
	}

	a.fireHook(deadline, hooks.EventBeforeAgent, func(e *hooks.Event) { e.UserMessage = userMessage })

	events <- &models.AgentEvent{Type: models.AgentEventStart, Message: userMessage}
	a.Context.AddUserMessage(userMessage)

	var finalText string
	var runErr error
	finished := false

turnLoop:
	for turn := 0; turn < a.cfg.MaxTurns; turn++ {
		select {
		case <-deadline.Done():
			runErr = deadline.Err()
			break turnLoop
		default:
		}

		text, done, err := a.runTurn(deadline, turn+1, events)
		if err != nil {
			runErr = err
			break turnLoop
		}
		if text != "" {
			finalText = text
		}
		if done {
			finished = true
			break turnLoop
		}
	}

	if runErr == nil && !finished {
		runErr = fmt.Errorf("%w (%d)", ErrMaxTurns, a.cfg.MaxTurns)
	}

	if runErr != nil {
		a.fireHook(deadline, hooks.EventOnError, func(e *hooks.Event) { e.Err = runErr })
		events <- &models.AgentEvent{Type: models.AgentEventError, Error: runErr.Error()}
		return
	}

	a.fireHook(deadline, hooks.EventAfterAgent, func(e *hooks.Event) { e.Response = finalText })
	a.persist(deadline)
	events <- &models.AgentEvent{Type: models.AgentEventEnd, Response: finalText, Usage: a.totalUsage}
}

// runTurn drives one LLM request/response cycle plus its tool calls. It
// returns the turn's assistant text, whether the run is finished, and any
// terminal error.
func (a *Agent) runTurn(ctx context.Context, turn int, events chan<- *models.AgentEvent) (string, bool, error) {
	a.turnCount++
	ctx, span := observability.StartTurn(ctx, turn)
	defer span.End()

	if a.Context.NeedsCompression() && a.Compactor != nil {
		a.compress(ctx)
	}
	a.Context.PruneToolOutputs()

	req := &CompletionRequest{
		Model:       a.providerModel(),
		System:      a.Context.SystemPrompt(),
		Messages:    toCompletionMessages(a.Context.GetMessages()),
		Tools:       a.Registry.List(),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}

	started := time.Now()
	text, toolCalls, usage, err := a.stream(ctx, req, events)
	if err != nil {
		if a.Metrics != nil {
			a.Metrics.TurnCounter.WithLabelValues("error").Inc()
		}
		return "", true, err
	}
	if a.Metrics != nil {
		a.Metrics.TurnCounter.WithLabelValues("completed").Inc()
		a.Metrics.LLMRequestDuration.WithLabelValues(a.Provider.Name(), req.Model).Observe(time.Since(started).Seconds())
		a.Metrics.LLMTokensUsed.WithLabelValues(a.Provider.Name(), req.Model, "prompt").Add(float64(usage.PromptTokens))
		a.Metrics.LLMTokensUsed.WithLabelValues(a.Provider.Name(), req.Model, "completion").Add(float64(usage.CompletionTokens))
	}
	a.totalUsage = a.totalUsage.Add(usage)
	a.Context.ReportUsage(usage)

	if len(toolCalls) == 0 {
		a.Context.AddAssistantMessage(text, nil)
		// Recorded so repetition across runs of the same Agent still
		// shapes future signatures; a tool-free turn always ends the run.
		a.Detector.Record(loopdetect.ResponseSignature(text))
		return text, true, nil
	}

	a.Context.AddAssistantMessage(text, toolCalls)

	loopReason := ""
	for _, call := range toolCalls {
		var args map[string]any
		_ = json.Unmarshal(call.Input, &args)
		if looping, reason := a.Detector.Record(loopdetect.Signature(call.Name, args)); looping {
			loopReason = reason
		}

		events <- &models.AgentEvent{Type: models.AgentEventToolCallStart, CallID: call.ID, Name: call.Name, Args: args}

		toolCtx, toolSpan := observability.StartToolCall(ctx, call.Name)
		toolStarted := time.Now()
		result := a.invoker.InvokeToolCallWithHooks(toolCtx, call,
			func() {
				a.fireHook(toolCtx, hooks.EventBeforeTool, func(e *hooks.Event) {
					e.ToolName = call.Name
					e.ToolParams = string(call.Input)
				})
			},
			func(r *models.ToolResult) {
				a.fireHook(toolCtx, hooks.EventAfterTool, func(e *hooks.Event) {
					e.ToolName = call.Name
					e.ToolParams = string(call.Input)
					e.ToolResult = SanitizeToolResult(r.ToModelOutput())
				})
			})
		toolSpan.End()
		if a.Metrics != nil {
			a.Metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(toolStarted).Seconds())
			a.Metrics.ToolInvocations.WithLabelValues(call.Name, toolDecision(result)).Inc()
		}

		sanitized := SanitizeToolResult(result.ToModelOutput())
		a.Context.AddToolResult(call.ID, sanitized)

		events <- &models.AgentEvent{
			Type:      models.AgentEventToolCallComplete,
			CallID:    call.ID,
			Name:      call.Name,
			Success:   result.Success,
			Output:    result.Output,
			ToolError: result.Error,
			Metadata:  result.Metadata,
			Diff:      result.Diff,
			Truncated: result.Truncated,
			ExitCode:  result.ExitCode,
		}
	}

	if loopReason != "" {
		a.breakLoop(loopReason)
	}

	a.persist(ctx)
	return text, false, nil
}

func (a *Agent) breakLoop(reason string) {
	if a.Metrics != nil {
		a.Metrics.LoopBreaks.Inc()
	}
	a.Context.AddUserMessage(loopdetect.LoopBreakerMessage(reason))
}

// toolDecision labels how the invocation pipeline resolved a call, for
// the tool-invocation counter.
func toolDecision(result *models.ToolResult) string {
	switch {
	case result == nil:
		return "error"
	case result.Success:
		return "executed"
	case result.Blocked, result.Error == "Operation rejected by safety policy":
		return "rejected"
	case result.Error == "User rejected the operation":
		return "user_rejected"
	case strings.HasPrefix(result.Error, "Invalid parameters"):
		return "invalid"
	default:
		return "error"
	}
}

func (a *Agent) providerModel() string {
	if a.Model != "" {
		return a.Model
	}
	for _, m := range a.Provider.Models() {
		return m.ID
	}
	return ""
}

// stream drains req through the provider, forwarding TEXT_DELTA events live
// and accumulating the final text and any tool calls the model requested.
func (a *Agent) stream(ctx context.Context, req *CompletionRequest, events chan<- *models.AgentEvent) (string, []models.ToolCall, models.TokenUsage, error) {
	ch, err := a.Provider.Stream(ctx, req)
	if err != nil {
		return "", nil, models.TokenUsage{}, fmt.Errorf("stream: %w", err)
	}

	var text string
	var calls []models.ToolCall
	var usage models.TokenUsage

	for ev := range ch {
		switch ev.Type {
		case StreamEventTextDelta:
			text += ev.TextDelta
			events <- &models.AgentEvent{Type: models.AgentEventTextDelta, Content: ev.TextDelta}
		case StreamEventToolCallComplete:
			if ev.ToolCallComplete != nil {
				calls = append(calls, *ev.ToolCallComplete)
			}
		case StreamEventMessageComplete:
			usage = ev.Usage
		case StreamEventError:
			return "", nil, models.TokenUsage{}, ev.Err
		}
	}

	if text != "" {
		events <- &models.AgentEvent{Type: models.AgentEventTextComplete, Content: text}
	}
	return text, calls, usage, nil
}

func (a *Agent) compress(ctx context.Context) {
	messages := a.Context.GetMessages()
	summary, usage, err := a.Compactor.Compact(ctx, messages)
	switch {
	case err != nil:
		a.recordCompaction("failed")
		return
	case summary == nil:
		a.recordCompaction("skipped")
		return
	}
	a.Context.ReplaceWithSummary(*summary)
	if usage != nil {
		a.totalUsage = a.totalUsage.Add(*usage)
		a.Context.ReportUsage(*usage)
	}
	a.recordCompaction("replaced")
}

func (a *Agent) recordCompaction(outcome string) {
	if a.Metrics != nil {
		a.Metrics.Compactions.WithLabelValues(outcome).Inc()
	}
}

func (a *Agent) persist(ctx context.Context) {
	if a.Sessions == nil || a.SessionID == "" {
		return
	}
	_ = a.Sessions.Save(ctx, a.Snapshot())
}

func (a *Agent) fireHook(ctx context.Context, eventType hooks.EventType, populate func(*hooks.Event)) {
	event := hooks.NewEvent(eventType)
	event.Cwd = a.Cwd
	if populate != nil {
		populate(event)
	}
	if a.Hooks != nil {
		_ = a.Hooks.Trigger(ctx, event)
	}
	if a.Dispatch != nil {
		a.Dispatch.Dispatch(ctx, event)
	}
}

func toCompletionMessages(history []*models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		out = append(out, CompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}
	return out
}
