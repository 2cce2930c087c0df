// Package engine assembles one configured agent session from its parts:
// the LLM provider, the tool registry with every built-in tool, the MCP
// supervisor, plug-in discovery, approvals, hooks, persistence, and the
// turn loop itself. The front-end (cmd/ai-agent) only ever talks to a
// Session; nothing here renders anything.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/ai-agent/internal/agent"
	agentcontext "github.com/haasonsaas/ai-agent/internal/agent/context"
	"github.com/haasonsaas/ai-agent/internal/agent/providers"
	"github.com/haasonsaas/ai-agent/internal/compaction"
	"github.com/haasonsaas/ai-agent/internal/config"
	"github.com/haasonsaas/ai-agent/internal/hooks"
	"github.com/haasonsaas/ai-agent/internal/mcp"
	"github.com/haasonsaas/ai-agent/internal/memory"
	"github.com/haasonsaas/ai-agent/internal/observability"
	"github.com/haasonsaas/ai-agent/internal/plugins"
	"github.com/haasonsaas/ai-agent/internal/sessions"
	"github.com/haasonsaas/ai-agent/internal/shell"
	execTools "github.com/haasonsaas/ai-agent/internal/tools/exec"
	"github.com/haasonsaas/ai-agent/internal/tools/files"
	"github.com/haasonsaas/ai-agent/internal/tools/search"
	"github.com/haasonsaas/ai-agent/internal/tools/tasks"
	"github.com/haasonsaas/ai-agent/internal/tools/web"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// Session owns every long-lived resource of one agent conversation. Its
// lifecycle is Initialize → any number of Run calls → Close; nothing else
// mutates its components except through its methods.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg    *config.Config
	logger *slog.Logger

	provider  agent.LLMProvider
	registry  *agent.ToolRegistry
	approvals *agent.ApprovalChecker
	supervisor *mcp.Manager
	discovery *plugins.Manager
	hooks     *hooks.Registry
	dispatch  *hooks.Dispatcher
	store     sessions.Store
	memory    *memory.Store

	agent       *agent.Agent
	context     *agentcontext.Manager
	metrics     *observability.Metrics
	initialized bool
}

// Stats is what /stats reports.
type Stats struct {
	SessionID    string            `json:"session_id"`
	CreatedAt    time.Time         `json:"created_at"`
	TurnCount    int               `json:"turn_count"`
	MessageCount int               `json:"message_count"`
	TotalUsage   models.TokenUsage `json:"total_usage"`
	Model        string            `json:"model"`
	Approval     string            `json:"approval"`
}

// New wires a Session from config. The LLM provider is chosen by model
// name: claude-* models go to Anthropic, everything else to the OpenAI
// compatible backend (which also covers self-hosted gateways via
// base_url).
func New(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	dataDir, err := config.PlatformDataDir()
	if err != nil {
		return nil, fmt.Errorf("engine: resolve data dir: %w", err)
	}
	store, err := sessions.NewIndexedStore(dataDir)
	if err != nil {
		return nil, err
	}

	registry := agent.NewToolRegistry()

	s := &Session{
		ID:        sessions.NewSessionID(),
		CreatedAt: time.Now(),
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		provider:  provider,
		registry:  registry,
		approvals: agent.NewApprovalChecker(agent.ApprovalPolicy(cfg.Approval)),
		hooks:     hooks.NewRegistry(logger),
		dispatch:  hooks.NewDispatcher(cfg.Hooks, cfg.HooksEnabled, logger),
		store:     store,
		memory:    memory.NewStore(dataDir),
	}

	s.registerBuiltinTools()
	registry.SetAllowList(cfg.AllowedTools)

	configDir, _ := config.PlatformConfigDir()
	s.discovery = plugins.NewManager(cfg.Cwd, configDir, registry, logger)
	s.supervisor = mcp.NewManager(mcpServerConfigs(cfg), registry, logger)

	return s, nil
}

func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	if strings.HasPrefix(cfg.Model.Name, "claude") {
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model.Name,
		})
	}
	return providers.NewOpenAIProvider(providers.OpenAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model.Name,
	})
}

func (s *Session) registerBuiltinTools() {
	fileCfg := files.Config{Workspace: s.cfg.Cwd}
	execMgr := execTools.NewManager(s.cfg.Cwd, shell.EnvPolicy{
		IgnoreDefaultExcludes: s.cfg.ShellEnvironment.IgnoreDefaultExcludes,
		ExcludePatterns:       s.cfg.ShellEnvironment.ExcludePatterns,
		SetVars:               s.cfg.ShellEnvironment.SetVars,
	})
	planning := tasks.NewState()

	s.registry.Register(files.NewReadTool(fileCfg))
	s.registry.Register(files.NewWriteTool(fileCfg))
	s.registry.Register(files.NewEditTool(fileCfg))
	s.registry.Register(files.NewApplyPatchTool(fileCfg))
	s.registry.Register(search.NewGrepTool(fileCfg))
	s.registry.Register(search.NewGlobTool(fileCfg))
	s.registry.Register(execTools.NewExecTool("shell", execMgr))
	s.registry.Register(execTools.NewProcessTool(execMgr))
	s.registry.Register(web.NewFetchTool(nil))
	s.registry.Register(web.NewSearchTool())
	s.registry.Register(tasks.NewTodosTool(planning))
	s.registry.Register(tasks.NewPlanTool(planning))
	s.registry.Register(memory.NewTool(s.memory))
}

func mcpServerConfigs(cfg *config.Config) map[string]*mcp.ServerConfig {
	out := make(map[string]*mcp.ServerConfig, len(cfg.MCPServers))
	for name, server := range cfg.MCPServers {
		out[name] = &mcp.ServerConfig{
			Name:           name,
			Enabled:        server.Enabled,
			Command:        server.Command,
			Args:           server.Args,
			Env:            server.Env,
			Cwd:            server.Cwd,
			URL:            server.URL,
			StartupTimeout: time.Duration(server.StartupTimeoutSec) * time.Second,
		}
	}
	return out
}

// Initialize brings external tool providers up (MCP servers in parallel,
// plug-in discovery), builds the system prompt from the tools now known,
// and assembles the turn loop. It must run before the first Run.
func (s *Session) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	s.supervisor.Start(ctx)
	s.discovery.DiscoverAll(ctx)
	if s.cfg.Debug {
		if err := s.discovery.Watch(ctx); err != nil {
			s.logger.Warn("plug-in watch unavailable", "error", err)
		}
	}

	s.context = agentcontext.NewManager(s.buildSystemPrompt(), s.cfg.Model.ContextWindow, nil)

	a := agent.New(s.provider, s.registry, s.approvals, s.context, s.cfg.Cwd, agent.RunConfig{
		MaxTurns:    s.cfg.MaxTurns,
		Temperature: s.cfg.Model.Temperature,
	})
	a.Model = s.cfg.Model.Name
	a.Hooks = s.hooks
	a.Dispatch = s.dispatch
	a.Sessions = s.store
	a.SessionID = s.ID
	a.Compactor = compaction.New(&providerCompleter{provider: s.provider, model: s.cfg.Model.Name})
	a.Metrics = s.metrics
	s.agent = a

	for _, def := range s.cfg.Subagents {
		s.registry.Register(agent.NewSubAgentTool(agent.SubAgentDefinition{
			Name:         def.Name,
			Description:  def.Description,
			GoalPrompt:   def.GoalPrompt,
			AllowedTools: def.AllowedTools,
			MaxTurns:     def.MaxTurns,
			Timeout:      time.Duration(def.TimeoutSeconds) * time.Second,
		}, a))
	}

	s.initialized = true
	return nil
}

// buildSystemPrompt derives the session's immutable system prompt from
// config instructions, remembered user preferences, and the tool roster.
func (s *Session) buildSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a coding agent operating in " + s.cfg.Cwd + ". ")
	sb.WriteString("Use the available tools to read, modify, and verify the user's project. ")
	sb.WriteString("Prefer small, verifiable steps; report what you changed.\n")

	developer, user := config.ResolveInstructions(s.cfg)
	if developer != "" {
		sb.WriteString("\n" + developer + "\n")
	}
	if user != "" {
		sb.WriteString("\n" + user + "\n")
	}
	if block := s.memory.PromptBlock(); block != "" {
		sb.WriteString("\n" + block)
	}

	tools := s.ToolNames()
	if len(tools) > 0 {
		sb.WriteString("\nAvailable tools: " + strings.Join(tools, ", ") + "\n")
	}
	return sb.String()
}

// Run drives one user message through the turn loop. The returned channel
// is closed when the run finishes; the caller consumes every event.
func (s *Session) Run(ctx context.Context, userMessage string) (<-chan *models.AgentEvent, error) {
	if !s.initialized {
		return nil, fmt.Errorf("engine: session not initialized")
	}
	return s.agent.Run(ctx, userMessage), nil
}

// SetMetrics attaches a metrics sink to the turn loop. Call before or
// after Initialize; a nil sink disables collection.
func (s *Session) SetMetrics(m *observability.Metrics) {
	s.metrics = m
	if s.agent != nil {
		s.agent.Metrics = m
	}
}

// SetConfirmationResolver installs the front-end callback for
// NEEDS_CONFIRMATION approvals. With none installed, confirmations
// auto-approve so headless automation is never stuck on a prompt.
func (s *Session) SetConfirmationResolver(resolver agent.ConfirmationResolver) {
	if s.agent != nil {
		s.agent.Confirm = resolver
	}
}

// Close shuts external providers down and persists the final snapshot.
func (s *Session) Close() {
	if s.supervisor != nil {
		s.supervisor.Shutdown()
	}
	if s.discovery != nil {
		s.discovery.Close()
	}
	if s.agent != nil && s.agent.TurnCount() > 0 {
		_ = s.store.Save(context.Background(), s.agent.Snapshot())
	}
	if indexed, ok := s.store.(*sessions.IndexedStore); ok {
		_ = indexed.Close()
	}
}

// Stats reports the session's current accounting for /stats.
func (s *Session) Stats() Stats {
	stats := Stats{
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		Model:     s.cfg.Model.Name,
		Approval:  string(s.approvals.Policy()),
	}
	if s.agent != nil {
		stats.TurnCount = s.agent.TurnCount()
		stats.TotalUsage = s.agent.TotalUsage()
	}
	if s.context != nil {
		stats.MessageCount = len(s.context.GetMessages())
	}
	return stats
}

// ToolNames lists every registered tool, sorted, for /tools and the
// system prompt.
func (s *Session) ToolNames() []string {
	tools := s.registry.List()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	sort.Strings(names)
	return names
}

// MCPStatuses reports server health for /mcp and /mcp-health.
func (s *Session) MCPStatuses() []mcp.ServerStatus {
	return s.supervisor.Statuses()
}

// MCPHealthSweep forces one reconnect pass, for /mcp-health.
func (s *Session) MCPHealthSweep(ctx context.Context) []mcp.ServerStatus {
	s.supervisor.Sweep(ctx)
	return s.supervisor.Statuses()
}

// ReloadTools re-runs plug-in discovery for /reload and returns the
// errors of the new pass.
func (s *Session) ReloadTools(ctx context.Context) []plugins.DiscoveryError {
	s.discovery.Reload(ctx)
	return s.discovery.Errors()
}

// DiscoveryErrors returns the most recent discovery pass's failures.
func (s *Session) DiscoveryErrors() []plugins.DiscoveryError {
	return s.discovery.Errors()
}

// SetApprovalPolicy switches the active policy for /approval.
func (s *Session) SetApprovalPolicy(policy string) error {
	switch agent.ApprovalPolicy(policy) {
	case agent.PolicyOnRequest, agent.PolicyOnFailure, agent.PolicyAuto,
		agent.PolicyAutoEdit, agent.PolicyNever, agent.PolicyYolo:
		s.approvals.SetPolicy(agent.ApprovalPolicy(policy))
		return nil
	}
	return fmt.Errorf("engine: unknown approval policy %q", policy)
}

// SetModel switches the model for subsequent turns, for /model.
func (s *Session) SetModel(model string) {
	s.cfg.Model.Name = model
	if s.agent != nil {
		s.agent.Model = model
	}
}

// ClearContext drops the conversation for /clear; the system prompt and
// tool roster survive.
func (s *Session) ClearContext() {
	if s.context != nil {
		s.context.Clear()
	}
}

// Save persists the current snapshot for /save and returns the session id.
func (s *Session) Save(ctx context.Context) (string, error) {
	if s.agent == nil {
		return "", fmt.Errorf("engine: session not initialized")
	}
	if err := s.store.Save(ctx, s.agent.Snapshot()); err != nil {
		return "", err
	}
	return s.ID, nil
}

// ListSessions returns stored snapshots, newest first, for /sessions.
func (s *Session) ListSessions(ctx context.Context) ([]*models.SessionSnapshot, error) {
	return s.store.List(ctx)
}

// Resume loads a stored session's history into this session for /resume.
func (s *Session) Resume(ctx context.Context, id string) error {
	if s.agent == nil {
		return fmt.Errorf("engine: session not initialized")
	}
	if err := s.agent.Resume(ctx, id); err != nil {
		return err
	}
	s.ID = id
	return nil
}

// Checkpoint writes an immutable point-in-time copy for /checkpoint.
func (s *Session) Checkpoint(ctx context.Context) (string, error) {
	if s.agent == nil {
		return "", fmt.Errorf("engine: session not initialized")
	}
	return s.store.SaveCheckpoint(ctx, s.agent.Snapshot())
}

// Restore replaces the conversation with a checkpoint for /restore.
func (s *Session) Restore(ctx context.Context, checkpointID string) error {
	if s.agent == nil {
		return fmt.Errorf("engine: session not initialized")
	}
	snapshot, err := s.store.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, snapshot); err != nil {
		return err
	}
	return s.agent.Resume(ctx, snapshot.ID)
}

// providerCompleter adapts the streaming provider to the compactor's one
// shot, non-streaming contract by draining a single stream.
type providerCompleter struct {
	provider agent.LLMProvider
	model    string
}

func (c *providerCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, models.TokenUsage, error) {
	req := &agent.CompletionRequest{
		Model:  c.model,
		System: systemPrompt,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: 4096,
	}
	ch, err := c.provider.Stream(ctx, req)
	if err != nil {
		return "", models.TokenUsage{}, err
	}

	var text string
	var usage models.TokenUsage
	for event := range ch {
		switch event.Type {
		case agent.StreamEventTextDelta:
			text += event.TextDelta
		case agent.StreamEventMessageComplete:
			usage = event.Usage
		case agent.StreamEventError:
			return "", models.TokenUsage{}, event.Err
		}
	}
	return text, usage, nil
}
