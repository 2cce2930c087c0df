package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/ai-agent/internal/agent"
)

// HealthSweepInterval is how often the supervisor re-checks every client
// and retries connects for anything not in the connected state.
const HealthSweepInterval = 60 * time.Second

// Manager supervises every configured MCP server: parallel connect at
// startup (each bounded by its own startup timeout), registration of
// advertised tools into the agent's registry, a single periodic health
// sweep that owns all reconnection, and parallel disconnect at shutdown.
//
// One server's failure never affects another: connect errors are recorded
// on that server's client and the rest of the system proceeds with the
// tools it has.
type Manager struct {
	logger   *slog.Logger
	registry *agent.ToolRegistry

	mu         sync.RWMutex
	clients    map[string]*Client
	registered map[string][]string // server name -> registry tool names
	sweeper    *cron.Cron
}

// NewManager returns a supervisor over servers, registering their tools
// into registry as they connect. Servers with Enabled=false or an invalid
// transport config are skipped with a log line.
func NewManager(servers map[string]*ServerConfig, registry *agent.ToolRegistry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:     logger.With("component", "mcp"),
		registry:   registry,
		clients:    make(map[string]*Client),
		registered: make(map[string][]string),
	}
	for name, cfg := range servers {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		cfg.Name = name
		if err := cfg.Validate(); err != nil {
			m.logger.Warn("skipping invalid server config", "server", name, "error", err)
			continue
		}
		m.clients[name] = NewClient(cfg, logger)
	}
	return m
}

// Start connects every configured server in parallel, each wrapped in its
// own startup timeout, and waits for all of them to settle. Connect
// failures are logged and recorded on the client; Start itself never
// fails. The health sweep timer starts once all initial connects settle.
func (m *Manager) Start(ctx context.Context) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			m.connectAndRegister(ctx, c)
		}(client)
	}
	wg.Wait()

	m.startHealthSweep()
}

func (m *Manager) connectAndRegister(ctx context.Context, c *Client) {
	connectCtx, cancel := context.WithTimeout(ctx, c.Config().startupTimeout())
	defer cancel()

	if err := c.Connect(connectCtx); err != nil {
		m.logger.Warn("server connect failed", "server", c.Config().Name, "error", err)
		return
	}
	m.registerServerTools(c)
}

// registerServerTools bridges every tool the server advertises into the
// agent registry under "<server>__<tool>", replacing whatever that server
// registered before.
func (m *Manager) registerServerTools(c *Client) {
	if m.registry == nil {
		return
	}
	server := c.Config().Name

	m.unregisterServerTools(server)

	var names []string
	for _, tool := range c.Tools() {
		name := BridgedToolName(server, tool.Name)
		m.registry.Register(NewToolBridge(m, server, tool, name))
		names = append(names, name)
	}
	if len(c.Resources()) > 0 {
		name := BridgedToolName(server, "read_resource")
		m.registry.Register(NewResourceReadTool(m, server, name))
		names = append(names, name)
	}
	if len(c.Prompts()) > 0 {
		name := BridgedToolName(server, "get_prompt")
		m.registry.Register(NewPromptGetTool(m, server, name))
		names = append(names, name)
	}

	m.mu.Lock()
	m.registered[server] = names
	m.mu.Unlock()

	m.logger.Info("registered server tools", "server", server, "count", len(names))
}

func (m *Manager) unregisterServerTools(server string) {
	m.mu.Lock()
	names := m.registered[server]
	delete(m.registered, server)
	m.mu.Unlock()

	if m.registry == nil {
		return
	}
	for _, name := range names {
		m.registry.Unregister(name)
	}
}

// startHealthSweep arms the periodic reconnect timer. All reconnection
// runs from this single timer so a flapping server cannot be dog-piled by
// concurrent connect attempts.
func (m *Manager) startHealthSweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweeper != nil {
		return
	}
	m.sweeper = cron.New()
	m.sweeper.Schedule(cron.Every(HealthSweepInterval), cron.FuncJob(func() {
		m.Sweep(context.Background())
	}))
	m.sweeper.Start()
}

// Sweep checks every client and retries the connect for any that is not
// connected. Individual failures are recorded and never abort the sweep.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		status := client.Status()
		if status == StatusConnected {
			continue
		}
		// A client whose transport died while nominally connected must be
		// torn down before reconnecting.
		if status == StatusError && client.LastError() == "" {
			client.MarkError("transport lost")
		}
		client.Close()
		m.logger.Debug("health sweep reconnecting", "server", client.Config().Name, "status", status)
		m.connectAndRegister(ctx, client)
	}
}

// Shutdown cancels the health sweep, disconnects every client in parallel
// with errors suppressed, and clears all supervisor state.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.sweeper != nil {
		m.sweeper.Stop()
		m.sweeper = nil
	}
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	var names []string
	for _, serverNames := range m.registered {
		names = append(names, serverNames...)
	}
	m.clients = make(map[string]*Client)
	m.registered = make(map[string][]string)
	m.mu.Unlock()

	if m.registry != nil {
		for _, name := range names {
			m.registry.Unregister(name)
		}
	}

	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			_ = c.Close()
		}(client)
	}
	wg.Wait()
}

// Client returns the client for one server name.
func (m *Manager) Client(server string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[server]
	return c, ok
}

// CallTool invokes a tool on one server; the RPC is bounded by the
// server's call timeout via its transport.
func (m *Manager) CallTool(ctx context.Context, server, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	client, ok := m.Client(server)
	if !ok {
		return nil, fmt.Errorf("server %q not configured", server)
	}
	return client.CallTool(ctx, toolName, arguments)
}

// ReadResource reads a resource from one server.
func (m *Manager) ReadResource(ctx context.Context, server, uri string) ([]*ResourceContent, error) {
	client, ok := m.Client(server)
	if !ok {
		return nil, fmt.Errorf("server %q not configured", server)
	}
	return client.ReadResource(ctx, uri)
}

// GetPrompt fetches a prompt from one server.
func (m *Manager) GetPrompt(ctx context.Context, server, name string, arguments map[string]string) (*GetPromptResult, error) {
	client, ok := m.Client(server)
	if !ok {
		return nil, fmt.Errorf("server %q not configured", server)
	}
	return client.GetPrompt(ctx, name, arguments)
}

// ServerStatus is one server's health as reported by /mcp and
// /mcp-health.
type ServerStatus struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	Tools     int    `json:"tools"`
	Resources int    `json:"resources"`
	Prompts   int    `json:"prompts"`
}

// Statuses reports every configured server, sorted by name.
func (m *Manager) Statuses() []ServerStatus {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(clients))
	for _, c := range clients {
		statuses = append(statuses, ServerStatus{
			Name:      c.Config().Name,
			Status:    c.Status(),
			Error:     c.LastError(),
			Tools:     len(c.Tools()),
			Resources: len(c.Resources()),
			Prompts:   len(c.Prompts()),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
