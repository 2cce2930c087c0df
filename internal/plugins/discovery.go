package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/internal/mcp"
	"github.com/haasonsaas/ai-agent/internal/shell"
)

// ErrorCategory classifies a discovery failure.
type ErrorCategory string

const (
	ErrorLoad        ErrorCategory = "load"
	ErrorParse       ErrorCategory = "parse"
	ErrorInstantiate ErrorCategory = "instantiate"
)

// DiscoveryError records one plug-in that failed to come up, with the
// descriptor file it came from.
type DiscoveryError struct {
	Category ErrorCategory
	File     string
	Err      string
}

// ToolsDirName is the per-project and per-user plug-in directory name.
const ToolsDirName = "tools"

// Manager discovers tool plug-ins from the well-known directories and
// registers their tools. Each plug-in is an out-of-process tool server
// spoken to over MCP stdio; the Manager owns those clients and tears them
// down on Reload and Close.
type Manager struct {
	registry *agent.ToolRegistry
	dirs     []string
	logger   *slog.Logger

	mu         sync.Mutex
	clients    map[string]*mcp.Client // manifest id -> client
	registered map[string][]string    // manifest id -> tool names
	errors     []DiscoveryError
	watcher    *fsnotify.Watcher
}

// NewManager returns a discovery manager scanning the project directory
// (<cwd>/.ai-agent/tools) and the user config directory (<config>/tools).
func NewManager(cwd, configDir string, registry *agent.ToolRegistry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	var dirs []string
	if cwd != "" {
		dirs = append(dirs, filepath.Join(cwd, ".ai-agent", ToolsDirName))
	}
	if configDir != "" {
		dirs = append(dirs, filepath.Join(configDir, ToolsDirName))
	}
	return &Manager{
		registry:   registry,
		dirs:       dirs,
		logger:     logger.With("component", "discovery"),
		clients:    make(map[string]*mcp.Client),
		registered: make(map[string][]string),
	}
}

// Dirs returns the directories this manager scans.
func (m *Manager) Dirs() []string {
	return m.dirs
}

// DiscoverAll clears prior errors, scans every directory for descriptor
// files, and brings up each declared plug-in. Failures are accumulated per
// descriptor; one broken plug-in never stops the rest.
func (m *Manager) DiscoverAll(ctx context.Context) {
	m.mu.Lock()
	m.errors = nil
	m.mu.Unlock()

	for _, dir := range m.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				m.recordError(ErrorLoad, dir, err)
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !isDescriptorFilename(entry.Name()) {
				continue
			}
			m.loadDescriptor(ctx, filepath.Join(dir, entry.Name()))
		}
	}
}

func (m *Manager) loadDescriptor(ctx context.Context, path string) {
	manifest, err := decodeDescriptorFile(path)
	if err != nil {
		category := ErrorParse
		if os.IsNotExist(err) {
			category = ErrorLoad
		}
		m.recordError(category, path, err)
		return
	}
	if err := manifest.Validate(); err != nil {
		m.recordError(ErrorParse, path, err)
		return
	}
	if manifest.Command == "" {
		m.recordError(ErrorParse, path, fmt.Errorf("descriptor names no command"))
		return
	}
	if !shell.IsSafeExecutable(manifest.Command) {
		m.recordError(ErrorParse, path, fmt.Errorf("unsafe command %q", manifest.Command))
		return
	}

	m.mu.Lock()
	_, exists := m.clients[manifest.ID]
	m.mu.Unlock()
	if exists {
		m.recordError(ErrorParse, path, fmt.Errorf("duplicate plug-in id %q", manifest.ID))
		return
	}

	serverCfg := &mcp.ServerConfig{
		Name:    manifest.ID,
		Enabled: true,
		Command: manifest.Command,
		Args:    manifest.Args,
	}
	client := mcp.NewClient(serverCfg, m.logger)

	connectCtx, cancel := context.WithTimeout(ctx, mcp.DefaultStartupTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		m.recordError(ErrorInstantiate, path, err)
		return
	}

	var names []string
	for _, tool := range client.Tools() {
		bridged := mcp.NewToolBridge(clientCaller{client}, manifest.ID, tool, tool.Name)
		m.registry.Register(bridged)
		names = append(names, tool.Name)
	}

	m.mu.Lock()
	m.clients[manifest.ID] = client
	m.registered[manifest.ID] = names
	m.mu.Unlock()

	m.logger.Info("loaded plug-in", "id", manifest.ID, "descriptor", path, "tools", len(names))
}

// clientCaller adapts one client to the bridge's ToolCaller contract,
// ignoring the server name since the client is already bound to it.
type clientCaller struct {
	client *mcp.Client
}

func (c clientCaller) CallTool(ctx context.Context, server, toolName string, arguments map[string]any) (*mcp.ToolCallResult, error) {
	return c.client.CallTool(ctx, toolName, arguments)
}

// Reload unregisters every previously discovered tool, shuts its plug-in
// servers down, and repeats discovery.
func (m *Manager) Reload(ctx context.Context) {
	m.teardown()
	m.DiscoverAll(ctx)
}

// Close shuts every plug-in server down and stops the watcher.
func (m *Manager) Close() {
	m.teardown()
	m.mu.Lock()
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	m.mu.Unlock()
}

func (m *Manager) teardown() {
	m.mu.Lock()
	clients := m.clients
	registered := m.registered
	m.clients = make(map[string]*mcp.Client)
	m.registered = make(map[string][]string)
	m.mu.Unlock()

	for _, names := range registered {
		for _, name := range names {
			m.registry.Unregister(name)
		}
	}
	for _, client := range clients {
		_ = client.Close()
	}
}

// Errors returns the failures from the most recent discovery pass.
func (m *Manager) Errors() []DiscoveryError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DiscoveryError(nil), m.errors...)
}

// ToolNames returns every currently registered discovered tool.
func (m *Manager) ToolNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, toolNames := range m.registered {
		names = append(names, toolNames...)
	}
	return names
}

func (m *Manager) recordError(category ErrorCategory, file string, err error) {
	m.mu.Lock()
	m.errors = append(m.errors, DiscoveryError{Category: category, File: file, Err: err.Error()})
	m.mu.Unlock()
	m.logger.Warn("plug-in discovery error", "category", category, "file", file, "error", err)
}

// Watch reloads plug-ins whenever a descriptor directory changes, until
// ctx is done. Directories that do not exist yet are skipped; a later
// Reload picks them up if created.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("plugins: start watcher: %w", err)
	}
	watched := 0
	for _, dir := range m.dirs {
		if err := watcher.Add(dir); err == nil {
			watched++
		}
	}
	if watched == 0 {
		watcher.Close()
		return nil
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if !isDescriptorFilename(filepath.Base(event.Name)) {
					continue
				}
				m.logger.Debug("descriptor change, reloading", "file", event.Name)
				m.Reload(ctx)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("watcher error", "error", err)
			}
		}
	}()
	return nil
}
