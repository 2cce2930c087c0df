package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/ai-agent/internal/agent"
)

type stubTransport struct {
	connected bool
}

func (s *stubTransport) Connect(ctx context.Context) error { s.connected = true; return nil }
func (s *stubTransport) Close() error                      { s.connected = false; return nil }
func (s *stubTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return nil, nil
}
func (s *stubTransport) Notify(ctx context.Context, method string, params any) error { return nil }
func (s *stubTransport) Events() <-chan *JSONRPCNotification                         { return nil }
func (s *stubTransport) Connected() bool                                             { return s.connected }

// connectedClient fabricates a client already in the connected state with
// the given advertised tools, standing in for a live server.
func connectedClient(name string, tools ...*Tool) *Client {
	return &Client{
		config:    &ServerConfig{Name: name, Enabled: true, Command: "srv"},
		status:    StatusConnected,
		transport: &stubTransport{connected: true},
		tools:     tools,
	}
}

func newTestManager(registry *agent.ToolRegistry, clients ...*Client) *Manager {
	m := &Manager{
		logger:     testLogger(),
		registry:   registry,
		clients:    make(map[string]*Client),
		registered: make(map[string][]string),
	}
	for _, c := range clients {
		m.clients[c.config.Name] = c
	}
	return m
}

func TestNewManagerSkipsDisabledAndInvalid(t *testing.T) {
	servers := map[string]*ServerConfig{
		"off":  {Enabled: false, Command: "srv"},
		"bad":  {Enabled: true, Command: "srv", URL: "http://x"},
		"good": {Enabled: true, Command: "srv"},
	}
	m := NewManager(servers, agent.NewToolRegistry(), testLogger())

	if _, ok := m.Client("off"); ok {
		t.Error("disabled server should not get a client")
	}
	if _, ok := m.Client("bad"); ok {
		t.Error("invalid server should not get a client")
	}
	if _, ok := m.Client("good"); !ok {
		t.Error("valid server should get a client")
	}
}

func TestRegisterServerToolsNamespaces(t *testing.T) {
	registry := agent.NewToolRegistry()
	client := connectedClient("github",
		&Tool{Name: "search", InputSchema: json.RawMessage(`{"type":"object"}`)},
		&Tool{Name: "create_issue", InputSchema: json.RawMessage(`{"type":"object"}`)},
	)
	m := newTestManager(registry, client)

	m.registerServerTools(client)

	for _, want := range []string{"github__search", "github__create_issue"} {
		if _, ok := registry.Get(want); !ok {
			t.Errorf("expected registry to contain %q", want)
		}
	}
}

func TestRegisterServerToolsReplacesPrior(t *testing.T) {
	registry := agent.NewToolRegistry()
	client := connectedClient("srv", &Tool{Name: "old"})
	m := newTestManager(registry, client)

	m.registerServerTools(client)
	if _, ok := registry.Get("srv__old"); !ok {
		t.Fatal("expected srv__old registered")
	}

	client.mu.Lock()
	client.tools = []*Tool{{Name: "new"}}
	client.mu.Unlock()
	m.registerServerTools(client)

	if _, ok := registry.Get("srv__old"); ok {
		t.Error("expected srv__old unregistered after re-registration")
	}
	if _, ok := registry.Get("srv__new"); !ok {
		t.Error("expected srv__new registered")
	}
}

// One server failing to connect must not affect another server's tools:
// the good server's tools are present under its namespace and the failed
// one only shows up in the status report.
func TestManagerServerFailureIsIsolated(t *testing.T) {
	registry := agent.NewToolRegistry()
	good := connectedClient("goodserver", &Tool{Name: "echo"})
	bad := NewClient(&ServerConfig{Name: "badserver", Enabled: true, Command: "/does/not/exist"}, testLogger())
	m := newTestManager(registry, good, bad)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.connectAndRegister(ctx, bad)
	m.registerServerTools(good)

	if _, ok := registry.Get("goodserver__echo"); !ok {
		t.Error("good server's tool missing from registry")
	}

	statuses := m.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	byName := map[string]ServerStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	if byName["badserver"].Status != StatusError {
		t.Errorf("bad server status = %s, want error", byName["badserver"].Status)
	}
	if byName["badserver"].Error == "" {
		t.Error("bad server should record its connect error")
	}
	if byName["goodserver"].Status != StatusConnected {
		t.Errorf("good server status = %s, want connected", byName["goodserver"].Status)
	}
}

func TestStartSettlesAllServers(t *testing.T) {
	servers := map[string]*ServerConfig{
		"a": {Enabled: true, Command: "/does/not/exist-a"},
		"b": {Enabled: true, Command: "/does/not/exist-b"},
	}
	m := NewManager(servers, agent.NewToolRegistry(), testLogger())
	defer m.Shutdown()

	m.Start(context.Background())

	for _, s := range m.Statuses() {
		if s.Status != StatusError {
			t.Errorf("server %s status = %s, want error", s.Name, s.Status)
		}
	}
}

func TestShutdownClearsState(t *testing.T) {
	registry := agent.NewToolRegistry()
	client := connectedClient("srv", &Tool{Name: "echo"})
	m := newTestManager(registry, client)
	m.registerServerTools(client)
	m.startHealthSweep()

	m.Shutdown()

	if _, ok := m.Client("srv"); ok {
		t.Error("expected clients cleared after shutdown")
	}
	if _, ok := registry.Get("srv__echo"); ok {
		t.Error("expected bridged tools unregistered after shutdown")
	}
	if client.Status() != StatusDisconnected {
		t.Errorf("client status = %s, want disconnected", client.Status())
	}
}

func TestSweepRetriesDisconnected(t *testing.T) {
	bad := NewClient(&ServerConfig{Name: "flaky", Enabled: true, Command: "/does/not/exist"}, testLogger())
	m := newTestManager(agent.NewToolRegistry(), bad)

	m.Sweep(context.Background())

	if bad.Status() != StatusError {
		t.Errorf("status = %s, want error after failed sweep reconnect", bad.Status())
	}
	if bad.LastError() == "" {
		t.Error("expected sweep to record the reconnect failure")
	}
}
