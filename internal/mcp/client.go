package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Client drives one MCP server through an explicit status state machine:
// disconnected → connecting → connected, with error as the terminal state
// of any failed transition. The client owns its transport and closes it on
// every transition to disconnected or error, so a half-open subprocess or
// HTTP stream never outlives the state that justified it.
type Client struct {
	config *ServerConfig
	logger *slog.Logger

	mu         sync.RWMutex
	transport  Transport
	status     Status
	lastError  string
	serverInfo ServerInfo
	tools      []*Tool
	resources  []*Resource
	prompts    []*Prompt
}

// NewClient returns a disconnected client for cfg.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: cfg,
		logger: logger.With("component", "mcp", "server", cfg.Name),
		status: StatusDisconnected,
	}
}

// Connect runs the full handshake: transport connect, initialize,
// initialized notification, capability listing. The caller bounds ctx with
// the server's startup timeout. On any failure the transport is closed and
// the client lands in StatusError with the failure recorded.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusConnected || c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.lastError = ""
	transport := newTransport(c.config)
	c.transport = transport
	c.mu.Unlock()

	if err := c.handshake(ctx, transport); err != nil {
		transport.Close()
		c.mu.Lock()
		c.status = StatusError
		c.lastError = err.Error()
		c.transport = nil
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.status = StatusConnected
	c.mu.Unlock()
	return nil
}

func (c *Client) handshake(ctx context.Context, transport Transport) error {
	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "ai-agent",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	if err := transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}

	c.refreshCapabilities(ctx, transport)
	c.logger.Info("connected",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"tools", len(c.Tools()))
	return nil
}

// refreshCapabilities re-lists tools, resources, and prompts. A listing
// that fails leaves the previous cache in place; servers without one of
// the capabilities simply return an RPC error here.
func (c *Client) refreshCapabilities(ctx context.Context, transport Transport) {
	if result, err := transport.Call(ctx, "tools/list", nil); err == nil {
		var resp listToolsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.tools = resp.Tools
			c.mu.Unlock()
		}
	}
	if result, err := transport.Call(ctx, "resources/list", nil); err == nil {
		var resp listResourcesResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.resources = resp.Resources
			c.mu.Unlock()
		}
	}
	if result, err := transport.Call(ctx, "prompts/list", nil); err == nil {
		var resp listPromptsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.prompts = resp.Prompts
			c.mu.Unlock()
		}
	}
}

// Close transitions to disconnected, closing the transport if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	return nil
}

// Config returns the server configuration this client was built from.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// Status returns the current lifecycle state. A client whose transport has
// died underneath it (subprocess exit, stream EOF) reports error even if
// no explicit transition has run yet, so the health sweep picks it up.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status == StatusConnected && (c.transport == nil || !c.transport.Connected()) {
		return StatusError
	}
	return c.status
}

// LastError returns the most recent connect failure's text, if any.
func (c *Client) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// MarkError forces the client into the error state, closing any open
// transport. Used when a connected client's transport is observed dead.
func (c *Client) MarkError(reason string) {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	c.status = StatusError
	c.lastError = reason
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
}

// ServerInfo returns the identity the server reported at initialize.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Tools returns the cached tool listing.
func (c *Client) Tools() []*Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Resources returns the cached resource listing.
func (c *Client) Resources() []*Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

// Prompts returns the cached prompt listing.
func (c *Client) Prompts() []*Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

func (c *Client) liveTransport() (Transport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != StatusConnected || c.transport == nil {
		return nil, fmt.Errorf("server %s not connected", c.config.Name)
	}
	return c.transport, nil
}

// CallTool invokes one tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	transport, err := c.liveTransport()
	if err != nil {
		return nil, err
	}

	params := CallToolParams{Name: name}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = raw
	}

	result, err := transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}

// ReadResource reads one resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	transport, err := c.liveTransport()
	if err != nil {
		return nil, err
	}
	result, err := transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var readResult readResourceResult
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return readResult.Contents, nil
}

// GetPrompt fetches one prompt template with arguments filled in.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	transport, err := c.liveTransport()
	if err != nil {
		return nil, err
	}
	result, err := transport.Call(ctx, "prompts/get", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}
	var promptResult GetPromptResult
	if err := json.Unmarshal(result, &promptResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &promptResult, nil
}
