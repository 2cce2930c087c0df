package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the wire layer beneath a Client: framing and delivery of
// JSON-RPC messages, nothing protocol-specific above that. A transport is
// owned by exactly one Client, which closes it on every transition to
// disconnected or error.
type Transport interface {
	// Connect establishes the underlying connection (spawns the
	// subprocess for stdio, verifies reachability for http).
	Connect(ctx context.Context) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// Call sends a request and waits for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error

	// Events delivers server-initiated notifications.
	Events() <-chan *JSONRPCNotification

	// Connected reports whether the transport currently has a live
	// connection.
	Connected() bool
}

// newTransport selects the transport for cfg: URL means HTTP, otherwise
// stdio. Validate has already enforced that exactly one is set.
func newTransport(cfg *ServerConfig) Transport {
	if cfg.URL != "" {
		return newHTTPTransport(cfg)
	}
	return newStdioTransport(cfg)
}
