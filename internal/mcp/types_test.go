package mcp

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"stdio", ServerConfig{Name: "s", Command: "server"}, false},
		{"http", ServerConfig{Name: "s", URL: "http://localhost:8080"}, false},
		{"https", ServerConfig{Name: "s", URL: "https://example.com/mcp"}, false},
		{"both transports", ServerConfig{Name: "s", Command: "server", URL: "http://x"}, true},
		{"no transport", ServerConfig{Name: "s"}, true},
		{"missing name", ServerConfig{Command: "server"}, true},
		{"bad scheme", ServerConfig{Name: "s", URL: "ftp://example.com"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestServerConfigTimeoutDefaults(t *testing.T) {
	cfg := &ServerConfig{Name: "s", Command: "server"}
	if got := cfg.startupTimeout(); got != DefaultStartupTimeout {
		t.Errorf("startupTimeout() = %v, want %v", got, DefaultStartupTimeout)
	}
	if got := cfg.callTimeout(); got != DefaultCallTimeout {
		t.Errorf("callTimeout() = %v, want %v", got, DefaultCallTimeout)
	}

	cfg.StartupTimeout = 3 * time.Second
	cfg.CallTimeout = 5 * time.Second
	if got := cfg.startupTimeout(); got != 3*time.Second {
		t.Errorf("startupTimeout() = %v, want 3s", got)
	}
	if got := cfg.callTimeout(); got != 5*time.Second {
		t.Errorf("callTimeout() = %v, want 5s", got)
	}
}

func TestToolJSONRoundTrip(t *testing.T) {
	tool := Tool{
		Name:        "search",
		Description: "Search things",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`),
	}
	data, err := json.Marshal(tool)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Tool
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Name != tool.Name || decoded.Description != tool.Description {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestToolCallResultError(t *testing.T) {
	payload := `{"content":[{"type":"text","text":"it broke"}],"isError":true}`
	var result ToolCallResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError")
	}
	content, isError := formatToolCallResult(&result)
	if !isError || content != "it broke" {
		t.Errorf("formatToolCallResult = (%q, %v)", content, isError)
	}
}

func TestJSONRPCResponseWithError(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`
	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestInitializeResultJSON(t *testing.T) {
	payload := `{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"srv","version":"2.1"}}`
	var result InitializeResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ServerInfo.Name != "srv" || result.ServerInfo.Version != "2.1" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q", result.ProtocolVersion)
	}
}
