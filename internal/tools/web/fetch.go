// Package web implements the network tools: web_fetch, which retrieves a
// URL with a bounded timeout and size cap, and the web_search stub.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

// DefaultFetchTimeout bounds a fetch that requests none.
const DefaultFetchTimeout = 30 * time.Second

// MaxFetchTimeout caps any requested fetch timeout.
const MaxFetchTimeout = 120 * time.Second

// MaxBodyBytes caps how much of a response body is returned.
const MaxBodyBytes = 512 * 1024

var fetchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "URL to fetch (http or https)."},
		"timeout_seconds": {"type": "integer", "description": "Timeout in seconds (default 30, max 120).", "minimum": 0}
	},
	"required": ["url"]
}`)

type fetchInput struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// NewFetchTool returns the web_fetch tool. client may be nil; the default
// client follows redirects and enforces the per-call timeout via context.
func NewFetchTool(client *http.Client) *agent.Tool {
	if client == nil {
		client = &http.Client{}
	}

	return &agent.Tool{
		ToolName:        "web_fetch",
		ToolDescription: "Fetch a URL and return its body text (capped).",
		Kind:            agent.ToolKindNetwork,
		ParameterSchema: fetchSchema,
		Confirmation: func(args json.RawMessage) *models.ToolConfirmation {
			var input fetchInput
			if err := json.Unmarshal(args, &input); err != nil {
				return nil
			}
			return &models.ToolConfirmation{
				ToolName:    "web_fetch",
				Arguments:   map[string]any{"url": input.URL},
				Description: "Fetch " + input.URL,
			}
		},
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return executeFetch(ctx, client, args)
		},
	}
}

func executeFetch(ctx context.Context, client *http.Client, params json.RawMessage) (*models.ToolResult, error) {
	var input fetchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
	}
	url := strings.TrimSpace(input.URL)
	if url == "" {
		return &models.ToolResult{Success: false, Error: "url is required"}, nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return &models.ToolResult{Success: false, Error: "url must start with http:// or https://"}, nil
	}

	timeout := time.Duration(input.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if timeout > MaxFetchTimeout {
		timeout = MaxFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("build request: %v", err)}, nil
	}
	req.Header.Set("User-Agent", "ai-agent/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("fetch: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("read body: %v", err)}, nil
	}
	truncated := false
	if len(body) > MaxBodyBytes {
		body = body[:MaxBodyBytes]
		truncated = true
	}

	result := &models.ToolResult{
		Output:    string(body),
		Truncated: truncated,
		Metadata: map[string]any{
			"status":       resp.StatusCode,
			"content_type": resp.Header.Get("Content-Type"),
		},
	}
	if resp.StatusCode >= 400 {
		result.Success = false
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result, nil
	}
	result.Success = true
	return result, nil
}

var searchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Search query."}
	},
	"required": ["query"]
}`)

// NewSearchTool returns the web_search stub. No search backend is wired;
// the tool always fails with a pointer at web_fetch so the model can
// route around it.
func NewSearchTool() *agent.Tool {
	return &agent.Tool{
		ToolName:        "web_search",
		ToolDescription: "Search the web (not available in this build).",
		Kind:            agent.ToolKindNetwork,
		ParameterSchema: searchSchema,
		Mutating:        func(json.RawMessage) bool { return false },
		Invoke: func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			return &models.ToolResult{
				Success: false,
				Error:   "web_search is not available; fetch a known URL with web_fetch instead",
			}, nil
		},
	}
}
