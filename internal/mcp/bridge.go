package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/haasonsaas/ai-agent/internal/agent"
	"github.com/haasonsaas/ai-agent/pkg/models"
)

const maxToolNameLen = 64

// ToolCaller is the slice of the supervisor the tool bridge needs.
type ToolCaller interface {
	CallTool(ctx context.Context, server, toolName string, arguments map[string]any) (*ToolCallResult, error)
}

// ResourceReader is the resources/read contract used by the bridge.
type ResourceReader interface {
	ReadResource(ctx context.Context, server, uri string) ([]*ResourceContent, error)
}

// PromptGetter is the prompts/get contract used by the bridge.
type PromptGetter interface {
	GetPrompt(ctx context.Context, server, name string, arguments map[string]string) (*GetPromptResult, error)
}

// BridgedToolName derives the registry name for a server's tool:
// "<server>__<tool>", each part sanitized to lowercase word characters.
// Names that would exceed the length cap are truncated with a short hash
// so two long names never collide.
func BridgedToolName(server, toolName string) string {
	name := sanitizeNamePart(server) + "__" + sanitizeNamePart(toolName)
	if len(name) > maxToolNameLen {
		suffix := "_" + nameHash(server, toolName)
		name = name[:maxToolNameLen-len(suffix)] + suffix
	}
	return name
}

func sanitizeNamePart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func nameHash(server, toolName string) string {
	sum := sha1.Sum([]byte(server + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

// NewToolBridge wraps one MCP tool as an *agent.Tool. An MCP server is an
// arbitrary external process, so every bridged tool is treated as mutating
// and of kind mcp regardless of what the tool claims to do.
func NewToolBridge(caller ToolCaller, server string, tool *Tool, name string) *agent.Tool {
	desc := strings.TrimSpace(tool.Description)
	if desc == "" {
		desc = fmt.Sprintf("MCP tool %s on server %s.", tool.Name, server)
	}

	schema := tool.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	return &agent.Tool{
		ToolName:        name,
		ToolDescription: desc,
		Kind:            agent.ToolKindMCP,
		ParameterSchema: schema,
		Mutating:        func(json.RawMessage) bool { return true },
		Confirmation: func(args json.RawMessage) *models.ToolConfirmation {
			var arguments map[string]any
			_ = json.Unmarshal(args, &arguments)
			return &models.ToolConfirmation{
				ToolName:    name,
				Arguments:   arguments,
				Description: fmt.Sprintf("Call MCP tool %s on server %s", tool.Name, server),
			}
		},
		Invoke: func(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
			var arguments map[string]any
			if len(params) > 0 {
				if err := json.Unmarshal(params, &arguments); err != nil {
					return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
				}
			}
			result, err := caller.CallTool(ctx, server, tool.Name, arguments)
			if err != nil {
				return &models.ToolResult{Success: false, Error: err.Error()}, nil
			}
			content, isError := formatToolCallResult(result)
			return &models.ToolResult{Success: !isError, Output: content, Error: errIfTrue(isError, content)}, nil
		},
	}
}

// errIfTrue returns content as the failure's error text when isError, since
// an MCP tool failure carries its explanation in Content rather than a
// separate field.
func errIfTrue(isError bool, content string) string {
	if !isError {
		return ""
	}
	return content
}

// NewResourceReadTool exposes resources/read for one server as a tool.
func NewResourceReadTool(reader ResourceReader, server, name string) *agent.Tool {
	return &agent.Tool{
		ToolName:        name,
		ToolDescription: fmt.Sprintf("Read an MCP resource from server %s by uri.", server),
		Kind:            agent.ToolKindMCP,
		ParameterSchema: json.RawMessage(`{"type":"object","properties":{"uri":{"type":"string"}},"required":["uri"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
			var input struct {
				URI string `json:"uri"`
			}
			if err := json.Unmarshal(params, &input); err != nil {
				return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
			}
			if strings.TrimSpace(input.URI) == "" {
				return &models.ToolResult{Success: false, Error: "uri is required"}, nil
			}
			contents, err := reader.ReadResource(ctx, server, input.URI)
			if err != nil {
				return &models.ToolResult{Success: false, Error: err.Error()}, nil
			}
			return &models.ToolResult{Success: true, Output: formatResourceContents(contents)}, nil
		},
	}
}

// NewPromptGetTool exposes prompts/get for one server as a tool.
func NewPromptGetTool(getter PromptGetter, server, name string) *agent.Tool {
	return &agent.Tool{
		ToolName:        name,
		ToolDescription: fmt.Sprintf("Fetch an MCP prompt from server %s (provide name, arguments).", server),
		Kind:            agent.ToolKindMCP,
		ParameterSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"arguments":{"type":"object"}},"required":["name"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
			var input struct {
				Name      string            `json:"name"`
				Arguments map[string]string `json:"arguments,omitempty"`
			}
			if err := json.Unmarshal(params, &input); err != nil {
				return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid parameters: %v", err)}, nil
			}
			if strings.TrimSpace(input.Name) == "" {
				return &models.ToolResult{Success: false, Error: "name is required"}, nil
			}
			result, err := getter.GetPrompt(ctx, server, input.Name, input.Arguments)
			if err != nil {
				return &models.ToolResult{Success: false, Error: err.Error()}, nil
			}
			return &models.ToolResult{Success: true, Output: formatPromptResult(result)}, nil
		},
	}
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}
	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}

func formatResourceContents(contents []*ResourceContent) string {
	if len(contents) == 0 {
		return ""
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return ""
	}
	return string(payload)
}

func formatPromptResult(result *GetPromptResult) string {
	if result == nil || len(result.Messages) == 0 {
		return ""
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return ""
	}
	return string(payload)
}
