package domain

import (
	"context"
)

// ToolDefinition represents an MCP tool definition.
// This describes a tool that can be called by MCP clients.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema JSONSchema `json:"inputSchema"`
}

// ToolRequest represents an MCP tool call request.
// This is the request format when a client invokes a tool.
type ToolRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResponse represents an MCP tool call response.
// This is the response format returned to the client after tool execution.
type ToolResponse struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock represents a piece of content in the response.
// MCP supports different content types (text, resource, etc.).
type ContentBlock struct {
	Type     string    `json:"type"` // "text", "resource", etc.
	Text     string    `json:"text,omitempty"`
	Resource *Resource `json:"resource,omitempty"`
}

// Resource represents a resource reference in MCP.
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// JSONSchema represents a JSON Schema for tool input validation.
// This is used to define the expected structure of tool arguments.
type JSONSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
}

// Input result actions returned by an elicitation round trip.
const (
	InputAccept = "accept"
	InputReject = "reject"
	InputCancel = "cancel"
)

// InputResult is the outcome of an elicitation request. Content is only
// populated when Action is "accept".
type InputResult struct {
	Action  string                 `json:"action"`
	Content map[string]interface{} `json:"content,omitempty"`
}

// InputProvider obtains additional input from the MCP client mid-tool-call.
// It is consumed by handlers that need an out-of-band value (e.g. the
// severity for an override_severity update) before completing an
// operation.
type InputProvider interface {
	// GetInput prompts the connected client for structured input
	// matching schema. Blocks until the client responds, the context is
	// cancelled, or the elicitation times out.
	GetInput(ctx context.Context, message string, schema JSONSchema) (*InputResult, error)
}
