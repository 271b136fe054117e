package domain

// ResponseMapper converts API responses to MCP tool responses.
// This interface is responsible for transforming SmartBear API
// responses into MCP-compliant format that can be consumed by MCP
// clients.
type ResponseMapper interface {
	// MapToToolResponse converts an API response to MCP format.
	// The apiResponse parameter should be the deserialized response
	// from a SmartBear product API. Returns an error if transformation
	// fails.
	MapToToolResponse(apiResponse interface{}) (*ToolResponse, error)

	// MapError converts an API error to MCP error format.
	// This method maps the client error taxonomy and HTTP status codes
	// to appropriate JSON-RPC error codes and messages.
	MapError(err error) *Error
}
