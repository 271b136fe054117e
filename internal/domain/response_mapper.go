package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DefaultResponseMapper is the default implementation of ResponseMapper.
// It converts SmartBear API responses to MCP-compliant tool responses.
type DefaultResponseMapper struct{}

// NewResponseMapper creates a new instance of DefaultResponseMapper.
func NewResponseMapper() ResponseMapper {
	return &DefaultResponseMapper{}
}

// MapToToolResponse converts an API response to MCP format.
// The apiResponse parameter should be the deserialized response from a
// SmartBear product API, already shaped by the handler.
func (m *DefaultResponseMapper) MapToToolResponse(apiResponse interface{}) (*ToolResponse, error) {
	if apiResponse == nil {
		return &ToolResponse{
			Content: []ContentBlock{
				{
					Type: "text",
					Text: "{}",
				},
			},
		}, nil
	}

	// Convert the response to JSON
	jsonBytes, err := json.MarshalIndent(apiResponse, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal API response: %w", err)
	}

	contentBlock := ContentBlock{
		Type: "text",
		Text: string(jsonBytes),
	}

	// Paginated error listings get a trailing summary block so agents
	// notice the continuation token without parsing the payload.
	paginationInfo := extractPaginationInfo(apiResponse)
	if paginationInfo != "" {
		return &ToolResponse{
			Content: []ContentBlock{
				contentBlock,
				{
					Type: "text",
					Text: paginationInfo,
				},
			},
		}, nil
	}

	return &ToolResponse{
		Content: []ContentBlock{contentBlock},
	}, nil
}

// extractPaginationInfo extracts pagination metadata from responses that support it.
// Returns a formatted string with pagination information, or empty string if not applicable.
func extractPaginationInfo(apiResponse interface{}) string {
	var result *ErrorListResult

	switch v := apiResponse.(type) {
	case *ErrorListResult:
		result = v
	case ErrorListResult:
		result = &v
	default:
		return ""
	}

	if result.Total != nil && result.Next != "" {
		return fmt.Sprintf("\nPagination: Showing %d of %d total results; pass next=%q to fetch the following page",
			result.Count, *result.Total, result.Next)
	}
	if result.Next != "" {
		return fmt.Sprintf("\nPagination: Showing %d results; pass next=%q to fetch the following page",
			result.Count, result.Next)
	}
	if result.Total != nil {
		return fmt.Sprintf("\nPagination: Showing %d of %d total results", result.Count, *result.Total)
	}

	return ""
}

// MapError converts an API error to MCP error format.
// Classified client errors map to stable JSON-RPC codes; raw HTTP
// errors map by status code.
func (m *DefaultResponseMapper) MapError(err error) *Error {
	if err == nil {
		return nil
	}

	// Classified product client errors carry their own kind.
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return mapClientError(clientErr)
	}

	// Check if it's an HTTP error with status code
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return mapHTTPError(httpErr)
	}

	// Check if it's already a domain Error
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}

	// Default to internal error for unknown error types
	return &Error{
		Code:    InternalError,
		Message: err.Error(),
	}
}

// mapClientError maps the client error taxonomy to JSON-RPC error codes.
func mapClientError(clientErr *ClientError) *Error {
	var code int
	switch clientErr.Kind {
	case KindNotFound:
		code = APIError
	case KindInvalidArgument:
		code = InvalidParams
	case KindInvalidConfiguration:
		code = ConfigurationError
	case KindUpstreamFailure:
		code = APIError
	default:
		code = InternalError
	}

	return &Error{
		Code:    code,
		Message: clientErr.Error(),
		Data: map[string]interface{}{
			"kind": clientErr.Kind.String(),
		},
	}
}

// HTTPError represents an HTTP error with status code and message.
// This is used to wrap HTTP errors from SmartBear API calls.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

// Error implements the error interface for HTTPError.
func (e HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(statusCode int, message string, body string) HTTPError {
	return HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}

// mapHTTPError maps HTTP status codes to JSON-RPC error codes.
func mapHTTPError(httpErr HTTPError) *Error {
	var code int
	var message string

	switch httpErr.StatusCode {
	case http.StatusUnauthorized:
		code = AuthenticationError
		message = "Authentication failed"
	case http.StatusForbidden:
		code = AuthenticationError
		message = "Access forbidden - insufficient permissions"
	case http.StatusNotFound:
		code = APIError
		message = "Resource not found"
	case http.StatusBadRequest:
		code = InvalidParams
		message = "Bad request - invalid parameters"
	case http.StatusConflict:
		code = APIError
		message = "Conflict - resource already exists or version mismatch"
	case http.StatusTooManyRequests:
		code = RateLimitError
		message = "Rate limit exceeded"
	case http.StatusInternalServerError:
		code = APIError
		message = "Internal server error"
	case http.StatusServiceUnavailable:
		code = NetworkError
		message = "Service unavailable"
	case http.StatusGatewayTimeout:
		code = NetworkError
		message = "Gateway timeout"
	default:
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			code = APIError
			message = fmt.Sprintf("Client error: %s", httpErr.Message)
		} else if httpErr.StatusCode >= 500 {
			code = APIError
			message = fmt.Sprintf("Server error: %s", httpErr.Message)
		} else {
			code = InternalError
			message = httpErr.Message
		}
	}

	// Include the original error details in the data field
	errorData := map[string]interface{}{
		"statusCode": httpErr.StatusCode,
		"message":    httpErr.Message,
	}
	if httpErr.Body != "" {
		errorData["body"] = httpErr.Body
	}

	return &Error{
		Code:    code,
		Message: message,
		Data:    errorData,
	}
}
