package domain

import (
	"net/http"
)

// ProductClient defines common operations for all SmartBear product
// clients. Each product client (Insight Hub, and future additions)
// implements this interface to provide authenticated API access.
type ProductClient interface {
	// BaseURL returns the configured API base URL for the product.
	BaseURL() string

	// Do executes an HTTP request with authentication.
	// The request should already be constructed with the appropriate
	// method, path, headers, and body. This method adds authentication
	// and executes the request.
	Do(req *http.Request) (*http.Response, error)
}
