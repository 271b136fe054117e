package domain

import (
	"fmt"
	"net/http"
)

// Credentials stores authentication information for a SmartBear product.
// Insight Hub uses the "token" authorization scheme; other products use
// standard bearer tokens.
type Credentials struct {
	Type  AuthType
	Token string
}

// AuthenticationManager handles credentials for SmartBear products.
// It stores credentials for each configured product and provides
// authenticated HTTP clients for making API calls.
type AuthenticationManager struct {
	credentials map[string]*Credentials
}

// NewAuthenticationManager creates a new authentication manager.
// The credentials map should contain entries for each configured
// product, keyed by product name (e.g. "insight").
func NewAuthenticationManager(credentials map[string]*Credentials) *AuthenticationManager {
	return &AuthenticationManager{
		credentials: credentials,
	}
}

// NewAuthenticationManagerFromConfig creates an authentication manager
// from a configuration, extracting credentials for each configured
// product.
func NewAuthenticationManagerFromConfig(config *Config) *AuthenticationManager {
	credentials := make(map[string]*Credentials)

	if config.Products.InsightHub != nil && config.Products.InsightHub.Auth != nil {
		credentials["insight"] = credentialsFromAuthConfig(config.Products.InsightHub.Auth)
	}

	return NewAuthenticationManager(credentials)
}

// credentialsFromAuthConfig converts an AuthConfig to Credentials.
func credentialsFromAuthConfig(authConfig *AuthConfig) *Credentials {
	return &Credentials{
		Type:  ParseAuthType(authConfig.Type),
		Token: authConfig.Token,
	}
}

// GetAuthenticatedClient returns an HTTP client with authentication
// headers configured for the named product. Returns an error if the
// product is not configured or credentials are missing.
func (am *AuthenticationManager) GetAuthenticatedClient(product string) (*http.Client, error) {
	if err := am.ValidateCredentials(product); err != nil {
		return nil, err
	}

	creds := am.credentials[product]

	transport := &authenticatedTransport{
		base:        http.DefaultTransport,
		credentials: creds,
	}

	return &http.Client{
		Transport: transport,
	}, nil
}

// ValidateCredentials checks if credentials are properly configured for
// a product. Returns an error if the product is not configured or if
// the token is missing.
func (am *AuthenticationManager) ValidateCredentials(product string) error {
	creds, ok := am.credentials[product]
	if !ok {
		return fmt.Errorf("no credentials configured for product: %s", product)
	}

	if creds.Token == "" {
		return fmt.Errorf("auth token is required for product: %s", product)
	}

	return nil
}

// authenticatedTransport is an http.RoundTripper that adds authentication headers.
type authenticatedTransport struct {
	base        http.RoundTripper
	credentials *Credentials
}

// RoundTrip implements http.RoundTripper by adding authentication headers to requests.
func (t *authenticatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())

	switch t.credentials.Type {
	case TokenAuth:
		clonedReq.Header.Set("Authorization", "token "+t.credentials.Token)
	case BearerAuth:
		clonedReq.Header.Set("Authorization", "Bearer "+t.credentials.Token)
	}

	return t.base.RoundTrip(clonedReq)
}
