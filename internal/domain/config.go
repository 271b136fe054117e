package domain

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
// This is the root configuration structure loaded from YAML files.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Products  ProductsConfig  `yaml:"products"`
}

// TransportConfig defines transport settings.
// Specifies whether to use stdio or HTTP transport.
type TransportConfig struct {
	Type string     `yaml:"type"` // "stdio" or "http"
	HTTP HTTPConfig `yaml:"http,omitempty"`
}

// HTTPConfig defines HTTP transport settings.
// Only used when transport type is "http".
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProductsConfig defines SmartBear product configurations.
// Each product is optional - only configured products will be available
// as tools.
type ProductsConfig struct {
	InsightHub *InsightHubConfig `yaml:"insight_hub,omitempty"`
}

// InsightHubConfig defines configuration for the Insight Hub
// error-monitoring product. Endpoint is the API base URL and
// AppEndpoint is the dashboard base URL used to compose human-facing
// error links. ProjectAPIKey optionally binds the server to one project
// (the "current project"); when absent, every tool call must name an
// explicit project id.
type InsightHubConfig struct {
	Endpoint      string      `yaml:"endpoint"`
	AppEndpoint   string      `yaml:"app_endpoint"`
	Auth          *AuthConfig `yaml:"auth"`
	ProjectAPIKey string      `yaml:"project_api_key,omitempty"`
}

// AuthConfig defines authentication settings.
// Supports token authentication (Authorization: token <value>) and
// bearer authentication (Authorization: Bearer <value>).
type AuthConfig struct {
	Type  string `yaml:"type"` // "token" or "bearer"
	Token string `yaml:"token"`
}

// AuthType defines supported authentication methods.
type AuthType int

const (
	// TokenAuth uses the "token" authorization scheme used by the
	// Insight Hub data access API.
	TokenAuth AuthType = iota
	// BearerAuth uses the standard Bearer authorization scheme.
	BearerAuth
)

// String returns the string representation of AuthType.
func (a AuthType) String() string {
	switch a {
	case TokenAuth:
		return "token"
	case BearerAuth:
		return "bearer"
	default:
		return "unknown"
	}
}

// ParseAuthType converts a string to AuthType.
func ParseAuthType(s string) AuthType {
	switch s {
	case "token":
		return TokenAuth
	case "bearer":
		return BearerAuth
	default:
		return TokenAuth
	}
}

// LoadConfig reads and validates configuration from a YAML file.
// Returns an error if the file is missing, has invalid syntax, or fails validation.
func LoadConfig(path string) (*Config, error) {
	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	// Parse YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid YAML syntax in configuration file: %w", err)
	}

	// Validate the configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration for completeness and correctness.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errors []string

	// Validate transport configuration
	if err := c.validateTransport(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate product configurations
	if err := c.validateProducts(); err != nil {
		errors = append(errors, err.Error())
	}

	// Check that at least one product is configured
	if c.Products.InsightHub == nil {
		errors = append(errors, "at least one SmartBear product must be configured")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// validateTransport validates the transport configuration.
func (c *Config) validateTransport() error {
	var errors []string

	// Check transport type is specified
	if c.Transport.Type == "" {
		errors = append(errors, "transport type is required")
	} else if c.Transport.Type != "stdio" && c.Transport.Type != "http" {
		errors = append(errors, fmt.Sprintf("invalid transport type '%s': must be 'stdio' or 'http'", c.Transport.Type))
	}

	// If HTTP transport, validate HTTP configuration
	if c.Transport.Type == "http" {
		if c.Transport.HTTP.Host == "" {
			errors = append(errors, "HTTP host is required when transport type is 'http'")
		}
		if c.Transport.HTTP.Port <= 0 || c.Transport.HTTP.Port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid HTTP port %d: must be between 1 and 65535", c.Transport.HTTP.Port))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// validateProducts validates all configured product sections.
func (c *Config) validateProducts() error {
	var errors []string

	if c.Products.InsightHub != nil {
		if err := c.Products.InsightHub.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// Validate validates the Insight Hub product configuration.
func (ic *InsightHubConfig) Validate() error {
	var errors []string

	if err := validateBaseURL("Insight Hub endpoint", ic.Endpoint); err != nil {
		errors = append(errors, err.Error())
	}
	if err := validateBaseURL("Insight Hub app_endpoint", ic.AppEndpoint); err != nil {
		errors = append(errors, err.Error())
	}

	if ic.Auth == nil {
		errors = append(errors, "Insight Hub auth is required")
	} else if err := ic.Auth.Validate("Insight Hub"); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// validateBaseURL checks that a configured base URL is a usable http(s) URL.
func validateBaseURL(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}

	parsedURL, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is invalid: %v", name, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", name)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}

	return nil
}

// Validate validates authentication configuration.
func (ac *AuthConfig) Validate(productName string) error {
	var errors []string

	// Check auth type is specified
	if ac.Type == "" {
		errors = append(errors, fmt.Sprintf("%s auth type is required", productName))
	} else if ac.Type != "token" && ac.Type != "bearer" {
		errors = append(errors, fmt.Sprintf("%s auth type '%s' is invalid: must be 'token' or 'bearer'", productName, ac.Type))
	}

	if ac.Token == "" {
		errors = append(errors, fmt.Sprintf("%s auth token is required", productName))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
