package main

import (
	"os"
	"testing"

	"github.com/SmartBear/smartbear-mcp-sub003/internal/domain"
)

// TestConfigurationLoading tests that configuration can be loaded successfully
func TestConfigurationLoading(t *testing.T) {
	configContent := `
transport:
  type: stdio

products:
  insight_hub:
    endpoint: https://api.insighthub.smartbear.com
    app_endpoint: https://app.insighthub.smartbear.com
    auth:
      type: token
      token: test-token
    project_api_key: notifier-key
`

	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	config, err := domain.LoadConfig(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if config.Transport.Type != "stdio" {
		t.Errorf("Expected transport type 'stdio', got '%s'", config.Transport.Type)
	}

	if config.Products.InsightHub == nil {
		t.Fatal("Expected Insight Hub to be configured")
	}

	if config.Products.InsightHub.Endpoint != "https://api.insighthub.smartbear.com" {
		t.Errorf("Expected Insight Hub endpoint 'https://api.insighthub.smartbear.com', got '%s'", config.Products.InsightHub.Endpoint)
	}

	if config.Products.InsightHub.Auth.Type != "token" {
		t.Errorf("Expected auth type 'token', got '%s'", config.Products.InsightHub.Auth.Type)
	}

	if config.Products.InsightHub.ProjectAPIKey != "notifier-key" {
		t.Errorf("Expected project API key 'notifier-key', got '%s'", config.Products.InsightHub.ProjectAPIKey)
	}
}

// TestAuthenticationManagerCreation tests that authentication manager can be created from config
func TestAuthenticationManagerCreation(t *testing.T) {
	config := &domain.Config{
		Transport: domain.TransportConfig{
			Type: "stdio",
		},
		Products: domain.ProductsConfig{
			InsightHub: &domain.InsightHubConfig{
				Endpoint:    "https://api.insighthub.smartbear.com",
				AppEndpoint: "https://app.insighthub.smartbear.com",
				Auth: &domain.AuthConfig{
					Type:  "token",
					Token: "test-token",
				},
			},
		},
	}

	authManager := domain.NewAuthenticationManagerFromConfig(config)
	if authManager == nil {
		t.Fatal("Failed to create authentication manager")
	}

	if err := authManager.ValidateCredentials("insight"); err != nil {
		t.Errorf("Failed to validate Insight Hub credentials: %v", err)
	}

	if err := authManager.ValidateCredentials("invalid"); err == nil {
		t.Error("Expected error for invalid product, got nil")
	}
}

// TestHTTPTransportConfiguration tests configuration with the HTTP transport
func TestHTTPTransportConfiguration(t *testing.T) {
	configContent := `
transport:
  type: http
  http:
    host: localhost
    port: 8080

products:
  insight_hub:
    endpoint: https://api.insighthub.smartbear.com
    app_endpoint: https://app.insighthub.smartbear.com
    auth:
      type: bearer
      token: bearer-token
`

	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	config, err := domain.LoadConfig(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if config.Transport.Type != "http" {
		t.Errorf("Expected transport type 'http', got '%s'", config.Transport.Type)
	}
	if config.Transport.HTTP.Host != "localhost" {
		t.Errorf("Expected HTTP host 'localhost', got '%s'", config.Transport.HTTP.Host)
	}
	if config.Transport.HTTP.Port != 8080 {
		t.Errorf("Expected HTTP port 8080, got %d", config.Transport.HTTP.Port)
	}

	if config.Products.InsightHub.Auth.Type != "bearer" {
		t.Errorf("Expected auth type 'bearer', got '%s'", config.Products.InsightHub.Auth.Type)
	}

	authManager := domain.NewAuthenticationManagerFromConfig(config)
	if err := authManager.ValidateCredentials("insight"); err != nil {
		t.Errorf("Failed to validate Insight Hub credentials: %v", err)
	}
}

// TestInvalidConfiguration tests that invalid configurations are rejected
func TestInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
	}{
		{
			name: "Missing transport type",
			configContent: `
products:
  insight_hub:
    endpoint: https://api.insighthub.smartbear.com
    app_endpoint: https://app.insighthub.smartbear.com
    auth:
      type: token
      token: test-token
`,
		},
		{
			name: "Invalid transport type",
			configContent: `
transport:
  type: invalid

products:
  insight_hub:
    endpoint: https://api.insighthub.smartbear.com
    app_endpoint: https://app.insighthub.smartbear.com
    auth:
      type: token
      token: test-token
`,
		},
		{
			name: "No products configured",
			configContent: `
transport:
  type: stdio
`,
		},
		{
			name: "Missing auth token",
			configContent: `
transport:
  type: stdio

products:
  insight_hub:
    endpoint: https://api.insighthub.smartbear.com
    app_endpoint: https://app.insighthub.smartbear.com
    auth:
      type: token
`,
		},
		{
			name: "Missing app endpoint",
			configContent: `
transport:
  type: stdio

products:
  insight_hub:
    endpoint: https://api.insighthub.smartbear.com
    auth:
      type: token
      token: test-token
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile, err := os.CreateTemp("", "config-*.yaml")
			if err != nil {
				t.Fatalf("Failed to create temp file: %v", err)
			}
			defer os.Remove(tmpFile.Name())

			if _, err := tmpFile.WriteString(tt.configContent); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			tmpFile.Close()

			if _, err := domain.LoadConfig(tmpFile.Name()); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
