package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// contains reports whether substr is within s. Shared test helper.
func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

func validInsightConfig() *Config {
	return &Config{
		Transport: TransportConfig{Type: "stdio"},
		Products: ProductsConfig{
			InsightHub: &InsightHubConfig{
				Endpoint:    "https://api.insighthub.example.com",
				AppEndpoint: "https://app.insighthub.example.com",
				Auth: &AuthConfig{
					Type:  "token",
					Token: "test-token",
				},
			},
		},
	}
}

// TestConfigValidate verifies validation of complete and incomplete
// configurations.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid stdio config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name: "valid http config",
			mutate: func(c *Config) {
				c.Transport = TransportConfig{
					Type: "http",
					HTTP: HTTPConfig{Host: "localhost", Port: 8080},
				}
			},
			wantErr: "",
		},
		{
			name:    "missing transport type",
			mutate:  func(c *Config) { c.Transport.Type = "" },
			wantErr: "transport type is required",
		},
		{
			name:    "invalid transport type",
			mutate:  func(c *Config) { c.Transport.Type = "websocket" },
			wantErr: "invalid transport type",
		},
		{
			name: "http transport without host",
			mutate: func(c *Config) {
				c.Transport = TransportConfig{
					Type: "http",
					HTTP: HTTPConfig{Port: 8080},
				}
			},
			wantErr: "HTTP host is required",
		},
		{
			name: "http transport with invalid port",
			mutate: func(c *Config) {
				c.Transport = TransportConfig{
					Type: "http",
					HTTP: HTTPConfig{Host: "localhost", Port: 70000},
				}
			},
			wantErr: "invalid HTTP port",
		},
		{
			name:    "no products configured",
			mutate:  func(c *Config) { c.Products.InsightHub = nil },
			wantErr: "at least one SmartBear product must be configured",
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.Products.InsightHub.Endpoint = "" },
			wantErr: "Insight Hub endpoint is required",
		},
		{
			name:    "non-http endpoint",
			mutate:  func(c *Config) { c.Products.InsightHub.Endpoint = "ftp://api.example.com" },
			wantErr: "must use http or https scheme",
		},
		{
			name:    "missing app endpoint",
			mutate:  func(c *Config) { c.Products.InsightHub.AppEndpoint = "" },
			wantErr: "Insight Hub app_endpoint is required",
		},
		{
			name:    "missing auth",
			mutate:  func(c *Config) { c.Products.InsightHub.Auth = nil },
			wantErr: "Insight Hub auth is required",
		},
		{
			name:    "missing auth type",
			mutate:  func(c *Config) { c.Products.InsightHub.Auth.Type = "" },
			wantErr: "auth type is required",
		},
		{
			name:    "invalid auth type",
			mutate:  func(c *Config) { c.Products.InsightHub.Auth.Type = "basic" },
			wantErr: "auth type 'basic' is invalid",
		},
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.Products.InsightHub.Auth.Token = "" },
			wantErr: "auth token is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validInsightConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// TestConfigValidateAggregatesErrors verifies that multiple failures are
// reported together.
func TestConfigValidateAggregatesErrors(t *testing.T) {
	config := &Config{
		Transport: TransportConfig{Type: "invalid"},
		Products: ProductsConfig{
			InsightHub: &InsightHubConfig{
				Endpoint:    "not-a-url",
				AppEndpoint: "https://app.example.com",
				Auth:        &AuthConfig{Type: "oauth"},
			},
		},
	}

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}

	msg := err.Error()
	for _, want := range []string{"invalid transport type", "Insight Hub endpoint", "auth type"} {
		if !contains(msg, want) {
			t.Errorf("Validate() error missing %q: %s", want, msg)
		}
	}
}

// TestLoadConfig verifies loading from a YAML file.
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `transport:
  type: stdio
products:
  insight_hub:
    endpoint: https://api.insighthub.example.com
    app_endpoint: https://app.insighthub.example.com
    auth:
      type: token
      token: secret-token
    project_api_key: notifier-key-123
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Transport.Type != "stdio" {
		t.Errorf("Transport.Type = %s, want stdio", config.Transport.Type)
	}
	ih := config.Products.InsightHub
	if ih == nil {
		t.Fatal("Products.InsightHub is nil")
	}
	if ih.Endpoint != "https://api.insighthub.example.com" {
		t.Errorf("Endpoint = %s", ih.Endpoint)
	}
	if ih.AppEndpoint != "https://app.insighthub.example.com" {
		t.Errorf("AppEndpoint = %s", ih.AppEndpoint)
	}
	if ih.Auth == nil || ih.Auth.Token != "secret-token" {
		t.Errorf("Auth = %+v", ih.Auth)
	}
	if ih.ProjectAPIKey != "notifier-key-123" {
		t.Errorf("ProjectAPIKey = %s", ih.ProjectAPIKey)
	}
}

// TestLoadConfigMissingFile verifies the missing-file error path.
func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want error")
	}
	if !contains(err.Error(), "configuration file not found") {
		t.Errorf("LoadConfig() error = %q", err.Error())
	}
}

// TestLoadConfigInvalidYAML verifies the syntax error path.
func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("transport: [unbalanced"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want error")
	}
	if !contains(err.Error(), "invalid YAML syntax") {
		t.Errorf("LoadConfig() error = %q", err.Error())
	}
}

// TestLoadConfigValidationFailure verifies that an invalid file fails
// after parsing.
func TestLoadConfigValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `transport:
  type: stdio
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want error")
	}
	if !contains(err.Error(), "at least one SmartBear product must be configured") {
		t.Errorf("LoadConfig() error = %q", err.Error())
	}
}

// TestParseAuthType verifies auth type parsing and the token default.
func TestParseAuthType(t *testing.T) {
	tests := []struct {
		input    string
		expected AuthType
	}{
		{"token", TokenAuth},
		{"bearer", BearerAuth},
		{"", TokenAuth},
		{"basic", TokenAuth},
	}

	for _, tt := range tests {
		if got := ParseAuthType(tt.input); got != tt.expected {
			t.Errorf("ParseAuthType(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}

	if TokenAuth.String() != "token" {
		t.Errorf("TokenAuth.String() = %s, want token", TokenAuth.String())
	}
	if BearerAuth.String() != "bearer" {
		t.Errorf("BearerAuth.String() = %s, want bearer", BearerAuth.String())
	}
}
