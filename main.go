package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SmartBear/smartbear-mcp-sub003/internal/application"
	"github.com/SmartBear/smartbear-mcp-sub003/internal/domain"
	"github.com/SmartBear/smartbear-mcp-sub003/internal/infrastructure"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	log.Printf("Loading configuration from: %s", *configPath)
	config, err := domain.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("Configuration loaded successfully")

	// Create authentication manager
	authManager := domain.NewAuthenticationManagerFromConfig(config)
	log.Println("Authentication manager initialized")

	// Create response mapper
	mapper := domain.NewResponseMapper()

	// Shared cache backing project resolution and record lookups
	cache := domain.NewMemoryCache()

	// Create API clients and handlers for each configured product
	var handlers []domain.ToolHandler
	var insightHandler *application.InsightHandler

	// Insight Hub
	if config.Products.InsightHub != nil {
		log.Println("Initializing Insight Hub client and handler")
		httpClient, err := authManager.GetAuthenticatedClient("insight")
		if err != nil {
			log.Fatalf("Failed to create authenticated client for Insight Hub: %v", err)
		}
		insightClient := infrastructure.NewInsightClient(config.Products.InsightHub.Endpoint, httpClient)
		resolver := application.NewProjectResolver(insightClient, cache, config.Products.InsightHub.ProjectAPIKey)
		insightHandler = application.NewInsightHandler(insightClient, resolver, cache, mapper, config.Products.InsightHub.AppEndpoint)
		handlers = append(handlers, insightHandler)
		log.Println("Insight Hub handler registered")
	}

	// Verify at least one handler is registered
	if len(handlers) == 0 {
		log.Fatal("No products configured - at least one SmartBear product must be configured")
	}

	// Create request router with all handlers
	router := application.NewRequestRouter(handlers...)
	log.Printf("Request router initialized with %d handler(s)", len(handlers))

	// Create transport based on configuration
	var transport domain.Transport
	switch config.Transport.Type {
	case "stdio":
		log.Println("Initializing stdio transport")
		transport = domain.NewStdioTransport()
	case "http":
		log.Printf("Initializing HTTP transport on %s:%d", config.Transport.HTTP.Host, config.Transport.HTTP.Port)
		transport = domain.NewHTTPTransport(config.Transport.HTTP.Host, config.Transport.HTTP.Port)
	default:
		log.Fatalf("Invalid transport type: %s", config.Transport.Type)
	}

	// Create server with all dependencies
	server := application.NewServer(transport, router, mapper, config)
	log.Println("MCP server created")

	// The server is the elicitation provider for handlers that ask the
	// client for input mid-call.
	if insightHandler != nil {
		insightHandler.SetInputProvider(server)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Println("Starting MCP server...")
		if err := server.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Log successful startup
	if config.Transport.Type == "stdio" {
		log.Println("MCP server started successfully (stdio transport)")
	} else {
		log.Printf("MCP server started successfully (HTTP transport on %s:%d)",
			config.Transport.HTTP.Host, config.Transport.HTTP.Port)
	}

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Initiating graceful shutdown...")
		cancel()
	case err := <-errChan:
		log.Printf("Server error: %v", err)
		cancel()
		if err := server.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
		os.Exit(1)
	}

	// Close the server
	log.Println("Closing server...")
	if err := server.Close(); err != nil {
		log.Printf("Error during server shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server shutdown complete")
}
