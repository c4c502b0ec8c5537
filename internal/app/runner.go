package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lore-server/internal/config"
	mcputil "github.com/sha1n/mcp-lore-server/internal/mcp"
	"github.com/sha1n/mcp-lore-server/internal/wiki"
	"github.com/spf13/pflag"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings, func() bool) error
	CreateServer      func(*config.Settings) (*mcp.Server, func() bool, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting LORE MCP server", "version", version)
	config.Log(settings)

	mcpServer, ready, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	} else {
		slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
		return params.StartSSEServer(mcpServer, settings, ready)
	}
}

// CreateMCPServer creates the MCP server with registered tools. The wiki
// initialization runs on a background goroutine: the server starts serving
// immediately and tools report an initializing state until the first sync
// pass completes. The returned readiness function feeds the /health
// endpoint on the SSE transport.
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func() bool, func(), error) {
	reporter := wiki.NewStatusReporter(16)
	wikiSvc, err := wiki.NewService(&settings.Wiki, reporter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create wiki service: %w", err)
	}

	// Drain status events into the log so progress is visible regardless
	// of transport.
	go func() {
		for event := range reporter.Events() {
			slog.Info("Wiki status", "stage", event.Stage, "message", event.Message)
		}
	}()

	// Initialize in background context (not tied to request context)
	go func() {
		if err := wikiSvc.Initialize(context.Background()); err != nil {
			slog.Error("Wiki initialization failed", "error", err)
		}
	}()

	cleanup := func() {
		if err := wikiSvc.Close(); err != nil {
			slog.Error("Failed to close wiki service", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    "lore-mcp",
		Version: "1.0.0",
		WikiSvc: wikiSvc,
		Opener:  wiki.NewOpener(),
	})

	return server, wikiSvc.IsReady, cleanup, nil
}
