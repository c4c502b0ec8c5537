package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-lore-server/internal/wiki"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string
	WikiSvc *wiki.Service
	Opener  *wiki.Opener
}

// CreateServer creates the MCP server and registers the wiki tools.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.WikiSvc != nil {
		wiki.RegisterSearchTool(s, cfg.WikiSvc)
		wiki.RegisterStatusTool(s, cfg.WikiSvc)
	}
	if cfg.Opener != nil {
		wiki.RegisterOpenTool(s, cfg.Opener)
	}

	return s
}
