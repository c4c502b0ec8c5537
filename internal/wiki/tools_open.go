package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// OpenArgument defines open_page parameters.
type OpenArgument struct {
	URL string `json:"url" jsonschema_description:"Page URL to open in the system browser, as returned by search_pages"`
}

// OpenHandler handles the open_page MCP tool.
type OpenHandler struct {
	opener *Opener
}

// NewOpenHandler creates a new open handler.
func NewOpenHandler(opener *Opener) *OpenHandler {
	return &OpenHandler{
		opener: opener,
	}
}

// Handle launches the OS default browser for the given URL.
func (h *OpenHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args OpenArgument) (*mcp.CallToolResult, any, error) {
	url := strings.TrimSpace(args.URL)
	if url == "" {
		return errorResult("URL cannot be empty"), nil, nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return errorResult(fmt.Sprintf("Refusing to open non-HTTP URL: %s", url)), nil, nil
	}

	if err := h.opener.Open(ctx, url); err != nil {
		if errors.Is(err, ErrUnsupportedOS) {
			return errorResult(fmt.Sprintf("Cannot open URLs on this platform: %s", err)), nil, nil
		}
		return errorResult(fmt.Sprintf("Failed to open URL: %s", err)), nil, nil
	}

	return textResult(fmt.Sprintf("Opened %s", url)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *OpenHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "open_page",
		Description: "Open a wiki page URL in the system default browser",
	}
}

// RegisterOpenTool registers the open tool with an MCP server.
func RegisterOpenTool(server *mcp.Server, opener *Opener) {
	handler := NewOpenHandler(opener)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
