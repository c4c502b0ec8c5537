package wiki

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatusArgument defines wiki_status parameters. The tool takes none.
type StatusArgument struct{}

// StatusHandler handles the wiki_status MCP tool.
type StatusHandler struct {
	service *Service
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(service *Service) *StatusHandler {
	return &StatusHandler{
		service: service,
	}
}

// Handle reports readiness and last-sync details.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgument) (*mcp.CallToolResult, any, error) {
	status := h.service.CurrentStatus()

	var sb strings.Builder
	if status.Ready {
		sb.WriteString("Status: ready\n")
	} else {
		sb.WriteString("Status: initializing\n")
	}
	if status.LastRevision != "" {
		sb.WriteString(fmt.Sprintf("Last synced revision: %s\n", status.LastRevision))
	}
	if status.SkippedPages > 0 {
		sb.WriteString(fmt.Sprintf("Pages skipped during extraction: %d\n", status.SkippedPages))
	}

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *StatusHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "wiki_status",
		Description: "Report whether the local wiki mirror is synchronized and searchable",
	}
}

// RegisterStatusTool registers the status tool with an MCP server.
func RegisterStatusTool(server *mcp.Server, service *Service) {
	handler := NewStatusHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
