package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query string `json:"query" jsonschema_description:"Search query matched against page titles and content"`
}

// SearchHandler handles the search_pages MCP tool.
type SearchHandler struct {
	service *Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	hits, err := h.service.Search(args.Query)
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			return errorResult("Search is not available yet. The wiki is still being synchronized and indexed. Please try again later."), nil, nil
		}
		var parseErr *QueryParseError
		if errors.As(err, &parseErr) {
			return errorResult(fmt.Sprintf("Invalid search query: %s", parseErr.Err)), nil, nil
		}
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return h.formatResults(hits, args.Query), nil, nil
}

// formatResults formats hydrated hits for MCP response.
func (h *SearchHandler) formatResults(hits []PageHit, queryStr string) *mcp.CallToolResult {
	if len(hits) == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", len(hits), queryStr))

	for i, hit := range hits {
		sb.WriteString(fmt.Sprintf("%d. %s\n   %s\n", i+1, hit.Title, hit.URL))
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_pages",
		Description: "Search the local wiki mirror for pages matching a full-text query",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, service *Service) {
	handler := NewSearchHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}
