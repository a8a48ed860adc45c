// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes cloudshelf tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cloudshelf/internal/apperr"
	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/service"
)

const stateModelURI = "cloudshelf://state-model"

// Server wraps the MCP server with cloudshelf tools.
type Server struct {
	mcp        *server.MCPServer
	svc        *service.Service
	allowLocal bool
}

// New creates a new MCP server with all cloudshelf tools registered.
func New(svc *service.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"cloudshelf",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List cloud catalog items with their link state."),
		mcp.WithString("state", mcp.Description("Optional comma separated states: unlinked, linked, pending_add, pending_remove")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("toggle_item",
		mcp.WithDescription("Queue an item for linking or unlinking, or undo a queued change. "+
			"See the "+stateModelURI+" resource for the state rules."),
		mcp.WithString("store_key", mcp.Required(), mcp.Description("Store key of the item, e.g. 9NP1P1WFS0LB")),
	), s.toggleItem)

	s.mcp.AddTool(mcp.NewTool("apply_changes",
		mcp.WithDescription("Write all queued changes to the launcher shortcut list and refresh linked items."),
	), s.applyChanges)

	s.mcp.AddTool(mcp.NewTool("refresh_catalog",
		mcp.WithDescription("Fetch the current cloud catalog and reclassify items."),
	), s.refreshCatalog)

	s.mcp.AddTool(mcp.NewTool("search_catalog",
		mcp.WithDescription("Full-text search through catalog titles and publishers."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCatalog)

	s.mcp.AddTool(mcp.NewTool("set_artwork",
		mcp.WithDescription("Replace one grid image of a linked item."),
		mcp.WithString("store_key", mcp.Required(), mcp.Description("Store key of a linked item")),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Image slot: cover, banner, hero, logo or icon")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or base64 data URI of a PNG or JPEG image")),
	), s.setArtwork)

	s.mcp.AddResource(
		mcp.NewResource(stateModelURI, "Item State Model",
			mcp.WithResourceDescription("How catalog items move between states and what each tool does."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStateModel,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var states []models.State
	if raw, err := req.RequireString("state"); err == nil && raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := models.ParseState(strings.TrimSpace(part))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			states = append(states, st)
		}
	}
	items := s.svc.Items(ctx, states...)
	if len(items) == 0 {
		return mcp.NewToolResultText("no items; run refresh_catalog first if the catalog is empty"), nil
	}
	return jsonResult(items), nil
}

func (s *Server) toggleItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("store_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := s.svc.Toggle(ctx, key)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("unknown store key: %s", key)), nil
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("an apply is in progress; try again when it finishes"), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", key, state)), nil
}

func (s *Server) applyChanges(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.Apply(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum), nil
}

func (s *Server) refreshCatalog(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("catalog refreshed: %d items", n)), nil
}

func (s *Server) searchCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readStateModel(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      stateModelURI,
			MIMEType: "text/markdown",
			Text:     StateModel,
		},
	}, nil
}
