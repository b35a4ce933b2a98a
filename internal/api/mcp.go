package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/ticketkb/internal/kb"
)

// NewMCPServer creates an MCP server exposing search and draft tools.
func NewMCPServer(deps Deps) *server.MCPServer {
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = 3
	}

	s := server.NewMCPServer(
		"ticketkb",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("ticketkb: knowledge base built from resolved support tickets."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_kb",
			mcp.WithDescription("Semantically search published knowledge-base articles, optionally synthesizing an answer."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of results (default 3)")),
			mcp.WithBoolean("synthesize", mcp.Description("Generate an answer from the top results")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("get_article",
			mcp.WithDescription("Fetch a published knowledge-base article by id."),
			mcp.WithString("id", mcp.Description("Article id (kb_id)"), mcp.Required()),
		),
		mcpGetArticle(deps),
	)

	s.AddTool(
		mcp.NewTool("list_pending_drafts",
			mcp.WithDescription("List drafts awaiting review, oldest first."),
		),
		mcpListPending(deps),
	)

	s.AddTool(
		mcp.NewTool("create_draft_from_ticket",
			mcp.WithDescription("Generate a knowledge-base draft from a resolved support ticket."),
			mcp.WithString("ticket_id", mcp.Description("Ticket identifier"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Ticket title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Problem description")),
			mcp.WithString("resolution_details", mcp.Description("How the ticket was resolved")),
			mcp.WithString("conversation_log", mcp.Description("Support conversation transcript")),
			mcp.WithArray("tags", mcp.Description("Ticket tags")),
		),
		mcpCreateDraft(deps),
	)

	return s
}

func mcpSearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcpError("query is required"), nil
		}
		topK := deps.DefaultTopK
		if _, ok := req.GetArguments()["top_k"]; ok {
			topK = req.GetInt("top_k", deps.DefaultTopK)
		}
		if topK < 0 {
			return mcpError("top_k must not be negative"), nil
		}
		if topK > 50 {
			topK = 50
		}

		resp, err := deps.Searcher.Search(ctx, query, topK, req.GetBool("synthesize", false))
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(resp)
	}
}

func mcpGetArticle(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		a, err := deps.Store.GetArticle(ctx, id)
		if errors.Is(err, kb.ErrNotFound) {
			return mcpError(fmt.Sprintf("article %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get article: %v", err)), nil
		}
		return mcpJSON(a)
	}
}

func mcpListPending(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		drafts, err := deps.Store.ListPendingDrafts(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list drafts: %v", err)), nil
		}
		if len(drafts) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(drafts)
	}
}

func mcpCreateDraft(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t := kb.Ticket{
			TicketID:          req.GetString("ticket_id", ""),
			Title:             req.GetString("title", ""),
			Description:       req.GetString("description", ""),
			ResolutionDetails: req.GetString("resolution_details", ""),
			ConversationLog:   req.GetString("conversation_log", ""),
			Tags:              req.GetStringSlice("tags", nil),
		}
		d, err := deps.Creator.FromTicket(ctx, t)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create draft: %v", err)), nil
		}
		return mcpJSON(d)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
