// Package mcp exposes the pipeline's formatting operations as MCP tools
// over stdio, so an LLM client can review pending captures, format them for
// the vault, and pull a daily summary.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/smizuno/caplog/internal/logging"
)

var pendingToolDef = mcp.NewTool("capture_pending",
	mcp.WithDescription("List captured records awaiting formatting, newest first."),
	mcp.WithString("kind",
		mcp.Description("Filter by record kind (todo, idea, link, note, voice, voice_transcription). Omit or pass \"all\" for everything."),
	),
)

var formatToolDef = mcp.NewTool("capture_format",
	mcp.WithDescription("Render one processed record into a vault-ready markdown document and archive the record."),
	mcp.WithString("record_id",
		mcp.Required(),
		mcp.Description("Identifier of the processed record to format."),
	),
	mcp.WithString("analysis",
		mcp.Description("Optional commentary folded into the document's context section."),
	),
)

var dailySummaryToolDef = mcp.NewTool("capture_daily_summary",
	mcp.WithDescription("Per-kind counts of today's captures still in the pipeline."),
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"capture_pending": {
		def:     pendingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePending },
	},
	"capture_format": {
		def:     formatToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFormat },
	},
	"capture_daily_summary": {
		def:     dailySummaryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDailySummary },
	},
}

// NewServer creates an MCP server with the capture tools registered.
func NewServer(root string, logger *logging.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"caplog",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(root, logger)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(root string, logger *logging.Logger, version string) error {
	s := NewServer(root, logger, version)
	return server.ServeStdio(s)
}
