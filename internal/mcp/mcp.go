// Package mcp implements the Model Context Protocol stdio server exposing
// the memory store's ten tools (spec.md §6 "External interfaces") over
// newline-framed JSON-RPC on standard in/out.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kioku-ai/kioku/internal/service/memory"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so a connecting agent knows the memory workflow without
// per-project configuration.
const serverInstructions = `You have access to kioku, a project memory store for AI agents.

WORKFLOW:
- memory_search before starting work in a project, to recall prior facts,
  decisions, runbooks, and open todos.
- memory_upsert after learning something worth keeping: a fact, a decision
  and its reasoning, a runbook step, or an episode summarizing what you did.
- memory_feedback(label="useful"|"not_relevant"|"wrong") on items a search
  returned, so the store's governance engine can reward or quarantine them.
- memory_summarize for a full project briefing: state, decisions, runbooks,
  preferences, guardrails, open todos, blockers, and known conflicts.
- memory_maintain periodically (or when a maintenance_warning appears in an
  upsert response) to run deduplication, pruning, and loop-breaker passes.

Five kinds exist: fact, state, decision, runbook, episode. decision and
state items are never deleted, only deprecated. Quarantined items and
items suppressed by a guardrail are excluded from search by default; pass
override_quarantine to include the quarantined ones (guardrail-suppressed
items stay excluded).`

// Server wraps the MCP server with kioku's memory service.
type Server struct {
	mcpServer *mcpserver.MCPServer
	memory    *memory.Service
	logger    *slog.Logger
}

// New creates and configures an MCP server exposing every memory_* tool.
func New(memorySvc *memory.Service, logger *slog.Logger, version string) *Server {
	s := &Server{
		memory: memorySvc,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kioku",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
