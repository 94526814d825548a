// Package mcp exposes imported sessions to LLM tooling over the Model
// Context Protocol. Clients can list sessions, pull correlated timelines
// and reconstructed flows, and scan content ad hoc, all over stdio.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentsight/agentsight/internal/engine"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/timeline"
)

// Server wraps the MCP SDK server around the session store and scanner.
type Server struct {
	mcpServer *mcpsdk.Server
	store     session.Store
	scanner   *engine.Scanner
	resolver  timeline.NameResolver
	logger    *slog.Logger
}

// New builds an MCP server over the given store and scanner. resolver
// may be nil when no agent registry is available.
func New(store session.Store, scanner *engine.Scanner, resolver timeline.NameResolver, version string, logger *slog.Logger) *Server {
	s := &Server{
		store:    store,
		scanner:  scanner,
		resolver: resolver,
		logger:   logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "agentsight",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run serves MCP on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_sessions",
		Description: "List imported agent sessions, newest first. Supports filtering by detection severity, import source and import time.",
	}, s.handleListSessions)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_timeline",
		Description: "Correlate one session into its ordered timeline of user messages, handoffs, tool calls, agent responses and security violations.",
	}, s.handleGetTimeline)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_flow",
		Description: "Reconstruct the communication graph for one session: who talked to whom, over which edges, and which agent led the conversation.",
	}, s.handleGetFlow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scan_content",
		Description: "Scan message content for prompt injection and other threats without importing it. Returns a verdict and any rule findings.",
	}, s.handleScanContent)
}
