package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/store"
)

// Server wraps the amc store and exposes it as MCP tools, so a coding
// agent can report its own session activity back to mission control.
type Server struct {
	store *store.Store
}

// NewServer creates the MCP server wrapper.
func NewServer(s *store.Store) *Server {
	return &Server{store: s}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("amc", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listAgentsTool())
	srv.AddTool(s.fleetStatusTool())
	srv.AddTool(s.startSessionTool())
	srv.AddTool(s.endSessionTool())
	srv.AddTool(s.addNoteTool())
	srv.AddTool(s.addTaskTool())
	srv.AddTool(s.setTokensTool())
	srv.AddTool(s.listAlertsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// amc_list_agents
func (s *Server) listAgentsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_list_agents",
		mcp.WithDescription("List all monitored agents. Returns a JSON array with id, name, project, directory, status, and hourly rate."),
	)
	return tool, s.handleListAgents
}

func (s *Server) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agents := s.store.Agents()
	data, err := json.Marshal(agents)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal agents: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// amc_fleet_status
func (s *Server) fleetStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_fleet_status",
		mcp.WithDescription("Summarize the fleet: agent counts, open sessions, total session time and estimated value, token rollup, and undismissed alert count."),
	)
	return tool, s.handleFleetStatus
}

func (s *Server) handleFleetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now().UTC()
	st := s.store.State()

	open := metrics.OpenSessions(st.Sessions)
	totals := metrics.Aggregate(open, st.Agents, now)
	tokens, hasTokens := metrics.TokenRollup(st.Sessions)

	out := map[string]any{
		"totalAgents":       len(st.Agents),
		"activeAgents":      metrics.CountByStatus(st.Agents, models.AgentStatusActive),
		"openSessions":      len(open),
		"sessionTime":       totals.Duration.Round(time.Second).String(),
		"estimatedValue":    totals.Value,
		"tokenEstimate":     tokens,
		"tokenDataPresent":  hasTokens,
		"undismissedAlerts": metrics.UndismissedAlerts(st.Alerts),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// amc_start_session
func (s *Server) startSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_start_session",
		mcp.WithDescription("Start a working session for an agent. Returns the new session id. Fails if the agent already has an open session."),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
	)
	return tool, s.handleStartSession
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := request.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: agent_id"), nil
	}
	id, err := s.store.StartSession(agentID)
	switch {
	case errors.Is(err, store.ErrAgentNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("agent not found: %s", agentID)), nil
	case errors.Is(err, store.ErrSessionOpen):
		return mcp.NewToolResultError(fmt.Sprintf("agent %s already has an open session", agentID)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("start session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"sessionId":%q}`, id)), nil
}

// amc_end_session
func (s *Server) endSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_end_session",
		mcp.WithDescription("End an open session. Ending an unknown or already-closed session is a no-op."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleEndSession
}

func (s *Server) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	ended := s.store.EndSession(sessionID)
	return mcp.NewToolResultText(fmt.Sprintf(`{"ended":%t}`, ended)), nil
}

// amc_add_note
func (s *Server) addNoteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_add_note",
		mcp.WithDescription("Append a free-text progress note to a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Note text")),
	)
	return tool, s.handleAddNote
}

func (s *Server) handleAddNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	if !s.store.AddSessionNote(sessionID, text) {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}
	return mcp.NewToolResultText(`{"added":true}`), nil
}

// amc_add_task
func (s *Server) addTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_add_task",
		mcp.WithDescription("Append a checklist task to a session. Returns the new task id."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Task description")),
	)
	return tool, s.handleAddTask
}

func (s *Server) handleAddTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	taskID, ok := s.store.AddSessionTask(sessionID, text)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(`{"taskId":%q}`, taskID)), nil
}

// amc_set_tokens
func (s *Server) setTokensTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_set_tokens",
		mcp.WithDescription("Set a session's token usage estimate. Overwrites any previous estimate."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithNumber("tokens", mcp.Required(), mcp.Description("Estimated total tokens used")),
	)
	return tool, s.handleSetTokens
}

func (s *Server) handleSetTokens(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	tokens, err := request.RequireInt("tokens")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tokens"), nil
	}
	if tokens < 0 {
		return mcp.NewToolResultError("tokens must be non-negative"), nil
	}
	if !s.store.SetTokenEstimate(sessionID, tokens) {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}
	return mcp.NewToolResultText(`{"set":true}`), nil
}

// amc_list_alerts
func (s *Server) listAlertsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("amc_list_alerts",
		mcp.WithDescription("List alerts, newest first. Returns id, agent id, type, message, timestamp, and dismissed flag."),
		mcp.WithBoolean("undismissed_only", mcp.Description("Only return alerts not yet dismissed")),
	)
	return tool, s.handleListAlerts
}

func (s *Server) handleListAlerts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alerts := s.store.Alerts()
	if request.GetBool("undismissed_only", false) {
		filtered := alerts[:0]
		for _, al := range alerts {
			if !al.Dismissed {
				filtered = append(filtered, al)
			}
		}
		alerts = filtered
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal alerts: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
