package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/store"
)

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return tc.Text
}

func newTestMCP(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := store.New(nil, nil)
	return NewServer(s), s
}

func TestHandleListAgents(t *testing.T) {
	srv, s := newTestMCP(t)
	s.AddAgent(models.Agent{Name: "Alpha", Project: "Portfolio"})

	result, err := srv.handleListAgents(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var agents []models.Agent
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "Alpha", agents[0].Name)
}

func TestHandleStartSession(t *testing.T) {
	srv, s := newTestMCP(t)
	id := s.AddAgent(models.Agent{Name: "Alpha"})

	result, err := srv.handleStartSession(context.Background(), callRequest(map[string]any{"agent_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	assert.NotEmpty(t, out.SessionID)

	// Second start reports the conflict as a tool error.
	result, err = srv.handleStartSession(context.Background(), callRequest(map[string]any{"agent_id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleStartSession_MissingArg(t *testing.T) {
	srv, _ := newTestMCP(t)

	result, err := srv.handleStartSession(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleFleetStatus(t *testing.T) {
	srv, s := newTestMCP(t)
	id := s.AddAgent(models.Agent{Name: "Alpha", HourlyRate: 150})
	s.SetAgentStatus(id, models.AgentStatusActive)
	sid, err := s.StartSession(id)
	require.NoError(t, err)
	s.SetTokenEstimate(sid, 45000)

	result, err := srv.handleFleetStatus(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &status))
	assert.Equal(t, float64(1), status["totalAgents"])
	assert.Equal(t, float64(1), status["activeAgents"])
	assert.Equal(t, float64(1), status["openSessions"])
	assert.Equal(t, true, status["tokenDataPresent"])
}
