package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	s := store.New(nil, nil)
	ts := httptest.NewServer(NewServer(s).Router())
	t.Cleanup(ts.Close)
	return ts, s
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAgentCRUD(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/agents", map[string]any{
		"name": "Alpha", "project": "Portfolio", "hourlyRate": 150,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Agent](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.AgentStatusIdle, created.Status)

	resp = doJSON(t, "GET", ts.URL+"/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agents := decode[[]models.Agent](t, resp)
	require.Len(t, agents, 1)

	resp = doJSON(t, "PUT", ts.URL+"/api/v1/agents/"+created.ID, map[string]any{
		"hourlyRate": 175,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.Agent](t, resp)
	assert.Equal(t, 175.0, updated.HourlyRate)
	assert.Equal(t, "Portfolio", updated.Project, "unpatched fields stay")

	resp = doJSON(t, "DELETE", ts.URL+"/api/v1/agents/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "GET", ts.URL+"/api/v1/agents/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateAgent_Validation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/agents", map[string]any{"project": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "POST", ts.URL+"/api/v1/agents", map[string]any{
		"name": "Alpha", "status": "sleeping",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "POST", ts.URL+"/api/v1/agents", map[string]any{
		"name": "Alpha", "hourlyRate": -5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionLifecycle(t *testing.T) {
	ts, s := newTestServer(t)
	agentID := s.AddAgent(models.Agent{Name: "Alpha", HourlyRate: 150})

	resp := doJSON(t, "POST", ts.URL+"/api/v1/agents/"+agentID+"/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ses := decode[sessionOut](t, resp)
	require.NotEmpty(t, ses.ID)

	// Second start conflicts.
	resp = doJSON(t, "POST", ts.URL+"/api/v1/agents/"+agentID+"/sessions", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/"+ses.ID+"/notes", map[string]any{
		"text": "making progress",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	withNote := decode[sessionOut](t, resp)
	assert.Equal(t, []string{"making progress"}, withNote.Notes)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/"+ses.ID+"/tasks", map[string]any{
		"text": "ship it",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskResp := decode[struct {
		TaskID  string     `json:"taskId"`
		Session sessionOut `json:"session"`
	}](t, resp)
	require.NotEmpty(t, taskResp.TaskID)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/"+ses.ID+"/tasks/"+taskResp.TaskID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	toggled := decode[sessionOut](t, resp)
	require.Len(t, toggled.Tasks, 1)
	assert.True(t, toggled.Tasks[0].Done)

	resp = doJSON(t, "PUT", ts.URL+"/api/v1/sessions/"+ses.ID+"/tokens", map[string]any{
		"tokens": 45000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/"+ses.ID+"/end", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ended := decode[sessionOut](t, resp)
	assert.NotNil(t, ended.EndTime)
	assert.Equal(t, 45000, ended.TokenEstimate)

	// Agent can start again after ending.
	resp = doJSON(t, "POST", ts.URL+"/api/v1/agents/"+agentID+"/sessions", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestStartSession_UnknownAgent(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/agents/nope/sessions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSetAgentStatus_RaisesAlert(t *testing.T) {
	ts, s := newTestServer(t)
	agentID := s.AddAgent(models.Agent{Name: "Bravo"})

	resp := doJSON(t, "POST", ts.URL+"/api/v1/agents/"+agentID+"/status", map[string]any{
		"status": "needs-input",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "GET", ts.URL+"/api/v1/alerts?undismissed=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	alerts := decode[[]models.Alert](t, resp)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTypeNeedsInput, alerts[0].Type)
}

func TestAlertDismissAndClear(t *testing.T) {
	ts, s := newTestServer(t)
	agentID := s.AddAgent(models.Agent{Name: "Alpha"})
	alertID := s.AddAlert(agentID, models.AlertTypeIdle, "idle")

	resp := doJSON(t, "POST", ts.URL+"/api/v1/alerts/"+alertID+"/dismiss", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// Second dismissal is a 404 (monotonic).
	resp = doJSON(t, "POST", ts.URL+"/api/v1/alerts/"+alertID+"/dismiss", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, "GET", ts.URL+"/api/v1/alerts?undismissed=true", nil)
	assert.Empty(t, decode[[]models.Alert](t, resp))

	resp = doJSON(t, "DELETE", ts.URL+"/api/v1/alerts", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.Empty(t, s.Alerts())
}

func TestThresholds(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, "GET", ts.URL+"/api/v1/thresholds", nil)
	th := decode[models.AlertThresholds](t, resp)
	assert.Equal(t, models.DefaultThresholds(), th)

	resp = doJSON(t, "PUT", ts.URL+"/api/v1/thresholds", map[string]any{
		"idleMinutes": 20,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	th = decode[models.AlertThresholds](t, resp)
	assert.Equal(t, 20, th.IdleMinutes)
	assert.Equal(t, models.DefaultLongSessionMinutes, th.LongSessionMinutes)

	resp = doJSON(t, "PUT", ts.URL+"/api/v1/thresholds", map[string]any{
		"longSessionMinutes": 0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestFleetStatus(t *testing.T) {
	ts, s := newTestServer(t)
	agentID := s.AddAgent(models.Agent{Name: "Alpha", HourlyRate: 150})
	s.SetAgentStatus(agentID, models.AgentStatusActive)
	sid, err := s.StartSession(agentID)
	require.NoError(t, err)
	s.SetTokenEstimate(sid, 45000)

	resp := doJSON(t, "GET", ts.URL+"/api/v1/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[map[string]any](t, resp)

	assert.Equal(t, float64(1), status["totalAgents"])
	assert.Equal(t, float64(1), status["activeAgents"])
	assert.Equal(t, float64(1), status["openSessions"])
	assert.Equal(t, float64(45000), status["tokenEstimate"])
	assert.Equal(t, true, status["tokenDataPresent"])
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest("OPTIONS", ts.URL+"/api/v1/agents", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
