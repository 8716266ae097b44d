package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/store"
)

// Server provides the REST API handlers over the store.
type Server struct {
	store *store.Store
}

// NewServer creates a new API server.
func NewServer(s *store.Store) *Server {
	return &Server{store: s}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/agents", s.listAgents)
	mux.HandleFunc("POST /api/v1/agents", s.createAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}", s.getAgent)
	mux.HandleFunc("PUT /api/v1/agents/{id}", s.updateAgent)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", s.removeAgent)
	mux.HandleFunc("POST /api/v1/agents/{id}/status", s.setAgentStatus)
	mux.HandleFunc("GET /api/v1/agents/{id}/sessions", s.listAgentSessions)
	mux.HandleFunc("POST /api/v1/agents/{id}/sessions", s.startSession)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/end", s.endSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/notes", s.addNote)
	mux.HandleFunc("POST /api/v1/sessions/{id}/tasks", s.addTask)
	mux.HandleFunc("POST /api/v1/sessions/{id}/tasks/{taskId}/toggle", s.toggleTask)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/tasks/{taskId}", s.removeTask)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/tokens", s.setTokens)

	mux.HandleFunc("GET /api/v1/alerts", s.listAlerts)
	mux.HandleFunc("POST /api/v1/alerts/{id}/dismiss", s.dismissAlert)
	mux.HandleFunc("DELETE /api/v1/alerts", s.clearAlerts)

	mux.HandleFunc("GET /api/v1/thresholds", s.getThresholds)
	mux.HandleFunc("PUT /api/v1/thresholds", s.setThresholds)

	mux.HandleFunc("GET /api/v1/status", s.fleetStatus)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Agents ---

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Agents())
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string  `json:"name"`
		Project    string  `json:"project"`
		Directory  string  `json:"directory"`
		Status     string  `json:"status"`
		HourlyRate float64 `json:"hourlyRate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.HourlyRate < 0 {
		writeError(w, http.StatusBadRequest, "hourlyRate must be non-negative")
		return
	}
	status := models.AgentStatus(req.Status)
	if req.Status != "" && !models.ValidAgentStatus(status) {
		writeError(w, http.StatusBadRequest, "unknown status: "+req.Status)
		return
	}

	id := s.store.AddAgent(models.Agent{
		Name:       req.Name,
		Project:    req.Project,
		Directory:  req.Directory,
		Status:     status,
		HourlyRate: req.HourlyRate,
	})
	a, _ := s.store.Agent(id)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Agent(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var upd store.AgentUpdate
	patchString(patch, "name", &upd.Name)
	patchString(patch, "project", &upd.Project)
	patchString(patch, "directory", &upd.Directory)
	if v, ok := patch["status"].(string); ok {
		status := models.AgentStatus(v)
		if !models.ValidAgentStatus(status) {
			writeError(w, http.StatusBadRequest, "unknown status: "+v)
			return
		}
		upd.Status = &status
	}
	if v, ok := patch["hourlyRate"].(float64); ok {
		if v < 0 {
			writeError(w, http.StatusBadRequest, "hourlyRate must be non-negative")
			return
		}
		upd.HourlyRate = &v
	}

	if !s.store.UpdateAgent(id, upd) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	a, _ := s.store.Agent(id)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) removeAgent(w http.ResponseWriter, r *http.Request) {
	if !s.store.RemoveAgent(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	status := models.AgentStatus(req.Status)
	if !models.ValidAgentStatus(status) {
		writeError(w, http.StatusBadRequest, "unknown status: "+req.Status)
		return
	}
	id := r.PathValue("id")
	if !s.store.SetAgentStatus(id, status) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	a, _ := s.store.Agent(id)
	writeJSON(w, http.StatusOK, a)
}

// --- Sessions ---

// sessionOut decorates a session with its derived duration and value.
type sessionOut struct {
	models.Session
	Duration string  `json:"duration"`
	Value    float64 `json:"value"`
}

func (s *Server) decorate(ses models.Session, now time.Time) sessionOut {
	out := sessionOut{Session: ses}
	out.Duration = metrics.SessionDuration(ses, now).Round(time.Second).String()
	if a, ok := s.store.Agent(ses.AgentID); ok {
		out.Value = metrics.SessionValue(ses, a, now)
	}
	return out
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	sessions := s.store.Sessions()
	out := make([]sessionOut, len(sessions))
	for i, ses := range sessions {
		out[i] = s.decorate(ses, now)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listAgentSessions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Agent(id); !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	now := time.Now().UTC()
	sessions := s.store.SessionsForAgent(id)
	out := make([]sessionOut, len(sessions))
	for i, ses := range sessions {
		out[i] = s.decorate(ses, now)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.store.StartSession(r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
		return
	case errors.Is(err, store.ErrSessionOpen):
		writeError(w, http.StatusConflict, "agent already has an open session")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ses, _ := s.store.Session(id)
	writeJSON(w, http.StatusCreated, s.decorate(ses, time.Now().UTC()))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ses, ok := s.store.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.decorate(ses, time.Now().UTC()))
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.store.EndSession(id)
	ses, ok := s.store.Session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.decorate(ses, time.Now().UTC()))
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	id := r.PathValue("id")
	if !s.store.AddSessionNote(id, req.Text) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	ses, _ := s.store.Session(id)
	writeJSON(w, http.StatusOK, s.decorate(ses, time.Now().UTC()))
}

func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	id := r.PathValue("id")
	taskID, ok := s.store.AddSessionTask(id, req.Text)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	ses, _ := s.store.Session(id)
	writeJSON(w, http.StatusCreated, map[string]any{
		"taskId":  taskID,
		"session": s.decorate(ses, time.Now().UTC()),
	})
}

func (s *Server) toggleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.store.ToggleSessionTask(id, r.PathValue("taskId")) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	ses, _ := s.store.Session(id)
	writeJSON(w, http.StatusOK, s.decorate(ses, time.Now().UTC()))
}

func (s *Server) removeTask(w http.ResponseWriter, r *http.Request) {
	if !s.store.RemoveSessionTask(r.PathValue("id"), r.PathValue("taskId")) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tokens int `json:"tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Tokens < 0 {
		writeError(w, http.StatusBadRequest, "tokens must be non-negative")
		return
	}
	id := r.PathValue("id")
	if !s.store.SetTokenEstimate(id, req.Tokens) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	ses, _ := s.store.Session(id)
	writeJSON(w, http.StatusOK, s.decorate(ses, time.Now().UTC()))
}

// --- Alerts ---

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.store.Alerts()
	if r.URL.Query().Get("undismissed") == "true" {
		filtered := alerts[:0]
		for _, al := range alerts {
			if !al.Dismissed {
				filtered = append(filtered, al)
			}
		}
		alerts = filtered
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) dismissAlert(w http.ResponseWriter, r *http.Request) {
	if !s.store.DismissAlert(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "alert not found or already dismissed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearAlerts(w http.ResponseWriter, r *http.Request) {
	s.store.ClearAlerts()
	w.WriteHeader(http.StatusNoContent)
}

// --- Thresholds ---

func (s *Server) getThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Thresholds())
}

func (s *Server) setThresholds(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	var upd store.ThresholdsUpdate
	if v, ok := patch["idleMinutes"].(float64); ok {
		n := int(v)
		if n <= 0 {
			writeError(w, http.StatusBadRequest, "idleMinutes must be positive")
			return
		}
		upd.IdleMinutes = &n
	}
	if v, ok := patch["longSessionMinutes"].(float64); ok {
		n := int(v)
		if n <= 0 {
			writeError(w, http.StatusBadRequest, "longSessionMinutes must be positive")
			return
		}
		upd.LongSessionMinutes = &n
	}
	s.store.SetThresholds(upd)
	writeJSON(w, http.StatusOK, s.store.Thresholds())
}

// --- Fleet status ---

func (s *Server) fleetStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	st := s.store.State()

	open := metrics.OpenSessions(st.Sessions)
	totals := metrics.Aggregate(open, st.Agents, now)
	tokens, hasTokens := metrics.TokenRollup(st.Sessions)

	writeJSON(w, http.StatusOK, map[string]any{
		"totalAgents":       len(st.Agents),
		"activeAgents":      metrics.CountByStatus(st.Agents, models.AgentStatusActive),
		"openSessions":      len(open),
		"sessionTime":       totals.Duration.Round(time.Second).String(),
		"estimatedValue":    totals.Value,
		"tokenEstimate":     tokens,
		"tokenDataPresent":  hasTokens,
		"undismissedAlerts": metrics.UndismissedAlerts(st.Alerts),
	})
}

// patchString applies a string value from a JSON patch map to the
// target pointer if the key is present and non-empty.
func patchString(patch map[string]any, key string, target **string) {
	if v, ok := patch[key]; ok {
		if str, ok := v.(string); ok && str != "" {
			*target = &str
		}
	}
}
