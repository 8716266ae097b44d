package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentmc/amc/internal/models"
)

// MaxAlerts caps the alert list; the oldest entries beyond it are dropped.
const MaxAlerts = 200

var (
	// ErrAgentNotFound is returned when a session is started for an unknown agent.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrSessionOpen is returned when an agent already has an open session.
	ErrSessionOpen = errors.New("agent already has an open session")
)

// State is the full snapshot of tracked data, persisted as a unit after
// every mutation. All timestamps serialize as RFC 3339 strings.
type State struct {
	Agents     []models.Agent         `json:"agents"`
	Sessions   []models.Session       `json:"sessions"`
	Alerts     []models.Alert         `json:"alerts"`
	Thresholds models.AlertThresholds `json:"thresholds"`
}

// Clone returns a deep copy of the state. Callers receive clones so the
// store remains the sole mutator of its collections.
func (st State) Clone() State {
	out := State{
		Agents:     make([]models.Agent, len(st.Agents)),
		Sessions:   make([]models.Session, len(st.Sessions)),
		Alerts:     make([]models.Alert, len(st.Alerts)),
		Thresholds: st.Thresholds,
	}
	copy(out.Agents, st.Agents)
	copy(out.Alerts, st.Alerts)
	for i, ses := range st.Sessions {
		out.Sessions[i] = cloneSession(ses)
	}
	return out
}

func cloneSession(ses models.Session) models.Session {
	out := ses
	if ses.EndTime != nil {
		end := *ses.EndTime
		out.EndTime = &end
	}
	out.Notes = append([]string(nil), ses.Notes...)
	out.Tasks = append([]models.Task(nil), ses.Tasks...)
	return out
}

// Persister stores and retrieves full state snapshots.
// Load returns (nil, nil) when no snapshot exists yet.
type Persister interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st State) error
	Close() error
}

// Store is the authoritative in-memory state of agents, sessions, and
// alerts. Every mutation writes through to the persister and notifies
// subscribers synchronously before returning. Operations on ids that do
// not exist are silent no-ops reported through a boolean return.
type Store struct {
	mu      sync.Mutex
	state   State
	p       Persister
	logger  *slog.Logger
	subs    map[int]func(State)
	nextSub int
}

// New creates a store backed by the given persister. An absent or
// unreadable snapshot falls back to empty collections and default
// thresholds rather than failing.
func New(p Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		p:      p,
		logger: logger,
		subs:   make(map[int]func(State)),
		state:  State{Thresholds: models.DefaultThresholds()},
	}
	if p != nil {
		st, err := p.Load(context.Background())
		switch {
		case err != nil:
			logger.Warn("load state snapshot failed, starting empty", "error", err)
		case st != nil:
			s.state = *st
			if s.state.Thresholds == (models.AlertThresholds{}) {
				s.state.Thresholds = models.DefaultThresholds()
			}
		}
	}
	return s
}

// Close releases the underlying persister.
func (s *Store) Close() error {
	if s.p == nil {
		return nil
	}
	return s.p.Close()
}

// newULID generates a new ULID string (millisecond timestamp + random bits).
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Subscribe registers fn to receive the state snapshot after every
// mutation. The returned function unregisters it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// mutate applies fn under the lock. When fn reports a change the new
// snapshot is persisted and delivered to subscribers before mutate
// returns. A persist failure is logged but never rolls back the
// in-memory change.
func (s *Store) mutate(fn func(st *State) bool) bool {
	s.mu.Lock()
	changed := fn(&s.state)
	var snap State
	var subs []func(State)
	if changed {
		snap = s.state.Clone()
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	if !changed {
		return false
	}
	if s.p != nil {
		if err := s.p.Save(context.Background(), snap); err != nil {
			s.logger.Error("persist state snapshot failed", "error", err)
		}
	}
	for _, sub := range subs {
		sub(snap)
	}
	return true
}

// --- Agents ---

// AgentUpdate holds a partial agent mutation; nil fields are left unchanged.
type AgentUpdate struct {
	Name       *string
	Project    *string
	Directory  *string
	Status     *models.AgentStatus
	HourlyRate *float64
}

// AddAgent registers a new agent and returns its generated id.
func (s *Store) AddAgent(a models.Agent) string {
	a.ID = newULID()
	if a.Status == "" {
		a.Status = models.AgentStatusIdle
	}
	s.mutate(func(st *State) bool {
		st.Agents = append(st.Agents, a)
		return true
	})
	return a.ID
}

// UpdateAgent merges upd into the matching agent. Returns false if the
// agent does not exist.
func (s *Store) UpdateAgent(id string, upd AgentUpdate) bool {
	return s.mutate(func(st *State) bool {
		for i := range st.Agents {
			if st.Agents[i].ID != id {
				continue
			}
			a := &st.Agents[i]
			if upd.Name != nil {
				a.Name = *upd.Name
			}
			if upd.Project != nil {
				a.Project = *upd.Project
			}
			if upd.Directory != nil {
				a.Directory = *upd.Directory
			}
			if upd.Status != nil {
				a.Status = *upd.Status
			}
			if upd.HourlyRate != nil {
				a.HourlyRate = *upd.HourlyRate
			}
			return true
		}
		return false
	})
}

// SetAgentStatus transitions the agent's status. Transitions into
// needs-input or completed raise the corresponding alert directly; the
// polled rules never produce those types.
func (s *Store) SetAgentStatus(id string, status models.AgentStatus) bool {
	return s.mutate(func(st *State) bool {
		for i := range st.Agents {
			if st.Agents[i].ID != id {
				continue
			}
			prev := st.Agents[i].Status
			st.Agents[i].Status = status
			if prev != status {
				switch status {
				case models.AgentStatusNeedsInput:
					pushAlert(st, models.Alert{
						AgentID: id,
						Type:    models.AlertTypeNeedsInput,
						Message: fmt.Sprintf("%s is waiting for operator input", st.Agents[i].Name),
					})
				case models.AgentStatusCompleted:
					pushAlert(st, models.Alert{
						AgentID: id,
						Type:    models.AlertTypeCompleted,
						Message: fmt.Sprintf("%s finished its run", st.Agents[i].Name),
					})
				}
			}
			return true
		}
		return false
	})
}

// RemoveAgent deletes the agent along with its sessions and alerts.
func (s *Store) RemoveAgent(id string) bool {
	return s.mutate(func(st *State) bool {
		found := false
		agents := st.Agents[:0]
		for _, a := range st.Agents {
			if a.ID == id {
				found = true
				continue
			}
			agents = append(agents, a)
		}
		if !found {
			return false
		}
		st.Agents = agents

		sessions := st.Sessions[:0]
		for _, ses := range st.Sessions {
			if ses.AgentID != id {
				sessions = append(sessions, ses)
			}
		}
		st.Sessions = sessions

		alerts := st.Alerts[:0]
		for _, al := range st.Alerts {
			if al.AgentID != id {
				alerts = append(alerts, al)
			}
		}
		st.Alerts = alerts
		return true
	})
}

// --- Sessions ---

// StartSession opens a new session for the agent and returns its id.
// An agent can have at most one open session at a time.
func (s *Store) StartSession(agentID string) (string, error) {
	var id string
	var startErr error
	s.mutate(func(st *State) bool {
		if !agentExists(st, agentID) {
			startErr = ErrAgentNotFound
			return false
		}
		for i := range st.Sessions {
			if st.Sessions[i].AgentID == agentID && st.Sessions[i].Open() {
				startErr = ErrSessionOpen
				return false
			}
		}
		now := time.Now().UTC()
		id = newULID()
		st.Sessions = append(st.Sessions, models.Session{
			ID:             id,
			AgentID:        agentID,
			StartTime:      now,
			LastActivityAt: now,
			Notes:          []string{},
			Tasks:          []models.Task{},
		})
		return true
	})
	if startErr != nil {
		return "", startErr
	}
	return id, nil
}

// EndSession closes the session. Closing an absent or already-closed
// session is a no-op.
func (s *Store) EndSession(sessionID string) bool {
	return s.mutate(func(st *State) bool {
		for i := range st.Sessions {
			if st.Sessions[i].ID == sessionID && st.Sessions[i].Open() {
				now := time.Now().UTC()
				st.Sessions[i].EndTime = &now
				return true
			}
		}
		return false
	})
}

// AddSessionNote appends a note to the session.
func (s *Store) AddSessionNote(sessionID, note string) bool {
	return s.withSession(sessionID, func(ses *models.Session) {
		ses.Notes = append(ses.Notes, note)
	})
}

// AddSessionTask appends a task to the session and returns its id.
func (s *Store) AddSessionTask(sessionID, text string) (string, bool) {
	var id string
	ok := s.withSession(sessionID, func(ses *models.Session) {
		id = newULID()
		ses.Tasks = append(ses.Tasks, models.Task{ID: id, Text: text})
	})
	if !ok {
		return "", false
	}
	return id, true
}

// ToggleSessionTask flips the done flag of the matching task.
func (s *Store) ToggleSessionTask(sessionID, taskID string) bool {
	found := false
	s.withSession(sessionID, func(ses *models.Session) {
		for i := range ses.Tasks {
			if ses.Tasks[i].ID == taskID {
				ses.Tasks[i].Done = !ses.Tasks[i].Done
				found = true
			}
		}
	})
	return found
}

// RemoveSessionTask deletes the matching task from the session.
func (s *Store) RemoveSessionTask(sessionID, taskID string) bool {
	found := false
	s.withSession(sessionID, func(ses *models.Session) {
		tasks := ses.Tasks[:0]
		for _, t := range ses.Tasks {
			if t.ID == taskID {
				found = true
				continue
			}
			tasks = append(tasks, t)
		}
		ses.Tasks = tasks
	})
	return found
}

// SetTokenEstimate overwrites the session's token estimate (last write wins).
func (s *Store) SetTokenEstimate(sessionID string, tokens int) bool {
	return s.withSession(sessionID, func(ses *models.Session) {
		ses.TokenEstimate = tokens
	})
}

// withSession runs fn against the matching session and records the
// mutation time as session activity, which feeds the idle rule.
func (s *Store) withSession(sessionID string, fn func(*models.Session)) bool {
	return s.mutate(func(st *State) bool {
		for i := range st.Sessions {
			if st.Sessions[i].ID == sessionID {
				fn(&st.Sessions[i])
				st.Sessions[i].LastActivityAt = time.Now().UTC()
				return true
			}
		}
		return false
	})
}

// --- Alerts ---

// AddAlert records a new alert, newest first, and returns its id. The
// list is truncated to the MaxAlerts most recent entries.
func (s *Store) AddAlert(agentID string, typ models.AlertType, message string) string {
	var id string
	s.mutate(func(st *State) bool {
		al := pushAlert(st, models.Alert{AgentID: agentID, Type: typ, Message: message})
		id = al.ID
		return true
	})
	return id
}

// pushAlert assigns id/timestamp, prepends, and enforces the cap.
// Caller holds the store lock.
func pushAlert(st *State, al models.Alert) models.Alert {
	al.ID = newULID()
	al.Timestamp = time.Now().UTC()
	al.Dismissed = false
	st.Alerts = append([]models.Alert{al}, st.Alerts...)
	if len(st.Alerts) > MaxAlerts {
		st.Alerts = st.Alerts[:MaxAlerts]
	}
	return al
}

// DismissAlert marks the alert dismissed. Dismissal is monotonic; no
// operation clears the flag again.
func (s *Store) DismissAlert(id string) bool {
	return s.mutate(func(st *State) bool {
		for i := range st.Alerts {
			if st.Alerts[i].ID == id && !st.Alerts[i].Dismissed {
				st.Alerts[i].Dismissed = true
				return true
			}
		}
		return false
	})
}

// ClearAlerts empties the alert list.
func (s *Store) ClearAlerts() {
	s.mutate(func(st *State) bool {
		if len(st.Alerts) == 0 {
			return false
		}
		st.Alerts = nil
		return true
	})
}

// --- Thresholds ---

// ThresholdsUpdate holds a partial thresholds mutation; nil fields keep
// their current value.
type ThresholdsUpdate struct {
	IdleMinutes        *int
	LongSessionMinutes *int
}

// SetThresholds merges upd into the live thresholds.
func (s *Store) SetThresholds(upd ThresholdsUpdate) {
	s.mutate(func(st *State) bool {
		changed := false
		if upd.IdleMinutes != nil && st.Thresholds.IdleMinutes != *upd.IdleMinutes {
			st.Thresholds.IdleMinutes = *upd.IdleMinutes
			changed = true
		}
		if upd.LongSessionMinutes != nil && st.Thresholds.LongSessionMinutes != *upd.LongSessionMinutes {
			st.Thresholds.LongSessionMinutes = *upd.LongSessionMinutes
			changed = true
		}
		return changed
	})
}

// Restore replaces the entire state, persisting and notifying as one
// mutation. Used by seed/import paths.
func (s *Store) Restore(st State) {
	s.mutate(func(cur *State) bool {
		if st.Thresholds == (models.AlertThresholds{}) {
			st.Thresholds = models.DefaultThresholds()
		}
		*cur = st.Clone()
		return true
	})
}

// --- Accessors (all return deep copies) ---

// State returns a snapshot of the full state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Agents returns all agents.
func (s *Store) Agents() []models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Agent(nil), s.state.Agents...)
}

// Agent returns the agent with the given id.
func (s *Store) Agent(id string) (models.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.state.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return models.Agent{}, false
}

// Sessions returns all sessions.
func (s *Store) Sessions() []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Session, len(s.state.Sessions))
	for i, ses := range s.state.Sessions {
		out[i] = cloneSession(ses)
	}
	return out
}

// Session returns the session with the given id.
func (s *Store) Session(id string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ses := range s.state.Sessions {
		if ses.ID == id {
			return cloneSession(ses), true
		}
	}
	return models.Session{}, false
}

// SessionsForAgent returns the agent's sessions in insertion order.
func (s *Store) SessionsForAgent(agentID string) []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, ses := range s.state.Sessions {
		if ses.AgentID == agentID {
			out = append(out, cloneSession(ses))
		}
	}
	return out
}

// OpenSession returns the agent's open session, if any.
func (s *Store) OpenSession(agentID string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ses := range s.state.Sessions {
		if ses.AgentID == agentID && ses.Open() {
			return cloneSession(ses), true
		}
	}
	return models.Session{}, false
}

// Alerts returns all alerts, newest first.
func (s *Store) Alerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert(nil), s.state.Alerts...)
}

// Thresholds returns the live alert thresholds.
func (s *Store) Thresholds() models.AlertThresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Thresholds
}

func agentExists(st *State, id string) bool {
	for i := range st.Agents {
		if st.Agents[i].ID == id {
			return true
		}
	}
	return false
}
