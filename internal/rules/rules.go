// Package rules decides which alerts the current fleet state warrants.
// The evaluator is idempotent: running it twice against unchanged state
// yields no duplicate findings, because raised alerts feed back into
// the state it deduplicates against.
package rules

import (
	"fmt"
	"time"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/output"
	"github.com/agentmc/amc/internal/store"
)

// Finding is an alert the evaluator wants raised.
type Finding struct {
	AgentID string
	Type    models.AlertType
	Message string
}

// Evaluator applies the idle and long-session rules against store
// snapshots. Needs-input and completed alerts are raised by explicit
// status transitions in the store, never by polling.
type Evaluator struct {
	// longFired tracks sessions that already raised a long-session
	// alert, so a session never raises the same type twice while it
	// stays open. Entries for closed sessions are pruned each pass.
	longFired map[string]bool
}

// NewEvaluator returns an evaluator with empty trigger history.
func NewEvaluator() *Evaluator {
	return &Evaluator{longFired: make(map[string]bool)}
}

// Evaluate returns the alerts warranted by st at the given time.
func (e *Evaluator) Evaluate(st store.State, now time.Time) []Finding {
	var findings []Finding

	undismissed := make(map[string]bool) // agentID + "/" + type
	for _, al := range st.Alerts {
		if !al.Dismissed {
			undismissed[dedupeKey(al.AgentID, al.Type)] = true
		}
	}

	open := make(map[string]bool, len(st.Sessions))
	for _, ses := range st.Sessions {
		if ses.Open() {
			open[ses.ID] = true
		}
	}
	for id := range e.longFired {
		if !open[id] {
			delete(e.longFired, id)
		}
	}

	// Idle: a non-active agent whose open session has seen no
	// note/task/token mutation for the idle threshold.
	for _, a := range st.Agents {
		if a.Status == models.AgentStatusActive {
			continue
		}
		ses, ok := latestSession(st.Sessions, a.ID)
		if !ok || !ses.Open() {
			continue
		}
		if now.Sub(ses.LastActivityAt) < st.Thresholds.IdleAfter() {
			continue
		}
		if undismissed[dedupeKey(a.ID, models.AlertTypeIdle)] {
			continue
		}
		findings = append(findings, Finding{
			AgentID: a.ID,
			Type:    models.AlertTypeIdle,
			Message: fmt.Sprintf("%s has been idle for %s", a.Name,
				output.FormatDurationCompact(now.Sub(ses.LastActivityAt))),
		})
		undismissed[dedupeKey(a.ID, models.AlertTypeIdle)] = true
	}

	// Long session: any open session past the elapsed threshold, once
	// per session.
	for _, ses := range st.Sessions {
		if !ses.Open() || e.longFired[ses.ID] {
			continue
		}
		elapsed := metrics.SessionDuration(ses, now)
		if elapsed < st.Thresholds.LongSessionAfter() {
			continue
		}
		if undismissed[dedupeKey(ses.AgentID, models.AlertTypeLongSession)] {
			e.longFired[ses.ID] = true
			continue
		}
		name := agentName(st.Agents, ses.AgentID)
		findings = append(findings, Finding{
			AgentID: ses.AgentID,
			Type:    models.AlertTypeLongSession,
			Message: fmt.Sprintf("%s session running for %s", name,
				output.FormatDurationCompact(elapsed)),
		})
		e.longFired[ses.ID] = true
		undismissed[dedupeKey(ses.AgentID, models.AlertTypeLongSession)] = true
	}

	return findings
}

func dedupeKey(agentID string, typ models.AlertType) string {
	return agentID + "/" + string(typ)
}

// latestSession returns the agent's most recently started session.
func latestSession(sessions []models.Session, agentID string) (models.Session, bool) {
	var latest models.Session
	found := false
	for _, ses := range sessions {
		if ses.AgentID != agentID {
			continue
		}
		if !found || ses.StartTime.After(latest.StartTime) {
			latest = ses
			found = true
		}
	}
	return latest, found
}

func agentName(agents []models.Agent, id string) string {
	for _, a := range agents {
		if a.ID == id {
			return a.Name
		}
	}
	return id
}
