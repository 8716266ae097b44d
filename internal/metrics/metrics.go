// Package metrics computes derived values over store snapshots. All
// functions are pure: they take an explicit "now" and hold no state, so
// callers recompute them freely on every render or evaluation pass.
package metrics

import (
	"time"

	"github.com/agentmc/amc/internal/models"
)

// SessionDuration returns the elapsed time of a session: end minus
// start for a closed session, now minus start for an open one. Clock
// skew never yields a negative duration.
func SessionDuration(ses models.Session, now time.Time) time.Duration {
	end := now
	if ses.EndTime != nil {
		end = *ses.EndTime
	}
	d := end.Sub(ses.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// SessionValue returns the monetary value of a session at the agent's
// hourly rate.
func SessionValue(ses models.Session, agent models.Agent, now time.Time) float64 {
	return SessionDuration(ses, now).Hours() * agent.HourlyRate
}

// Totals holds aggregate duration and value over a set of sessions.
type Totals struct {
	Duration time.Duration
	Value    float64
}

// Aggregate sums duration and value across sessions. Duration counts
// every session; value only sessions whose agent is present in agents,
// so records orphaned by agent removal still show time but no cost.
// Summation is order-independent.
func Aggregate(sessions []models.Session, agents []models.Agent, now time.Time) Totals {
	rates := make(map[string]float64, len(agents))
	for _, a := range agents {
		rates[a.ID] = a.HourlyRate
	}

	var t Totals
	for _, ses := range sessions {
		d := SessionDuration(ses, now)
		t.Duration += d
		if rate, ok := rates[ses.AgentID]; ok {
			t.Value += d.Hours() * rate
		}
	}
	return t
}

// OpenSessions filters to the sessions with no end time.
func OpenSessions(sessions []models.Session) []models.Session {
	var out []models.Session
	for _, ses := range sessions {
		if ses.Open() {
			out = append(out, ses)
		}
	}
	return out
}

// TokenRollup sums session token estimates. hasData is false when no
// session carries an estimate, distinguishing "no data" from an
// explicit total of zero.
func TokenRollup(sessions []models.Session) (total int, hasData bool) {
	for _, ses := range sessions {
		if ses.TokenEstimate > 0 {
			total += ses.TokenEstimate
			hasData = true
		}
	}
	return total, hasData
}

// CountByStatus returns how many agents hold the given status.
func CountByStatus(agents []models.Agent, status models.AgentStatus) int {
	n := 0
	for _, a := range agents {
		if a.Status == status {
			n++
		}
	}
	return n
}

// UndismissedAlerts counts the alerts still requiring attention.
func UndismissedAlerts(alerts []models.Alert) int {
	n := 0
	for _, al := range alerts {
		if !al.Dismissed {
			n++
		}
	}
	return n
}
