package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentmc/amc/internal/models"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func openSession(id, agentID string, started time.Time) models.Session {
	return models.Session{ID: id, AgentID: agentID, StartTime: started, LastActivityAt: started}
}

func closedSession(id, agentID string, started time.Time, d time.Duration) models.Session {
	end := started.Add(d)
	ses := openSession(id, agentID, started)
	ses.EndTime = &end
	return ses
}

func TestSessionDuration_Open(t *testing.T) {
	ses := openSession("s1", "a1", base.Add(-45*time.Minute))
	assert.Equal(t, 45*time.Minute, SessionDuration(ses, base))
}

func TestSessionDuration_Closed(t *testing.T) {
	ses := closedSession("s1", "a1", base.Add(-3*time.Hour), 90*time.Minute)
	// Closed sessions ignore now entirely.
	assert.Equal(t, 90*time.Minute, SessionDuration(ses, base))
	assert.Equal(t, 90*time.Minute, SessionDuration(ses, base.Add(24*time.Hour)))
}

func TestSessionDuration_ClampsNegative(t *testing.T) {
	ses := openSession("s1", "a1", base.Add(time.Hour))
	assert.Equal(t, time.Duration(0), SessionDuration(ses, base))
}

func TestSessionValue(t *testing.T) {
	agent := models.Agent{ID: "a1", HourlyRate: 150}
	ses := openSession("s1", "a1", base.Add(-30*time.Minute))
	assert.InDelta(t, 75.0, SessionValue(ses, agent, base), 0.001)
}

func TestSessionValue_ZeroRate(t *testing.T) {
	agent := models.Agent{ID: "a1"}
	ses := openSession("s1", "a1", base.Add(-time.Hour))
	assert.Zero(t, SessionValue(ses, agent, base))
}

func TestAggregate(t *testing.T) {
	agents := []models.Agent{
		{ID: "a1", HourlyRate: 150},
		{ID: "a2", HourlyRate: 100},
	}
	sessions := []models.Session{
		openSession("s1", "a1", base.Add(-time.Hour)),
		openSession("s2", "a2", base.Add(-30*time.Minute)),
		openSession("s3", "ghost", base.Add(-2*time.Hour)),
	}

	totals := Aggregate(sessions, agents, base)
	// Duration counts every session, even for unknown agents.
	assert.Equal(t, 3*time.Hour+30*time.Minute, totals.Duration)
	// Value only counts sessions whose agent (and rate) is known.
	assert.InDelta(t, 150.0+50.0, totals.Value, 0.001)
}

func TestAggregate_Empty(t *testing.T) {
	totals := Aggregate(nil, nil, base)
	assert.Zero(t, totals.Duration)
	assert.Zero(t, totals.Value)
}

func TestOpenSessions(t *testing.T) {
	sessions := []models.Session{
		openSession("s1", "a1", base),
		closedSession("s2", "a1", base, time.Hour),
		openSession("s3", "a2", base),
	}

	open := OpenSessions(sessions)
	assert.Len(t, open, 2)
	assert.Equal(t, "s1", open[0].ID)
	assert.Equal(t, "s3", open[1].ID)
}

func TestTokenRollup(t *testing.T) {
	tests := []struct {
		name     string
		sessions []models.Session
		total    int
		hasData  bool
	}{
		{"no sessions", nil, 0, false},
		{"no estimates", []models.Session{openSession("s1", "a1", base)}, 0, false},
		{"one estimate", []models.Session{
			{ID: "s1", TokenEstimate: 45000},
			{ID: "s2"},
		}, 45000, true},
		{"sums across sessions", []models.Session{
			{ID: "s1", TokenEstimate: 45000},
			{ID: "s2", TokenEstimate: 22000},
		}, 67000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, hasData := TokenRollup(tt.sessions)
			assert.Equal(t, tt.total, total)
			assert.Equal(t, tt.hasData, hasData)
		})
	}
}

func TestCountByStatus(t *testing.T) {
	agents := []models.Agent{
		{ID: "a1", Status: models.AgentStatusActive},
		{ID: "a2", Status: models.AgentStatusActive},
		{ID: "a3", Status: models.AgentStatusIdle},
	}

	assert.Equal(t, 2, CountByStatus(agents, models.AgentStatusActive))
	assert.Equal(t, 1, CountByStatus(agents, models.AgentStatusIdle))
	assert.Equal(t, 0, CountByStatus(agents, models.AgentStatusError))
}

func TestUndismissedAlerts(t *testing.T) {
	alerts := []models.Alert{
		{ID: "al1"},
		{ID: "al2", Dismissed: true},
		{ID: "al3"},
	}
	assert.Equal(t, 2, UndismissedAlerts(alerts))
}
