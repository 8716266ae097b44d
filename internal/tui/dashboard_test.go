package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/store"
)

func seededDashboard(t *testing.T) (*Dashboard, *store.Store) {
	t.Helper()
	s := store.New(nil, nil)
	s.Restore(store.State{
		Agents: []models.Agent{
			{ID: "a1", Name: "Alpha", Project: "Portfolio", Status: models.AgentStatusActive, HourlyRate: 150},
		},
		Sessions: []models.Session{
			{ID: "s1", AgentID: "a1", StartTime: time.Now().UTC().Add(-45 * time.Minute),
				LastActivityAt: time.Now().UTC()},
		},
		Alerts: []models.Alert{
			{ID: "al1", AgentID: "a1", Type: models.AlertTypeIdle, Message: "Alpha has been idle for 15m",
				Timestamp: time.Now().UTC()},
		},
		Thresholds: models.DefaultThresholds(),
	})
	return NewDashboard(s), s
}

func TestView_ShowsFleet(t *testing.T) {
	d, _ := seededDashboard(t)

	view := d.View()
	assert.Contains(t, view, "Alpha")
	assert.Contains(t, view, "Portfolio")
	assert.Contains(t, view, "Alpha has been idle for 15m")
	assert.Contains(t, view, "q: quit")
}

func TestUpdate_QuitKeys(t *testing.T) {
	d, _ := seededDashboard(t)

	_, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestUpdate_DismissAlert(t *testing.T) {
	d, s := seededDashboard(t)

	model, _ := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	d = model.(*Dashboard)

	alerts := s.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Dismissed)
	assert.Contains(t, d.View(), "none")
}

func TestUpdate_TickRefreshesState(t *testing.T) {
	d, s := seededDashboard(t)
	s.AddAgent(models.Agent{Name: "Bravo"})

	model, cmd := d.Update(tickMsg(time.Now()))
	d = model.(*Dashboard)

	require.NotNil(t, cmd, "tick reschedules itself")
	assert.Len(t, d.state.Agents, 2)
	assert.Contains(t, d.View(), "Bravo")
}
