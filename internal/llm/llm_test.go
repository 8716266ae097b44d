package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentmc/amc/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	agent := models.Agent{Name: "Alpha", Project: "Portfolio Site"}
	ses := models.Session{
		ID:        "s1",
		AgentID:   "a1",
		StartTime: now.Add(-(3*time.Hour + 5*time.Minute)),
		Notes:     []string{"Switched to App Router"},
		Tasks: []models.Task{
			{ID: "t1", Text: "Build hero section", Done: true},
			{ID: "t2", Text: "Add contact form", Done: false},
		},
		TokenEstimate: 45000,
	}

	system, user := buildPrompt(agent, ses, now)

	assert.Contains(t, system, "stand-up")
	assert.Contains(t, user, "Agent: Alpha (project: Portfolio Site)")
	assert.Contains(t, user, "Elapsed: 3h 5m")
	assert.Contains(t, user, "Token estimate: 45000")
	assert.Contains(t, user, "- Switched to App Router")
	assert.Contains(t, user, "- [x] Build hero section")
	assert.Contains(t, user, "- [ ] Add contact form")
}

func TestBuildPrompt_EmptySession(t *testing.T) {
	now := time.Now().UTC()
	ses := models.Session{ID: "s1", StartTime: now}

	_, user := buildPrompt(models.Agent{Name: "Bravo"}, ses, now)

	assert.Contains(t, user, "Notes:\n(none)")
	assert.Contains(t, user, "Tasks:\n(none)")
	assert.NotContains(t, user, "Token estimate")
}
