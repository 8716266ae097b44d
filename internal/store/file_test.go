package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmc/amc/internal/models"
)

func sampleState() State {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	end := now.Add(90 * time.Minute)
	return State{
		Agents: []models.Agent{
			{ID: "a1", Name: "Alpha", Project: "Portfolio", Status: models.AgentStatusActive, HourlyRate: 150},
			{ID: "a2", Name: "Bravo", Status: models.AgentStatusNeedsInput},
		},
		Sessions: []models.Session{
			{
				ID: "s1", AgentID: "a1", StartTime: now, LastActivityAt: now.Add(time.Hour),
				Notes:         []string{"first note", "second note"},
				Tasks:         []models.Task{{ID: "t1", Text: "build", Done: true}},
				TokenEstimate: 45000,
			},
			{ID: "s2", AgentID: "a2", StartTime: now, EndTime: &end, LastActivityAt: end},
		},
		Alerts: []models.Alert{
			{ID: "al1", AgentID: "a2", Type: models.AlertTypeNeedsInput, Message: "waiting", Timestamp: now, Dismissed: true},
			{ID: "al2", AgentID: "a1", Type: models.AlertTypeIdle, Message: "idle", Timestamp: now},
		},
		Thresholds: models.AlertThresholds{IdleMinutes: 15, LongSessionMinutes: 90},
	}
}

func TestFilePersister_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	p, err := NewFilePersister(path)
	require.NoError(t, err)

	want := sampleState()
	require.NoError(t, p.Save(context.Background(), want))

	got, err := p.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestFilePersister_MissingFile(t *testing.T) {
	p, err := NewFilePersister(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	got, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFilePersister_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	p, err := NewFilePersister(path)
	require.NoError(t, err)

	_, err = p.Load(context.Background())
	assert.Error(t, err)
}

func TestFilePersister_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	p, err := NewFilePersister(path)
	require.NoError(t, err)

	require.NoError(t, p.Save(context.Background(), sampleState()))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFilePersister_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	p, err := NewFilePersister(path)
	require.NoError(t, err)

	first := sampleState()
	require.NoError(t, p.Save(context.Background(), first))

	second := State{Thresholds: models.DefaultThresholds()}
	require.NoError(t, p.Save(context.Background(), second))

	got, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Agents)
	assert.Equal(t, models.DefaultThresholds(), got.Thresholds)
}
