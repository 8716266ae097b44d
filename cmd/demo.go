package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/store"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Replace the current state with a sample fleet",
	Long: `Replace the current state with a sample three-agent fleet, useful for
trying out the dashboard and alert commands. This overwrites any
existing agents, sessions, and alerts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return demoRun()
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func demoRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	min := time.Minute
	end := now.Add(-4 * 60 * min)

	s.Restore(store.State{
		Agents: []models.Agent{
			{ID: "agent-alpha", Name: "Alpha", Project: "Portfolio Site",
				Directory: "~/Projects/portfolio-site", Status: models.AgentStatusActive, HourlyRate: 150},
			{ID: "agent-bravo", Name: "Bravo", Project: "Website Factory",
				Directory: "~/Projects/website-factory", Status: models.AgentStatusNeedsInput, HourlyRate: 175},
			{ID: "agent-charlie", Name: "Charlie", Project: "Bottleneck Analyzer",
				Directory: "~/Projects/bottleneck-analyzer", Status: models.AgentStatusIdle, HourlyRate: 150},
		},
		Sessions: []models.Session{
			{
				ID: "ses-alpha-1", AgentID: "agent-alpha",
				StartTime: now.Add(-45 * min), LastActivityAt: now.Add(-2 * min),
				Notes: []string{
					"Started building the hero section with parallax scroll",
					"Switched to Next.js App Router for better SEO",
				},
				Tasks: []models.Task{
					{ID: "t1", Text: "Set up Next.js project", Done: true},
					{ID: "t2", Text: "Build hero section", Done: true},
					{ID: "t3", Text: "Create project gallery", Done: false},
					{ID: "t4", Text: "Add contact form", Done: false},
				},
				TokenEstimate: 45000,
			},
			{
				ID: "ses-bravo-1", AgentID: "agent-bravo",
				StartTime: now.Add(-22 * min), LastActivityAt: now.Add(-10 * min),
				Notes: []string{"Needs clarification on template engine choice"},
				Tasks: []models.Task{
					{ID: "t5", Text: "Scaffold project structure", Done: true},
					{ID: "t6", Text: "Build template selector", Done: false},
					{ID: "t7", Text: "Implement build pipeline", Done: false},
				},
				TokenEstimate: 22000,
			},
			{
				ID: "ses-charlie-1", AgentID: "agent-charlie",
				StartTime: now.Add(-67 * min), LastActivityAt: now.Add(-15 * min),
				Notes: []string{
					"Idle - waiting for profiling data to finish",
					"First pass analysis complete, need to run stress test next",
				},
				Tasks: []models.Task{
					{ID: "t8", Text: "Profile API endpoints", Done: true},
					{ID: "t9", Text: "Analyze database queries", Done: true},
					{ID: "t10", Text: "Generate bottleneck report", Done: false},
				},
				TokenEstimate: 67000,
			},
			{
				ID: "ses-alpha-0", AgentID: "agent-alpha",
				StartTime: now.Add(-6 * 60 * min), EndTime: &end, LastActivityAt: end,
				Notes: []string{"Initial project setup and planning"},
				Tasks: []models.Task{
					{ID: "t11", Text: "Research design inspiration", Done: true},
					{ID: "t12", Text: "Set up repo and CI", Done: true},
				},
				TokenEstimate: 120000,
			},
		},
		Alerts: []models.Alert{
			{
				ID: "alert-1", AgentID: "agent-charlie", Type: models.AlertTypeIdle,
				Message:   "Agent Charlie has been idle for 15 minutes",
				Timestamp: now.Add(-5 * min),
			},
			{
				ID: "alert-2", AgentID: "agent-bravo", Type: models.AlertTypeNeedsInput,
				Message:   "Agent Bravo needs input: template engine selection",
				Timestamp: now.Add(-8 * min),
			},
		},
		Thresholds: models.DefaultThresholds(),
	})

	ui.Success("Sample fleet loaded: 3 agents, 4 sessions, 2 alerts")
	ui.Info("Try 'amc status' or 'amc dashboard'")
	return nil
}
