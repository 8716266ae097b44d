package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/agentmc/amc/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"dash"},
	Short:   "Open the live terminal dashboard",
	Long: `Open a full-screen terminal dashboard with fleet metrics, per-agent
session timers, and recent alerts, refreshed every second.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		p := tea.NewProgram(tui.NewDashboard(s), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
