package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/output"
	"github.com/agentmc/amc/internal/store"
)

var alertAll bool

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage alerts",
	Long:  "List, dismiss, and clear alerts raised for tracked agents.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return alertListRun()
	},
}

var alertListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List undismissed alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return alertListRun()
	},
}

var alertDismissCmd = &cobra.Command{
	Use:   "dismiss <alert>",
	Short: "Dismiss an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return alertDismissRun(args[0])
	},
}

var alertClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return alertClearRun()
	},
}

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Show or set alert thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return thresholdsRun(cmd)
	},
}

func init() {
	alertListCmd.Flags().BoolVarP(&alertAll, "all", "a", false, "Include dismissed alerts")

	thresholdsCmd.Flags().Int("idle", 0, "Minutes without activity before an idle alert")
	thresholdsCmd.Flags().Int("long-session", 0, "Minutes before a long-session alert")

	alertCmd.AddCommand(alertListCmd)
	alertCmd.AddCommand(alertDismissCmd)
	alertCmd.AddCommand(alertClearCmd)
	alertCmd.AddCommand(thresholdsCmd)
	rootCmd.AddCommand(alertCmd)
}

func alertListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	alerts := s.Alerts()
	agentNames := make(map[string]string)
	for _, a := range s.Agents() {
		agentNames[a.ID] = a.Name
	}

	table := ui.Table([]string{"ID", "Type", "Agent", "Message", "When"})
	shown := 0
	for _, al := range alerts {
		if al.Dismissed && !alertAll {
			continue
		}
		name := agentNames[al.AgentID]
		if name == "" {
			name = shortID(al.AgentID)
		}
		typ := output.AlertColor(string(al.Type))
		if al.Dismissed {
			typ = string(al.Type) + " (dismissed)"
		}
		table.Append([]string{
			shortID(al.ID),
			typ,
			name,
			al.Message,
			timeAgo(al.Timestamp),
		})
		shown++
	}

	if shown == 0 {
		ui.Info("No alerts.")
		return nil
	}
	table.Render()
	return nil
}

func alertDismissRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	al, err := resolveAlert(s, ref)
	if err != nil {
		return err
	}

	s.DismissAlert(al.ID)
	ui.Success("Alert %s dismissed", shortID(al.ID))
	return nil
}

func alertClearRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	n := len(s.Alerts())
	s.ClearAlerts()
	ui.Success("Cleared %d alerts", n)
	return nil
}

func thresholdsRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	var upd store.ThresholdsUpdate
	if cmd.Flags().Changed("idle") {
		v, _ := cmd.Flags().GetInt("idle")
		if v < 1 {
			return fmt.Errorf("idle threshold must be at least 1 minute")
		}
		upd.IdleMinutes = &v
	}
	if cmd.Flags().Changed("long-session") {
		v, _ := cmd.Flags().GetInt("long-session")
		if v < 1 {
			return fmt.Errorf("long-session threshold must be at least 1 minute")
		}
		upd.LongSessionMinutes = &v
	}

	if upd.IdleMinutes != nil || upd.LongSessionMinutes != nil {
		s.SetThresholds(upd)
	}

	th := s.Thresholds()
	fmt.Fprintf(ui.Out, "  idle:         %d minutes\n", th.IdleMinutes)
	fmt.Fprintf(ui.Out, "  long-session: %d minutes\n", th.LongSessionMinutes)
	return nil
}

// resolveAlert finds an alert by full id or id prefix.
func resolveAlert(s *store.Store, ref string) (models.Alert, error) {
	var matches []models.Alert
	for _, al := range s.Alerts() {
		if al.ID == ref {
			return al, nil
		}
		if strings.HasPrefix(al.ID, strings.ToUpper(ref)) {
			matches = append(matches, al)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Alert{}, fmt.Errorf("alert not found: %s", ref)
	default:
		return models.Alert{}, fmt.Errorf("ambiguous alert %s: matches %d alerts", ref, len(matches))
	}
}
