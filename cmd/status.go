package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status [agent]",
	Short: "Show the fleet status summary",
	Long: `Show a fleet-wide summary of agents, open session time, estimated
value, token burn, and pending alerts.

With an agent name, shows detailed status for that agent instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return agentShowRun(args[0])
		}
		return statusOverviewRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	st := s.State()
	if len(st.Agents) == 0 {
		ui.Info("No agents tracked. Use 'amc agent add <name>' to get started.")
		return nil
	}

	now := time.Now().UTC()
	open := metrics.OpenSessions(st.Sessions)
	totals := metrics.Aggregate(open, st.Agents, now)
	tokens, hasTokens := metrics.TokenRollup(st.Sessions)
	pending := metrics.UndismissedAlerts(st.Alerts)

	fmt.Fprintf(ui.Out, "Agents:       %d (%d active)\n",
		len(st.Agents), metrics.CountByStatus(st.Agents, models.AgentStatusActive))
	fmt.Fprintf(ui.Out, "Session time: %s across %d open sessions\n",
		output.FormatDurationCompact(totals.Duration), len(open))
	fmt.Fprintf(ui.Out, "Est. value:   %s\n", output.FormatMoney(totals.Value))
	fmt.Fprintf(ui.Out, "Tokens:       %s\n", output.FormatTokens(tokens, hasTokens))
	if pending > 0 {
		fmt.Fprintf(ui.Out, "Alerts:       %s\n", output.Yellow(fmt.Sprintf("%d pending", pending)))
	} else {
		fmt.Fprintf(ui.Out, "Alerts:       none\n")
	}
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Agent", "Project", "Status", "Session", "Value"})
	for _, a := range st.Agents {
		session := "-"
		value := "-"
		for _, ses := range st.Sessions {
			if ses.AgentID != a.ID || !ses.Open() {
				continue
			}
			session = output.FormatDuration(metrics.SessionDuration(ses, now))
			if a.HourlyRate > 0 {
				value = output.FormatMoney(metrics.SessionValue(ses, a, now))
			}
			break
		}
		table.Append([]string{
			output.Cyan(a.Name),
			a.Project,
			output.StatusColor(string(a.Status)),
			session,
			value,
		})
	}
	table.Render()
	return nil
}
