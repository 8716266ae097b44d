package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/output"
	"github.com/agentmc/amc/internal/store"
)

var (
	agentProject string
	agentDir     string
	agentRate    float64
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage tracked agents",
	Long:  "Register, inspect, and update the coding agents amc tracks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentListRun()
	},
}

var agentAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentAddRun(args[0])
	},
}

var agentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tracked agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentListRun()
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Show one agent with its sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentShowRun(args[0])
	},
}

var agentStatusCmd = &cobra.Command{
	Use:   "status <agent> <active|idle|needs-input|completed|error>",
	Short: "Set an agent's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentStatusRun(args[0], args[1])
	},
}

var agentSetCmd = &cobra.Command{
	Use:   "set <agent>",
	Short: "Update agent fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentSetRun(cmd, args[0])
	},
}

var agentRemoveCmd = &cobra.Command{
	Use:     "rm <agent>",
	Aliases: []string{"remove"},
	Short:   "Remove an agent and its sessions and alerts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentRemoveRun(args[0])
	},
}

func init() {
	agentAddCmd.Flags().StringVar(&agentProject, "project", "", "Project the agent works on")
	agentAddCmd.Flags().StringVar(&agentDir, "dir", "", "Working directory of the agent")
	agentAddCmd.Flags().Float64Var(&agentRate, "rate", 0, "Hourly rate in dollars for value estimates")

	agentSetCmd.Flags().String("name", "", "New agent name")
	agentSetCmd.Flags().String("project", "", "New project")
	agentSetCmd.Flags().String("dir", "", "New working directory")
	agentSetCmd.Flags().Float64("rate", 0, "New hourly rate")

	agentCmd.AddCommand(agentAddCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
	agentCmd.AddCommand(agentStatusCmd)
	agentCmd.AddCommand(agentSetCmd)
	agentCmd.AddCommand(agentRemoveCmd)
	rootCmd.AddCommand(agentCmd)
}

func agentAddRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	id := s.AddAgent(models.Agent{
		Name:       name,
		Project:    agentProject,
		Directory:  agentDir,
		HourlyRate: agentRate,
	})

	ui.Success("Agent %s registered (%s)", output.Cyan(name), shortID(id))
	return nil
}

func agentListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	agents := s.Agents()
	if len(agents) == 0 {
		ui.Info("No agents tracked. Use 'amc agent add <name>' to get started.")
		return nil
	}

	now := time.Now().UTC()
	table := ui.Table([]string{"ID", "Name", "Project", "Status", "Session", "Rate"})
	for _, a := range agents {
		session := "-"
		if ses, ok := s.OpenSession(a.ID); ok {
			session = output.FormatDuration(metrics.SessionDuration(ses, now))
		}
		rate := "-"
		if a.HourlyRate > 0 {
			rate = fmt.Sprintf("$%.0f/h", a.HourlyRate)
		}
		table.Append([]string{
			shortID(a.ID),
			output.Cyan(a.Name),
			a.Project,
			output.StatusColor(string(a.Status)),
			session,
			rate,
		})
	}
	table.Render()
	return nil
}

func agentShowRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(a.Name))
	fmt.Fprintf(ui.Out, "  ID:      %s\n", a.ID)
	fmt.Fprintf(ui.Out, "  Project: %s\n", a.Project)
	fmt.Fprintf(ui.Out, "  Dir:     %s\n", a.Directory)
	fmt.Fprintf(ui.Out, "  Status:  %s\n", output.StatusColor(string(a.Status)))
	if a.HourlyRate > 0 {
		fmt.Fprintf(ui.Out, "  Rate:    $%.0f/h\n", a.HourlyRate)
	}

	sessions := s.SessionsForAgent(a.ID)
	if len(sessions) == 0 {
		return nil
	}

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"ID", "Started", "Duration", "Value", "Notes", "Tasks"})
	for _, ses := range sessions {
		d := metrics.SessionDuration(ses, now)
		dur := output.FormatDuration(d)
		if ses.Open() {
			dur = output.Green(dur)
		}
		value := "-"
		if a.HourlyRate > 0 {
			value = output.FormatMoney(metrics.SessionValue(ses, a, now))
		}
		table.Append([]string{
			shortID(ses.ID),
			timeAgo(ses.StartTime),
			dur,
			value,
			fmt.Sprintf("%d", len(ses.Notes)),
			fmt.Sprintf("%d", len(ses.Tasks)),
		})
	}
	table.Render()
	return nil
}

func agentStatusRun(ref, status string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return err
	}

	st := models.AgentStatus(status)
	if !models.ValidAgentStatus(st) {
		return fmt.Errorf("invalid status %q (want active, idle, needs-input, completed, or error)", status)
	}

	s.SetAgentStatus(a.ID, st)
	ui.Success("Agent %s is now %s", output.Cyan(a.Name), output.StatusColor(status))
	return nil
}

func agentSetRun(cmd *cobra.Command, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return err
	}

	var upd store.AgentUpdate
	if cmd.Flags().Changed("name") {
		v, _ := cmd.Flags().GetString("name")
		upd.Name = &v
	}
	if cmd.Flags().Changed("project") {
		v, _ := cmd.Flags().GetString("project")
		upd.Project = &v
	}
	if cmd.Flags().Changed("dir") {
		v, _ := cmd.Flags().GetString("dir")
		upd.Directory = &v
	}
	if cmd.Flags().Changed("rate") {
		v, _ := cmd.Flags().GetFloat64("rate")
		upd.HourlyRate = &v
	}

	if !s.UpdateAgent(a.ID, upd) {
		return fmt.Errorf("agent not found: %s", ref)
	}
	ui.Success("Agent %s updated", output.Cyan(a.Name))
	return nil
}

func agentRemoveRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return err
	}

	s.RemoveAgent(a.ID)
	ui.Success("Agent %s removed", output.Cyan(a.Name))
	return nil
}

// resolveAgent finds an agent by name, full id, or id prefix.
func resolveAgent(s *store.Store, ref string) (models.Agent, error) {
	agents := s.Agents()

	for _, a := range agents {
		if a.Name == ref || a.ID == ref {
			return a, nil
		}
	}

	var matches []models.Agent
	for _, a := range agents {
		if strings.HasPrefix(a.ID, strings.ToUpper(ref)) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Agent{}, fmt.Errorf("agent not found: %s", ref)
	default:
		return models.Agent{}, fmt.Errorf("ambiguous agent %s: matches %d agents", ref, len(matches))
	}
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
