package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/output"
	"github.com/agentmc/amc/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage work sessions",
	Long:  "Start, annotate, and end timed work sessions for tracked agents.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun("")
	},
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <agent>",
	Short: "Start a work session for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStartRun(args[0])
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <agent>",
	Short: "End an agent's open session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionEndRun(args[0])
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list [agent]",
	Aliases: []string{"ls"},
	Short:   "List sessions, optionally for one agent",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return sessionListRun(ref)
	},
}

var sessionNoteCmd = &cobra.Command{
	Use:   "note <agent> <text>",
	Short: "Append a note to an agent's open session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionNoteRun(args[0], strings.Join(args[1:], " "))
	},
}

var sessionTokensCmd = &cobra.Command{
	Use:   "tokens <agent> <count>",
	Short: "Record the token estimate for an agent's open session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid token count: %s", args[1])
		}
		return sessionTokensRun(args[0], n)
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Show an agent's open session in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(args[0])
	},
}

var sessionSummaryCmd = &cobra.Command{
	Use:   "summary <agent>",
	Short: "Generate a stand-up summary of an agent's latest session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionSummaryRun(args[0])
	},
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks on an agent's open session",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <agent> <text>",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAddRun(args[0], strings.Join(args[1:], " "))
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <agent> <task>",
	Short: "Toggle a task's done state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskDoneRun(args[0], args[1])
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:     "rm <agent> <task>",
	Aliases: []string{"remove"},
	Short:   "Remove a task",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskRemoveRun(args[0], args[1])
	},
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionNoteCmd)
	sessionCmd.AddCommand(sessionTokensCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionSummaryCmd)
	rootCmd.AddCommand(sessionCmd)

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskRemoveCmd)
	rootCmd.AddCommand(taskCmd)
}

func sessionStartRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return err
	}

	id, err := s.StartSession(a.ID)
	if err != nil {
		if errors.Is(err, store.ErrSessionOpen) {
			return fmt.Errorf("agent %s already has an open session", a.Name)
		}
		return err
	}

	ui.Success("Session %s started for %s", shortID(id), output.Cyan(a.Name))
	return nil
}

func sessionEndRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return err
	}

	ses, ok := s.OpenSession(a.ID)
	if !ok {
		return fmt.Errorf("agent %s has no open session", a.Name)
	}

	s.EndSession(ses.ID)
	d := metrics.SessionDuration(ses, time.Now().UTC())
	ui.Success("Session ended for %s after %s", output.Cyan(a.Name), output.FormatDuration(d))
	return nil
}

func sessionListRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	var sessions []models.Session
	if ref != "" {
		a, err := resolveAgent(s, ref)
		if err != nil {
			return err
		}
		sessions = s.SessionsForAgent(a.ID)
	} else {
		sessions = s.Sessions()
	}

	if len(sessions) == 0 {
		ui.Info("No sessions recorded.")
		return nil
	}

	now := time.Now().UTC()
	agentNames := make(map[string]string)
	table := ui.Table([]string{"ID", "Agent", "Started", "Duration", "Tokens"})
	for _, ses := range sessions {
		name := agentNames[ses.AgentID]
		if name == "" {
			if a, ok := s.Agent(ses.AgentID); ok {
				name = a.Name
				agentNames[ses.AgentID] = name
			}
		}

		dur := output.FormatDuration(metrics.SessionDuration(ses, now))
		if ses.Open() {
			dur = output.Green(dur)
		}
		tokens := "-"
		if ses.TokenEstimate > 0 {
			tokens = output.FormatTokens(ses.TokenEstimate, true)
		}
		table.Append([]string{
			shortID(ses.ID),
			name,
			timeAgo(ses.StartTime),
			dur,
			tokens,
		})
	}
	table.Render()
	return nil
}

func sessionNoteRun(ref, note string) error {
	s, ses, a, err := openSessionFor(ref)
	if err != nil {
		return err
	}

	s.AddSessionNote(ses.ID, note)
	ui.Success("Note added to %s's session", output.Cyan(a.Name))
	return nil
}

func sessionTokensRun(ref string, tokens int) error {
	s, ses, a, err := openSessionFor(ref)
	if err != nil {
		return err
	}

	s.SetTokenEstimate(ses.ID, tokens)
	ui.Success("Token estimate for %s set to %d", output.Cyan(a.Name), tokens)
	return nil
}

func sessionShowRun(ref string) error {
	_, ses, a, err := openSessionFor(ref)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	fmt.Fprintf(ui.Out, "Session %s (%s)\n", shortID(ses.ID), output.Cyan(a.Name))
	fmt.Fprintf(ui.Out, "  Started:  %s\n", ses.StartTime.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(ui.Out, "  Duration: %s\n", output.FormatDuration(metrics.SessionDuration(ses, now)))
	if a.HourlyRate > 0 {
		fmt.Fprintf(ui.Out, "  Value:    %s\n", output.FormatMoney(metrics.SessionValue(ses, a, now)))
	}
	if ses.TokenEstimate > 0 {
		fmt.Fprintf(ui.Out, "  Tokens:   %s\n", output.FormatTokens(ses.TokenEstimate, true))
	}

	if len(ses.Notes) > 0 {
		fmt.Fprintln(ui.Out, "\nNotes:")
		for _, n := range ses.Notes {
			fmt.Fprintf(ui.Out, "  - %s\n", n)
		}
	}
	if len(ses.Tasks) > 0 {
		fmt.Fprintln(ui.Out, "\nTasks:")
		for i, t := range ses.Tasks {
			mark := " "
			if t.Done {
				mark = "x"
			}
			fmt.Fprintf(ui.Out, "  %d. [%s] %s\n", i+1, mark, t.Text)
		}
	}
	return nil
}

func sessionSummaryRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return err
	}

	ses, ok := s.OpenSession(a.ID)
	if !ok {
		// Fall back to the most recent closed session.
		sessions := s.SessionsForAgent(a.ID)
		if len(sessions) == 0 {
			return fmt.Errorf("agent %s has no sessions to summarize", a.Name)
		}
		ses = sessions[len(sessions)-1]
	}

	client := newLLMClient()
	if client == nil {
		return fmt.Errorf("no Anthropic API key configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}

	ui.VerboseLog("Requesting summary for session %s", shortID(ses.ID))
	summary, err := client.SummarizeSession(context.Background(), a, ses, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("summarize session: %w", err)
	}

	fmt.Fprintln(ui.Out, summary)
	return nil
}

func taskAddRun(ref, text string) error {
	s, ses, a, err := openSessionFor(ref)
	if err != nil {
		return err
	}

	s.AddSessionTask(ses.ID, text)
	ui.Success("Task added to %s's session", output.Cyan(a.Name))
	return nil
}

func taskDoneRun(ref, taskRef string) error {
	s, ses, a, err := openSessionFor(ref)
	if err != nil {
		return err
	}

	task, err := resolveTask(ses, taskRef)
	if err != nil {
		return err
	}

	s.ToggleSessionTask(ses.ID, task.ID)
	ui.Success("Task toggled for %s: %s", output.Cyan(a.Name), task.Text)
	return nil
}

func taskRemoveRun(ref, taskRef string) error {
	s, ses, a, err := openSessionFor(ref)
	if err != nil {
		return err
	}

	task, err := resolveTask(ses, taskRef)
	if err != nil {
		return err
	}

	s.RemoveSessionTask(ses.ID, task.ID)
	ui.Success("Task removed from %s's session", output.Cyan(a.Name))
	return nil
}

// openSessionFor resolves an agent ref to its open session.
func openSessionFor(ref string) (*store.Store, models.Session, models.Agent, error) {
	s, err := getStore()
	if err != nil {
		return nil, models.Session{}, models.Agent{}, err
	}

	a, err := resolveAgent(s, ref)
	if err != nil {
		return nil, models.Session{}, models.Agent{}, err
	}

	ses, ok := s.OpenSession(a.ID)
	if !ok {
		return nil, models.Session{}, models.Agent{}, fmt.Errorf("agent %s has no open session (run 'amc session start %s')", a.Name, a.Name)
	}
	return s, ses, a, nil
}

// resolveTask finds a task by 1-based index or id prefix.
func resolveTask(ses models.Session, ref string) (models.Task, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(ses.Tasks) {
			return models.Task{}, fmt.Errorf("task index out of range: %d", n)
		}
		return ses.Tasks[n-1], nil
	}

	var matches []models.Task
	for _, t := range ses.Tasks {
		if strings.HasPrefix(t.ID, strings.ToUpper(ref)) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Task{}, fmt.Errorf("task not found: %s", ref)
	default:
		return models.Task{}, fmt.Errorf("ambiguous task %s: matches %d tasks", ref, len(matches))
	}
}
