// Package tui renders the live mission-control dashboard in the
// terminal: fleet metric cards, per-agent rows with running timers,
// and the most recent alerts.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentmc/amc/internal/metrics"
	"github.com/agentmc/amc/internal/models"
	"github.com/agentmc/amc/internal/output"
	"github.com/agentmc/amc/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	cardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MarginRight(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle  = lipgloss.NewStyle().Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	urgentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	statusStyles = map[models.AgentStatus]lipgloss.Style{
		models.AgentStatusActive:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		models.AgentStatusIdle:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		models.AgentStatusNeedsInput: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		models.AgentStatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		models.AgentStatusError:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// maxAlertRows limits how many alerts the dashboard shows at once.
const maxAlertRows = 6

type tickMsg time.Time

// Dashboard is the bubbletea model for the live fleet view.
type Dashboard struct {
	store *store.Store
	state store.State
	now   time.Time
	width int
}

// NewDashboard creates a dashboard over the given store.
func NewDashboard(s *store.Store) *Dashboard {
	return &Dashboard{
		store: s,
		state: s.State(),
		now:   time.Now().UTC(),
	}
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return tick()
}

// tick drives the once-per-second timer refresh.
func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		d.now = time.Time(msg).UTC()
		d.state = d.store.State()
		return d, tick()

	case tea.WindowSizeMsg:
		d.width = msg.Width
		return d, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return d, tea.Quit
		case "r":
			d.state = d.store.State()
			return d, nil
		case "d":
			for _, al := range d.state.Alerts {
				if !al.Dismissed {
					d.store.DismissAlert(al.ID)
					break
				}
			}
			d.state = d.store.State()
			return d, nil
		case "c":
			d.store.ClearAlerts()
			d.state = d.store.State()
			return d, nil
		}
	}
	return d, nil
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	header := titleStyle.Render("amc — agent mission control")
	cards := d.renderCards()
	agents := d.renderAgents()
	alerts := d.renderAlerts()
	help := helpStyle.Render("d: dismiss alert  c: clear alerts  r: refresh  q: quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header, "", cards, "", agents, "", alerts, "", help) + "\n"
}

func (d *Dashboard) renderCards() string {
	open := metrics.OpenSessions(d.state.Sessions)
	totals := metrics.Aggregate(open, d.state.Agents, d.now)
	tokens, hasTokens := metrics.TokenRollup(d.state.Sessions)

	cards := []struct {
		label string
		value string
	}{
		{"Agents", fmt.Sprintf("%d", len(d.state.Agents))},
		{"Active", fmt.Sprintf("%d", metrics.CountByStatus(d.state.Agents, models.AgentStatusActive))},
		{"Session Time", output.FormatDurationCompact(totals.Duration)},
		{"Est. Value", output.FormatMoney(totals.Value)},
		{"Tokens", output.FormatTokens(tokens, hasTokens)},
		{"Alerts", fmt.Sprintf("%d", metrics.UndismissedAlerts(d.state.Alerts))},
	}

	rendered := make([]string, len(cards))
	for i, c := range cards {
		rendered[i] = cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			labelStyle.Render(c.label), valueStyle.Render(c.value)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (d *Dashboard) renderAgents() string {
	if len(d.state.Agents) == 0 {
		return labelStyle.Render("No agents tracked. Use 'amc agent add' to get started.")
	}

	lines := []string{titleStyle.Render("Agents")}
	for _, a := range d.state.Agents {
		status := statusStyles[a.Status].Render(string(a.Status))
		timer := "-"
		for _, ses := range d.state.Sessions {
			if ses.AgentID == a.ID && ses.Open() {
				timer = output.FormatDuration(metrics.SessionDuration(ses, d.now))
				break
			}
		}
		lines = append(lines, fmt.Sprintf("  %-16s %-24s %-14s %s", a.Name, a.Project, status, timer))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (d *Dashboard) renderAlerts() string {
	lines := []string{titleStyle.Render("Alerts")}
	shown := 0
	for _, al := range d.state.Alerts {
		if al.Dismissed {
			continue
		}
		style := alertStyle
		if al.Type == models.AlertTypeNeedsInput {
			style = urgentStyle
		}
		age := output.FormatDurationCompact(d.now.Sub(al.Timestamp))
		lines = append(lines, style.Render(fmt.Sprintf("  [%s] %s (%s ago)", al.Type, al.Message, age)))
		shown++
		if shown >= maxAlertRows {
			break
		}
	}
	if shown == 0 {
		lines = append(lines, labelStyle.Render("  none"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
