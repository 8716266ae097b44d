package models

// AgentStatus represents the state of a monitored agent.
type AgentStatus string

const (
	AgentStatusActive     AgentStatus = "active"
	AgentStatusIdle       AgentStatus = "idle"
	AgentStatusNeedsInput AgentStatus = "needs-input"
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusError      AgentStatus = "error"
)

// ValidAgentStatus reports whether s is one of the known agent statuses.
func ValidAgentStatus(s AgentStatus) bool {
	switch s {
	case AgentStatusActive, AgentStatusIdle, AgentStatusNeedsInput,
		AgentStatusCompleted, AgentStatusError:
		return true
	}
	return false
}

// Agent represents one monitored coding-agent instance.
type Agent struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Project    string      `json:"project"`
	Directory  string      `json:"directory"`
	Status     AgentStatus `json:"status"`
	HourlyRate float64     `json:"hourlyRate"`
}
