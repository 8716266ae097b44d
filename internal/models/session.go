package models

import "time"

// Task is a checklist item scoped to one session.
type Task struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Session is one continuous working interval for an agent.
// A session with no EndTime is open; notes and tasks are append-only
// insertion-ordered sequences.
type Session struct {
	ID             string     `json:"id"`
	AgentID        string     `json:"agentId"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	Notes          []string   `json:"notes"`
	Tasks          []Task     `json:"tasks"`
	TokenEstimate  int        `json:"tokenEstimate,omitempty"`
}

// Open reports whether the session is still running.
func (s *Session) Open() bool {
	return s.EndTime == nil
}
