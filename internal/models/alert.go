package models

import "time"

// AlertType classifies an operator alert.
type AlertType string

const (
	AlertTypeIdle        AlertType = "idle"
	AlertTypeLongSession AlertType = "long-session"
	AlertTypeNeedsInput  AlertType = "needs-input"
	AlertTypeCompleted   AlertType = "completed"
)

// Alert is a notification about an agent condition requiring attention.
// Dismissed is monotonic: once set it is never cleared.
type Alert struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Dismissed bool      `json:"dismissed"`
}

// AlertThresholds configures the alert rule evaluator.
type AlertThresholds struct {
	IdleMinutes        int `json:"idleMinutes"`
	LongSessionMinutes int `json:"longSessionMinutes"`
}

// Default alert thresholds applied to a fresh store.
const (
	DefaultIdleMinutes        = 10
	DefaultLongSessionMinutes = 120
)

// DefaultThresholds returns the thresholds used when no persisted state exists.
func DefaultThresholds() AlertThresholds {
	return AlertThresholds{
		IdleMinutes:        DefaultIdleMinutes,
		LongSessionMinutes: DefaultLongSessionMinutes,
	}
}

// IdleAfter returns the idle threshold as a duration.
func (t AlertThresholds) IdleAfter() time.Duration {
	return time.Duration(t.IdleMinutes) * time.Minute
}

// LongSessionAfter returns the long-session threshold as a duration.
func (t AlertThresholds) LongSessionAfter() time.Duration {
	return time.Duration(t.LongSessionMinutes) * time.Minute
}
