// Package monitor runs the alert rule evaluator on a recurring timer
// and feeds its findings into the store.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentmc/amc/internal/rules"
	"github.com/agentmc/amc/internal/store"
)

// DefaultInterval is how often the rules are evaluated when no
// interval is configured.
const DefaultInterval = 30 * time.Second

// Monitor periodically evaluates alert rules against the store.
type Monitor struct {
	store    *store.Store
	eval     *rules.Evaluator
	interval time.Duration
	logger   *slog.Logger
}

// New creates a monitor. A non-positive interval uses DefaultInterval.
func New(s *store.Store, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:    s,
		eval:     rules.NewEvaluator(),
		interval: interval,
		logger:   logger,
	}
}

// Run evaluates immediately, then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Tick(time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.Tick(now.UTC())
		}
	}
}

// Tick runs a single evaluation pass and raises any findings. Returns
// the number of alerts raised.
func (m *Monitor) Tick(now time.Time) int {
	findings := m.eval.Evaluate(m.store.State(), now)
	for _, f := range findings {
		m.store.AddAlert(f.AgentID, f.Type, f.Message)
		m.logger.Info("alert raised", "agent", f.AgentID, "type", string(f.Type), "message", f.Message)
	}
	return len(findings)
}
