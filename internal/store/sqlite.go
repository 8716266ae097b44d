package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/agentmc/amc/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLitePersister stores state snapshots in SQLite using
// modernc.org/sqlite (pure Go, no CGO). Each save rewrites the
// snapshot tables in one transaction, so the durable copy always
// reflects exactly one mutation boundary.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (or creates) a SQLite database at the given
// path and applies pending migrations.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	p := &SQLitePersister{db: db}
	if err := p.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// migrate runs all embedded SQL migration files in order.
func (p *SQLitePersister) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := p.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := p.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// Load reads the stored snapshot. A database with no thresholds row has
// never been saved to and returns (nil, nil).
func (p *SQLitePersister) Load(ctx context.Context) (*State, error) {
	st := &State{}

	err := p.db.QueryRowContext(ctx,
		`SELECT idle_minutes, long_session_minutes FROM thresholds WHERE id = 1`,
	).Scan(&st.Thresholds.IdleMinutes, &st.Thresholds.LongSessionMinutes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}

	if st.Agents, err = p.loadAgents(ctx); err != nil {
		return nil, err
	}
	if st.Sessions, err = p.loadSessions(ctx); err != nil {
		return nil, err
	}
	if st.Alerts, err = p.loadAlerts(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *SQLitePersister) loadAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, project, directory, status, hourly_rate FROM agents ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		var status string
		if err := rows.Scan(&a.ID, &a.Name, &a.Project, &a.Directory, &status, &a.HourlyRate); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Status = models.AgentStatus(status)
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (p *SQLitePersister) loadSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, agent_id, start_time, end_time, last_activity_at, notes, tasks, token_estimate
		FROM sessions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []models.Session
	for rows.Next() {
		var ses models.Session
		var endTime sql.NullTime
		var notesJSON, tasksJSON string
		if err := rows.Scan(&ses.ID, &ses.AgentID, &ses.StartTime, &endTime,
			&ses.LastActivityAt, &notesJSON, &tasksJSON, &ses.TokenEstimate); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if endTime.Valid {
			t := endTime.Time
			ses.EndTime = &t
		}
		ses.Notes = []string{}
		ses.Tasks = []models.Task{}
		_ = json.Unmarshal([]byte(notesJSON), &ses.Notes)
		_ = json.Unmarshal([]byte(tasksJSON), &ses.Tasks)
		sessions = append(sessions, ses)
	}
	return sessions, rows.Err()
}

func (p *SQLitePersister) loadAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, agent_id, type, message, timestamp, dismissed FROM alerts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []models.Alert
	for rows.Next() {
		var al models.Alert
		var typ string
		if err := rows.Scan(&al.ID, &al.AgentID, &typ, &al.Message, &al.Timestamp, &al.Dismissed); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		al.Type = models.AlertType(typ)
		alerts = append(alerts, al)
	}
	return alerts, rows.Err()
}

// Save rewrites the snapshot tables in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, st State) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"agents", "sessions", "alerts"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, a := range st.Agents {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agents (id, name, project, directory, status, hourly_rate, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.Project, a.Directory, string(a.Status), a.HourlyRate, i)
		if err != nil {
			return fmt.Errorf("save agent: %w", err)
		}
	}

	for i, ses := range st.Sessions {
		notesJSON, _ := json.Marshal(ses.Notes)
		tasksJSON, _ := json.Marshal(ses.Tasks)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, agent_id, start_time, end_time, last_activity_at, notes, tasks, token_estimate, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ses.ID, ses.AgentID, ses.StartTime, ses.EndTime, ses.LastActivityAt,
			string(notesJSON), string(tasksJSON), ses.TokenEstimate, i)
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}

	for i, al := range st.Alerts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO alerts (id, agent_id, type, message, timestamp, dismissed, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			al.ID, al.AgentID, string(al.Type), al.Message, al.Timestamp, boolToInt(al.Dismissed), i)
		if err != nil {
			return fmt.Errorf("save alert: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO thresholds (id, idle_minutes, long_session_minutes) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET idle_minutes=excluded.idle_minutes, long_session_minutes=excluded.long_session_minutes`,
		st.Thresholds.IdleMinutes, st.Thresholds.LongSessionMinutes)
	if err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
