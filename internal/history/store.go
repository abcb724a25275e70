package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome classifies how a series run ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeTerminated  Outcome = "terminated"
	OutcomeFailed      Outcome = "failed"
	OutcomeSetupFailed Outcome = "setup_failed"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one ledger row.
type Run struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Key        string    `json:"series_key"`
	Pipeline   string    `json:"pipeline"`
	Outcome    Outcome   `json:"outcome"`
	Items      int       `json:"items"`
	Failures   int       `json:"failures"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Terminated bool      `json:"terminated"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the series was open.
func (r Run) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts a run and returns its row id.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO series_runs (
            run_id, series_key, pipeline, outcome, items, failures,
            started_at, finished_at, terminated, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Key,
		run.Pipeline,
		string(run.Outcome),
		run.Items,
		run.Failures,
		nullableTime(run.StartedAt),
		run.FinishedAt.UTC().Format(timeLayout),
		boolToInt(run.Terminated),
		nullableString(run.Error),
	)
	if err != nil {
		return 0, fmt.Errorf("insert series run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// List returns the most recent runs, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, run_id, series_key, pipeline, outcome, items, failures,
            started_at, finished_at, terminated, error_message
        FROM series_runs ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// ListKey returns every run recorded for one series key, oldest first.
func (s *Store) ListKey(ctx context.Context, key string) ([]Run, error) {
	return s.query(ctx, `SELECT id, run_id, series_key, pipeline, outcome, items, failures,
            started_at, finished_at, terminated, error_message
        FROM series_runs WHERE series_key = ? ORDER BY finished_at ASC, id ASC`, key)
}

// Counts returns the number of runs per outcome.
func (s *Store) Counts(ctx context.Context) (map[Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT outcome, COUNT(1) FROM series_runs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("count series runs: %w", err)
	}
	defer rows.Close()
	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query series runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			outcome    string
			started    sql.NullString
			finished   string
			terminated int
			errMsg     sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.RunID, &run.Key, &run.Pipeline, &outcome, &run.Items, &run.Failures,
			&started, &finished, &terminated, &errMsg); err != nil {
			return nil, fmt.Errorf("scan series run: %w", err)
		}
		run.Outcome = Outcome(outcome)
		run.Terminated = terminated != 0
		run.Error = errMsg.String
		if started.Valid {
			run.StartedAt = parseTime(started.String)
		}
		run.FinishedAt = parseTime(finished)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series runs: %w", err)
	}
	return runs, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
