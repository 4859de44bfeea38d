package taskrecord

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// RunRecord is one persisted run's summary row, keyed by a generated UUID
// so events from concurrent distributed peers never collide.
type RunRecord struct {
	ID         uuid.UUID `db:"id"`
	Duration   float64   `db:"duration"`
	MaxThreads int       `db:"max_threads"`
	NbEvents   int       `db:"nb_events"`
	CreatedAt  time.Time `db:"created_at"`
}

// EventRecord is one persisted event row.
type EventRecord struct {
	ID       uuid.UUID `db:"id"`
	RunID    uuid.UUID `db:"run_id"`
	EventID  int       `db:"event_id"`
	Duration float64   `db:"duration"`
	Start    float64   `db:"start_at"`
	Text     string    `db:"text"`
}

// Repository persists task-timer runs to Postgres alongside the flat-file
// dump, so a longer-lived benchmark history can be queried across many
// engine invocations.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps an already-connected sqlx.DB.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Open connects to Postgres at dsn and wraps the resulting *sqlx.DB.
func Open(dsn string) (*Repository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return NewRepository(db), nil
}

// CreateRun inserts run's summary and every one of its events inside a
// single transaction: a run row with no events (or vice versa) would
// leave the history inconsistent for later queries.
func (r *Repository) CreateRun(ctx context.Context, run Run) (uuid.UUID, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	runID := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO taskrecord_runs (id, duration, max_threads, nb_events, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, runID, run.Global.Duration, run.Global.MaxThreads, len(run.Events))
	if err != nil {
		return uuid.Nil, err
	}

	for _, e := range run.Events {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO taskrecord_events (id, run_id, event_id, duration, start_at, text)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), runID, e.ID, e.Duration, e.Start, e.Text)
		if err != nil {
			return uuid.Nil, err
		}
	}

	return runID, tx.Commit()
}

// GetRun retrieves one run's summary and events by ID.
func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	var summary RunRecord
	if err := r.db.GetContext(ctx, &summary, `SELECT * FROM taskrecord_runs WHERE id = $1`, id); err != nil {
		return Run{}, err
	}

	var events []EventRecord
	if err := r.db.SelectContext(ctx, &events, `SELECT * FROM taskrecord_events WHERE run_id = $1 ORDER BY event_id`, id); err != nil {
		return Run{}, err
	}

	run := Run{Global: Global{Duration: summary.Duration, MaxThreads: summary.MaxThreads, NbEvents: summary.NbEvents}}
	for _, e := range events {
		run.Events = append(run.Events, Event{ID: e.EventID, Duration: e.Duration, Start: e.Start, Text: e.Text})
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := r.db.SelectContext(ctx, &runs, `
		SELECT * FROM taskrecord_runs ORDER BY created_at DESC LIMIT $1
	`, limit)
	return runs, err
}
