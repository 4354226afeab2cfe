package analytics

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS run_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	task_hash    TEXT NOT NULL,
	mode         TEXT NOT NULL,
	final_score  REAL NOT NULL,
	iterations   INTEGER NOT NULL,
	used_chunks  INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_log_task ON run_log(task_hash);
`

// #endregion schema

// #region run-record
// RunRecord is a single row for run_log.
type RunRecord struct {
	RunID      string
	TaskHash   string
	Mode       string
	FinalScore float64
	Iterations int
	UsedChunks bool
	Duration   time.Duration
	CreatedAt  time.Time
}

// #endregion run-record

// #region tracker
// Tracker persists per-run usage rows. Callers treat it as best-effort:
// write failures are logged by the caller and never fail a run.
type Tracker struct {
	db *sql.DB
}

// NewTracker initializes the run_log table on an open database handle.
func NewTracker(db *sql.DB) (*Tracker, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate run_log: %w", err)
	}
	return &Tracker{db: db}, nil
}

// #endregion tracker

// #region record-run
// RecordRun persists one completed run.
func (t *Tracker) RecordRun(rec RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	used := 0
	if rec.UsedChunks {
		used = 1
	}
	_, err := t.db.Exec(
		`INSERT INTO run_log (run_id, task_hash, mode, final_score, iterations, used_chunks, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.TaskHash,
		rec.Mode,
		rec.FinalScore,
		rec.Iterations,
		used,
		rec.Duration.Milliseconds(),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// #endregion record-run

// #region summary
// Summary aggregates recent run statistics.
type Summary struct {
	Runs          int
	AvgScore      float64
	AvgIterations float64
}

// Summarize reports aggregate stats over the most recent limit runs.
func (t *Tracker) Summarize(limit int) (Summary, error) {
	row := t.db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(final_score), 0), COALESCE(AVG(iterations), 0)
		 FROM (SELECT final_score, iterations FROM run_log ORDER BY id DESC LIMIT ?)`, limit)
	var s Summary
	if err := row.Scan(&s.Runs, &s.AvgScore, &s.AvgIterations); err != nil {
		return Summary{}, fmt.Errorf("summarize runs: %w", err)
	}
	return s, nil
}

// #endregion summary
