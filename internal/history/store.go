// Package history records finished runs and their job results in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// Run is one recorded execution
type Run struct {
	ID              string
	Trigger         string // "manual" or the schedule name
	Input           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Interrupted     bool
	Total           int
	Completed       int
	Failed          int
	Skipped         int
	InterruptedJobs int
	CleanupFailures int
}

// Duration is the wall time of the run
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRun fills the counters of a Run from results
func NewRun(id, trigger, input string, started, finished time.Time, interrupted bool, results []domain.JobResult) Run {
	run := Run{
		ID:          id,
		Trigger:     trigger,
		Input:       input,
		StartedAt:   started,
		FinishedAt:  finished,
		Interrupted: interrupted,
		Total:       len(results),
	}
	for _, r := range results {
		switch r.Status {
		case domain.StatusCompleted:
			run.Completed++
		case domain.StatusFailed:
			run.Failed++
		case domain.StatusSkipped:
			run.Skipped++
		case domain.StatusInterrupted:
			run.InterruptedJobs++
		}
	}
	return run
}

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New opens (and creates) the history database at dbPath
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a run and its job results in one transaction
func (s *Store) RecordRun(run Run, results []domain.JobResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, triggered_by, input, started_at, finished_at, interrupted, total, completed, failed, skipped, interrupted_jobs, cleanup_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Trigger,
		run.Input,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Interrupted,
		run.Total,
		run.Completed,
		run.Failed,
		run.Skipped,
		run.InterruptedJobs,
		run.CleanupFailures,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, r := range results {
		_, err := tx.Exec(`
			INSERT INTO job_results (run_id, job_id, priority, title, status, pr_number, attempts, elapsed_ms, detail, session_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			r.ID,
			string(r.Priority),
			r.Title,
			string(r.Status),
			r.PRNumber,
			r.Attempts,
			r.Elapsed.Milliseconds(),
			r.Detail,
			r.SessionID,
		)
		if err != nil {
			return fmt.Errorf("inserting result #%d: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `SELECT id, triggered_by, input, started_at, finished_at, interrupted, total, completed, failed, skipped, interrupted_jobs, cleanup_failures
		FROM runs ORDER BY started_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var input sql.NullString
		err := rows.Scan(&run.ID, &run.Trigger, &input, &run.StartedAt, &run.FinishedAt, &run.Interrupted,
			&run.Total, &run.Completed, &run.Failed, &run.Skipped, &run.InterruptedJobs, &run.CleanupFailures)
		if err != nil {
			return nil, err
		}
		run.Input = input.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// JobResults returns the results recorded for runID, ascending by job id
func (s *Store) JobResults(runID string) ([]domain.JobResult, error) {
	rows, err := s.db.Query(`
		SELECT job_id, priority, title, status, pr_number, attempts, elapsed_ms, detail, session_id
		FROM job_results WHERE run_id = ? ORDER BY job_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.JobResult
	for rows.Next() {
		var r domain.JobResult
		var priority, status string
		var title, detail, session sql.NullString
		var elapsedMS int64
		if err := rows.Scan(&r.ID, &priority, &title, &status, &r.PRNumber, &r.Attempts, &elapsedMS, &detail, &session); err != nil {
			return nil, err
		}
		r.Priority = domain.Priority(priority)
		r.Status = domain.JobStatus(status)
		r.Title = title.String
		r.Detail = detail.String
		r.SessionID = session.String
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}

// JobHistory returns every recorded result of one job, newest run first
func (s *Store) JobHistory(jobID int) ([]domain.JobResult, error) {
	rows, err := s.db.Query(`
		SELECT j.status, j.pr_number, j.attempts, j.elapsed_ms, j.detail
		FROM job_results j JOIN runs r ON r.id = j.run_id
		WHERE j.job_id = ? ORDER BY r.started_at DESC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.JobResult
	for rows.Next() {
		r := domain.JobResult{ID: jobID}
		var status string
		var detail sql.NullString
		var elapsedMS int64
		if err := rows.Scan(&status, &r.PRNumber, &r.Attempts, &elapsedMS, &detail); err != nil {
			return nil, err
		}
		r.Status = domain.JobStatus(status)
		r.Detail = detail.String
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}
