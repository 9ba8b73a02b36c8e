package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// JobState is the per-job aggregate row. Created lazily on first
// scheduling or first run, never deleted automatically.
type JobState struct {
	JobID          string
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	RunCount       int64
	LastError      string
	LastDurationMS int64
	LastCostUSD    float64
}

// StateUpdate is a partial update for a job_state row. Nil fields are left
// untouched; IncrementRuns bumps run_count by one.
type StateUpdate struct {
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	IncrementRuns  bool
	LastError      *string
	LastDurationMS *int64
	LastCostUSD    *float64
}

// UpsertJobState applies a partial update to jobID's aggregate row,
// creating it if missing.
func (s *Store) UpsertJobState(ctx context.Context, jobID string, u StateUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertStateTx(ctx, tx, jobID, u); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertStateTx(ctx context.Context, tx *sql.Tx, jobID string, u StateUpdate) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_state(job_id, updated_at) VALUES(?, ?)
		 ON CONFLICT(job_id) DO NOTHING`, jobID, now)
	if err != nil {
		return err
	}

	set := "updated_at = ?"
	args := []any{now}
	if u.LastRunAt != nil {
		set += ", last_run_at = ?"
		args = append(args, nullTime(u.LastRunAt))
	}
	if u.NextRunAt != nil {
		set += ", next_run_at = ?"
		args = append(args, nullTime(u.NextRunAt))
	}
	if u.IncrementRuns {
		set += ", run_count = run_count + 1"
	}
	if u.LastError != nil {
		set += ", last_error = ?"
		args = append(args, nullStr(*u.LastError))
	}
	if u.LastDurationMS != nil {
		set += ", last_duration_ms = ?"
		args = append(args, *u.LastDurationMS)
	}
	if u.LastCostUSD != nil {
		set += ", last_cost_usd = ?"
		args = append(args, *u.LastCostUSD)
	}
	args = append(args, jobID)

	_, err = tx.ExecContext(ctx, "UPDATE job_state SET "+set+" WHERE job_id = ?", args...)
	return err
}

const stateColumns = `job_id, last_run_at, next_run_at, run_count, last_error, last_duration_ms, last_cost_usd`

func scanState(row interface{ Scan(...any) error }) (JobState, error) {
	var st JobState
	var lastRun, nextRun, lastErr sql.NullString
	err := row.Scan(&st.JobID, &lastRun, &nextRun, &st.RunCount, &lastErr, &st.LastDurationMS, &st.LastCostUSD)
	if err != nil {
		return JobState{}, err
	}
	st.LastRunAt = parseTime(lastRun)
	st.NextRunAt = parseTime(nextRun)
	if lastErr.Valid {
		st.LastError = lastErr.String
	}
	return st, nil
}

// JobState reads jobID's aggregate row. It falls back to a derived-id
// prefix match when no exact row exists, so a job addressed by its owning
// agent's id still resolves.
func (s *Store) JobState(ctx context.Context, jobID string) (JobState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM job_state WHERE job_id = ?`, jobID)
	st, err := scanState(row)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return JobState{}, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM job_state WHERE job_id LIKE ? || '-%' ORDER BY job_id LIMIT 1`, jobID)
	st, err = scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return JobState{}, ErrNotFound
	}
	if err != nil {
		return JobState{}, err
	}
	return st, nil
}

// ListJobStates returns every aggregate row, ordered by job id.
func (s *Store) ListJobStates(ctx context.Context) ([]JobState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM job_state ORDER BY job_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
