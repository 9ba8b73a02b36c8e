package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentcron/pkg/logx"
)

// ResultTextCap bounds stored result text so one chatty run can't bloat
// the database.
const ResultTextCap = 10000

// RunRecord is one append-only row per completed execution attempt.
// Skipped (overlap-prevented) fires are never recorded. Immutable once
// written.
type RunRecord struct {
	RunID      string
	JobID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DurationMS int64
	CostUSD    float64
	NumTurns   int
	IsError    bool
	ResultText string
}

// AppendRun writes one run record. The result text is capped at
// ResultTextCap characters; a missing run id is assigned.
func (s *Store) AppendRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendRunTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.maybePrune(rec.JobID)
	return nil
}

// RecordRun appends the run record and applies the matching aggregate
// update in one transaction, so both reflect the same execution
// atomically from the caller's point of view.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord, u StateUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendRunTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := upsertStateTx(ctx, tx, rec.JobID, u); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.maybePrune(rec.JobID)
	return nil
}

func appendRunTx(ctx context.Context, tx *sql.Tx, rec RunRecord) error {
	if strings.TrimSpace(rec.RunID) == "" {
		rec.RunID = uuid.NewString()
	}
	text := rec.ResultText
	if len(text) > ResultTextCap {
		text = text[:ResultTextCap]
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_runs(run_id, job_id, started_at, finished_at, duration_ms, cost_usd, num_turns, is_error, result_text)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		rec.RunID, rec.JobID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMS, rec.CostUSD, rec.NumTurns, boolInt(rec.IsError), nullStr(text),
	)
	return err
}

// ListRuns returns jobID's run history, most recent first. Lookup is
// exact-id first; when nothing matches, it falls back to the derived-id
// prefix so dynamic schedules are found by their owning agent's id.
func (s *Store) ListRuns(ctx context.Context, jobID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	recs, err := s.listRunsWhere(ctx, `job_id = ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		return recs, nil
	}
	return s.listRunsWhere(ctx, `job_id LIKE ? || '-%'`, jobID, limit)
}

func (s *Store) listRunsWhere(ctx context.Context, cond, arg string, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, job_id, started_at, finished_at, duration_ms, cost_usd, num_turns, is_error, result_text
		 FROM job_runs WHERE `+cond+` ORDER BY seq DESC LIMIT ?`, arg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished string
		var isErr int
		var text sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.JobID, &started, &finished, &rec.DurationMS, &rec.CostUSD, &rec.NumTurns, &isErr, &text); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			rec.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, finished); err == nil {
			rec.FinishedAt = t
		}
		rec.IsError = isErr != 0
		if text.Valid {
			rec.ResultText = text.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRuns reports how many run records exist for the exact job id.
func (s *Store) CountRuns(ctx context.Context, jobID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_runs WHERE job_id = ?`, jobID).Scan(&n)
	return n, err
}

// maybePrune opportunistically trims old run rows beyond the configured
// history limit. Runs every pruneEvery appends to keep the write path
// cheap.
func (s *Store) maybePrune(jobID string) {
	if s.historyLimit <= 0 {
		return
	}
	if s.opCount.Add(1)%s.pruneEvery != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM job_runs WHERE job_id = ? AND seq NOT IN (
		   SELECT seq FROM job_runs WHERE job_id = ? ORDER BY seq DESC LIMIT ?)`,
		jobID, jobID, s.historyLimit)
	if err != nil {
		s.log.Warn("run history prune failed", logx.String("job", jobID), logx.Err(err))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
