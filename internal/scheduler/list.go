package scheduler

import (
	"context"
	"errors"
	"time"

	"agentcron/internal/store"
	"agentcron/pkg/logx"
)

// ListJobs returns the effective merged definitions annotated with live
// (or recomputed) next-run plus last-run and run-count from the store.
// Disabled jobs get an on-demand next-run evaluation instead of none.
func (s *Service) ListJobs(ctx context.Context) []JobStatus {
	s.mu.Lock()
	defs := s.defs
	handles := make(map[string]*handle, len(s.handles))
	for id, h := range s.handles {
		handles[id] = h
	}
	c := s.c
	s.mu.Unlock()

	now := time.Now()
	out := make([]JobStatus, 0, len(defs))
	for _, def := range defs {
		js := JobStatus{Definition: def, Running: s.running.IsRunning(def.ID)}

		if h, ok := handles[def.ID]; ok && c != nil {
			js.NextRun = c.Entry(h.entryID).Next
		}
		if js.NextRun.IsZero() {
			// No live timer (disabled, excluded, or engine stopped):
			// compute on demand rather than omit.
			tz := def.Timezone
			if tz == "" {
				tz = s.cfg.Timezone
			}
			if next, err := s.eval.Next(def.Schedule, tz, now); err == nil {
				js.NextRun = next
			}
		}

		st, err := s.st.JobState(ctx, def.ID)
		if err == nil {
			if st.LastRunAt != nil {
				js.LastRun = *st.LastRunAt
			}
			js.RunCount = st.RunCount
		} else if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("job state read failed", logx.String("job", def.ID), logx.Err(err))
		}

		out = append(out, js)
	}
	return out
}

// RunHistory returns the most recent run records for id (exact id first,
// derived-id prefix fallback), newest first.
func (s *Service) RunHistory(ctx context.Context, id string, limit int) ([]store.RunRecord, error) {
	return s.st.ListRuns(ctx, id, limit)
}
