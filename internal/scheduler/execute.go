package scheduler

import (
	"context"
	"time"
	"unicode/utf8"

	"agentcron/internal/eventbus"
	"agentcron/internal/job"
	"agentcron/internal/source"
	"agentcron/internal/store"
	"agentcron/pkg/logx"
)

// Execute runs one job through the full execution path: overlap check,
// slot acquisition, executor invocation, durable persistence, next-run
// update and delivery. It is invoked by timer fires and by RunNow.
//
// A fire that finds the job already running returns a synthetic skipped
// result; nothing is persisted and no counters move.
func (s *Service) Execute(ctx context.Context, def job.Definition) (job.RunResult, error) {
	// Synchronous check-and-set before any suspension point: this is the
	// overlap-prevention invariant.
	if !s.running.TryAcquire(def.ID) {
		s.log.Debug("fire skipped, previous run still in flight", logx.String("job", def.ID))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "run.skipped", Data: RunEvent{JobID: def.ID}})
		}
		return job.RunResult{Skipped: true}, nil
	}
	defer s.running.Release(def.ID)

	s.inflight.Add(1)
	defer s.inflight.Done()

	if err := s.slots.Acquire(ctx); err != nil {
		return job.RunResult{}, err
	}
	defer s.slots.Release()

	started := time.Now()
	s.log.Debug("run started", logx.String("job", def.ID))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "run.started", Data: RunEvent{JobID: def.ID, Started: started}})
	}

	res, err := s.exec.Execute(ctx, def)
	if err != nil {
		// A thrown executor error is an error-path result, not a crash.
		res = job.RunResult{Text: err.Error(), IsError: true}
	}
	finished := time.Now()
	if res.Duration <= 0 {
		res.Duration = finished.Sub(started)
	}

	s.persistRun(def, started, finished, res)
	s.deliverResult(def, res)

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "run.finished", Data: RunEvent{
			JobID:    def.ID,
			Started:  started,
			Duration: res.Duration,
			CostUSD:  res.CostUSD,
			IsError:  res.IsError,
		}})
	}

	if res.IsError {
		s.log.Warn("run failed", logx.String("job", def.ID), logx.Duration("dur", res.Duration))
	} else {
		s.log.Info("run completed",
			logx.String("job", def.ID),
			logx.Duration("dur", res.Duration),
			logx.Float64("cost_usd", res.CostUSD),
			logx.Int("turns", res.NumTurns))
	}
	return res, nil
}

// persistRun writes the run record and the matching aggregate update in
// one transaction, then records the recomputed next fire time.
func (s *Service) persistRun(def job.Definition, started, finished time.Time, res job.RunResult) {
	durMS := res.Duration.Milliseconds()
	lastErr := ""
	if res.IsError {
		lastErr = truncateRunes(res.Text, 500)
	}

	upd := store.StateUpdate{
		LastRunAt:      &started,
		IncrementRuns:  true,
		LastError:      &lastErr,
		LastDurationMS: &durMS,
		LastCostUSD:    &res.CostUSD,
	}
	if next, ok := s.nextFire(def.ID, finished); ok {
		upd.NextRunAt = &next
	}

	rec := store.RunRecord{
		JobID:      def.ID,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMS: durMS,
		CostUSD:    res.CostUSD,
		NumTurns:   res.NumTurns,
		IsError:    res.IsError,
		ResultText: res.Text,
	}
	if err := s.st.RecordRun(context.Background(), rec, upd); err != nil {
		s.log.Error("run record persist failed", logx.String("job", def.ID), logx.Err(err))
	}
}

// truncateRunes caps s at max bytes without splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// nextFire reads the live timer's next fire time, falling back to an
// on-demand evaluation for jobs without a live handle.
func (s *Service) nextFire(id string, after time.Time) (time.Time, bool) {
	s.mu.Lock()
	h, ok := s.handles[id]
	c := s.c
	s.mu.Unlock()

	if ok && c != nil {
		if e := c.Entry(h.entryID); !e.Next.IsZero() {
			return e.Next, true
		}
		next := h.sched.Next(after.In(h.loc))
		return next, !next.IsZero()
	}
	return time.Time{}, false
}

// deliverResult forwards the result text unless delivery is disabled or
// suppressed. Delivery failures are logged and never affect job state.
func (s *Service) deliverResult(def job.Definition, res job.RunResult) {
	if s.deliver == nil || !def.Announce || def.DeliverTarget == "" {
		return
	}
	if re := def.SuppressRegexp(); re != nil && re.MatchString(res.Text) {
		s.log.Debug("delivery suppressed by pattern", logx.String("job", def.ID))
		return
	}
	if err := s.deliver.Deliver(context.Background(), def.DeliverTarget, res.Text); err != nil {
		s.log.Warn("delivery failed",
			logx.String("job", def.ID),
			logx.String("target", def.DeliverTarget),
			logx.Err(err))
	}
}

// RunNow triggers one execution immediately, bypassing the timer but
// still subject to overlap and concurrency rules. The id resolves
// exact-first, then by derived-id prefix; unknown ids return ErrNotFound
// without touching the store.
func (s *Service) RunNow(ctx context.Context, id string) (job.RunResult, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return job.RunResult{}, ErrStopped
	}
	defs := s.defs
	static := s.static
	dyn := s.dyn
	s.mu.Unlock()

	def, ok := source.Resolve(defs, id)
	if !ok {
		// The dynamic source may have gained the job since the last
		// reload; check both sources once more before giving up.
		fresh := source.Merge(ctx, static, dyn, s.log)
		if def, ok = source.Resolve(fresh, id); !ok {
			return job.RunResult{}, ErrNotFound
		}
	}
	return s.Execute(ctx, def)
}
