package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentcron/internal/engine"
	"agentcron/internal/eventbus"
	"agentcron/internal/job"
	"agentcron/internal/schedule"
	"agentcron/internal/source"
	"agentcron/internal/store"
	"agentcron/pkg/logx"
)

// Service is the scheduled job execution engine: it owns the effective
// job set, drives one timer per enabled job, serializes executions per
// job, bounds total concurrency, persists run history and next-fire
// times, and hands results to the delivery collaborator.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	eval    *schedule.Evaluator
	st      *store.Store
	exec    job.Executor
	deliver job.Deliverer

	static []job.Definition
	dyn    source.Reader

	slots   *engine.Slots
	running *engine.RunningSet

	c       *cron.Cron // nil while stopped
	handles map[string]*handle
	defs    []job.Definition // current effective set

	stopped  bool
	inflight sync.WaitGroup
}

func New(cfg Config, st *store.Store, exec job.Executor, deliver job.Deliverer,
	static []job.Definition, dyn source.Reader, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = engine.DefaultSlotLimit
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	return &Service{
		log:     log,
		cfg:     cfg,
		bus:     bus,
		eval:    schedule.NewEvaluator(),
		st:      st,
		exec:    exec,
		deliver: deliver,
		static:  static,
		dyn:     dyn,
		slots:   engine.NewSlots(cfg.MaxConcurrent),
		running: engine.NewRunningSet(),
		handles: map[string]*handle{},
	}
}

// Start merges the sources and creates one timer per enabled job.
// Definitions with malformed schedules or timezones are logged and
// excluded; they never fail the engine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.c != nil {
		return nil
	}
	s.startLocked(ctx)
	return nil
}

func (s *Service) startLocked(ctx context.Context) {
	merged := source.Merge(ctx, s.static, s.dyn, s.log)
	s.defs = merged

	s.c = cron.New(cron.WithParser(s.eval.Parser()), cron.WithLocation(time.UTC))

	registered := 0
	for _, def := range merged {
		if !def.Enabled {
			continue
		}
		if _, dup := s.handles[def.ID]; dup {
			// Already bound (collision avoidance, not double-scheduling).
			continue
		}
		h, err := s.bindLocked(def)
		if err != nil {
			s.log.Warn("job excluded from schedule",
				logx.String("job", def.ID), logx.String("spec", def.Schedule), logx.Err(err))
			continue
		}
		s.handles[def.ID] = h
		registered++

		// Persist the freshly computed next-run so restarts and listings
		// see it even before the first fire.
		next := h.sched.Next(time.Now().In(h.loc))
		if err := s.st.UpsertJobState(ctx, def.ID, store.StateUpdate{NextRunAt: &next}); err != nil {
			s.log.Warn("next-run persist failed", logx.String("job", def.ID), logx.Err(err))
		}
	}

	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("jobs", registered),
		logx.Int("max_concurrent", s.cfg.MaxConcurrent))
}

// bindLocked compiles def's schedule and registers the cron entry.
func (s *Service) bindLocked(def job.Definition) (*handle, error) {
	tz := def.Timezone
	if tz == "" {
		tz = s.cfg.Timezone
	}
	loc, err := s.eval.Location(tz)
	if err != nil {
		return nil, err
	}
	sched, err := s.eval.Schedule(def.Schedule)
	if err != nil {
		return nil, err
	}

	zoned := tzSchedule{inner: sched, loc: loc}
	local := def
	eid := s.c.Schedule(zoned, cron.FuncJob(func() {
		// cron runs each fire on its own goroutine; overlap prevention
		// happens inside Execute.
		_, _ = s.Execute(context.Background(), local)
	}))

	return &handle{def: def, entryID: eid, sched: zoned, loc: loc}, nil
}

// Apply replaces the engine's configuration and static job set. The slot
// limit resizes immediately; the job set and timezone fallback take
// effect on the next Start or Reload.
func (s *Service) Apply(cfg Config, static []job.Definition) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = engine.DefaultSlotLimit
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	s.mu.Lock()
	s.cfg = cfg
	s.static = static
	s.mu.Unlock()
	s.slots.SetLimit(cfg.MaxConcurrent)
}

// Reload tears down every timer and repeats the merge. Call after
// out-of-band edits to the dynamic source.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.c == nil {
		s.mu.Unlock()
		return nil
	}
	s.log.Info("reload requested")
	c := s.c
	s.c = nil
	s.handles = map[string]*handle{}
	s.mu.Unlock()

	// The stop context completes only after every cron-fired run returns,
	// and in-flight runs take s.mu on their persist path. Waiting with the
	// lock held would deadlock against them.
	<-c.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.c != nil {
		// A concurrent Start won the race while we were draining.
		return nil
	}
	s.startLocked(ctx)
	return nil
}

// Stop halts future firings and closes the store. In-flight executions
// are not cancelled; Stop waits up to the configured grace for their
// persistence to finish, then closes the handle regardless.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	c := s.c
	s.c = nil
	s.handles = map[string]*handle{}
	grace := s.cfg.StopGrace
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.log.Warn("stopping with executions still in flight", logx.Duration("grace", grace))
	case <-ctx.Done():
	}

	if err := s.st.Close(); err != nil {
		s.log.Warn("store close failed", logx.Err(err))
	}
	s.log.Info("scheduler stopped")
}

// Snapshot returns a diagnostics view of the live engine.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Started:       s.c != nil,
		Jobs:          len(s.handles),
		MaxConcurrent: s.slots.Limit(),
		SlotsHeld:     s.slots.Held(),
		SlotsWaiting:  s.slots.Waiting(),
		Running:       s.running.Len(),
	}
	if s.c == nil {
		return snap
	}
	for id, h := range s.handles {
		e := s.c.Entry(h.entryID)
		snap.Entries = append(snap.Entries, EntryInfo{
			JobID:  id,
			Source: h.def.Source,
			Spec:   h.def.Schedule,
			Next:   e.Next,
			Prev:   e.Prev,
		})
	}
	return snap
}

// Slots exposes the slot manager for metrics gauges.
func (s *Service) Slots() *engine.Slots { return s.slots }

// tzSchedule evaluates the wrapped schedule in the job's own location.
// The cron runner passes its own clock; converting here gives per-job
// timezones with a single cron instance.
type tzSchedule struct {
	inner cron.Schedule
	loc   *time.Location
}

func (z tzSchedule) Next(t time.Time) time.Time {
	return z.inner.Next(t.In(z.loc))
}
