package scheduler

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"agentcron/internal/job"
)

var (
	// ErrNotFound means no definition with the given id (or derived-id
	// prefix) exists in either source.
	ErrNotFound = errors.New("scheduler: job not found")

	// ErrStopped is returned by manual triggers after Stop().
	ErrStopped = errors.New("scheduler: stopped")
)

// Config controls the engine.
type Config struct {
	// MaxConcurrent bounds simultaneous executions system-wide (default 3).
	MaxConcurrent int

	// Timezone is the fallback IANA zone for jobs that don't set one.
	// Empty means UTC.
	Timezone string

	// StopGrace bounds how long Stop() waits for in-flight executions to
	// finish their persistence before the store handle is closed. In-flight
	// runs are never cancelled; past the grace their writes fail and are
	// logged. Default 5s.
	StopGrace time.Duration
}

// handle binds one enabled definition to one live cron entry. Handles
// exist only while the engine is started; they are rebuilt from the
// sources on every Start()/Reload().
type handle struct {
	def     job.Definition
	entryID cron.EntryID
	sched   cron.Schedule
	loc     *time.Location
}

// JobStatus is a definition annotated with live scheduling state, as
// returned by ListJobs.
type JobStatus struct {
	job.Definition

	NextRun  time.Time
	LastRun  time.Time
	RunCount int64
	Running  bool
}

// RunEvent is the payload published on the event bus for run lifecycle
// events ("run.started", "run.finished", "run.skipped").
type RunEvent struct {
	JobID    string        `json:"job_id"`
	Started  time.Time     `json:"started,omitzero"`
	Duration time.Duration `json:"duration,omitempty"`
	CostUSD  float64       `json:"cost_usd,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
}

// Snapshot is a lightweight diagnostics view for operators.
type Snapshot struct {
	Started       bool
	Jobs          int
	MaxConcurrent int
	SlotsHeld     int
	SlotsWaiting  int
	Running       int
	Entries       []EntryInfo
}

type EntryInfo struct {
	JobID  string
	Source job.Source
	Spec   string
	Next   time.Time
	Prev   time.Time
}
