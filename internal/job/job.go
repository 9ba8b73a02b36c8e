package job

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Source identifies where a job definition came from. On id collision the
// dynamic source wins entirely (no field-level merge).
type Source string

const (
	SourceStatic  Source = "static"
	SourceDynamic Source = "dynamic"
)

// Definition is the declarative description of a recurring agent task.
// The engine never mutates definitions; prompt, model and tool fields are
// opaque payload passed through to the executor.
type Definition struct {
	ID       string
	Label    string
	Schedule string // cron spec, "@every ...", or interval form
	Timezone string // IANA name; empty means UTC

	// Prompt is either inline text or, when PromptFile is set, read from
	// that path by the executor.
	Prompt     string
	PromptFile string

	Model        string
	MaxTurns     int
	WorkDir      string
	SystemPrompt string

	// Delivery controls.
	DeliverTarget   string
	Announce        bool
	SuppressPattern string // optional regex; matching results skip delivery

	Enabled bool

	Source Source
}

// SuppressRegexp compiles SuppressPattern, returning nil for empty or
// invalid patterns (an invalid pattern must never block delivery).
func (d Definition) SuppressRegexp() *regexp.Regexp {
	p := strings.TrimSpace(d.SuppressPattern)
	if p == "" {
		return nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil
	}
	return re
}

// RunResult is the executor's report for one execution attempt.
// Ordinary task failures are reported with IsError=true, never as a
// returned error; the engine converts a returned error into an error-path
// result with the message as text.
type RunResult struct {
	Text     string
	CostUSD  float64
	Duration time.Duration
	NumTurns int
	IsError  bool

	// Skipped marks a synthetic result for an overlap-prevented fire.
	// Skipped results are never persisted and never delivered.
	Skipped bool
}

// Executor runs one job to completion. It may take arbitrarily long and
// must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, def Definition) (RunResult, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, def Definition) (RunResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, def Definition) (RunResult, error) {
	return f(ctx, def)
}

// Deliverer forwards a run's result text to its target. Failures are
// logged by the engine and never affect job state; retry semantics belong
// to the implementation.
type Deliverer interface {
	Deliver(ctx context.Context, target, text string) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, target, text string) error

func (f DelivererFunc) Deliver(ctx context.Context, target, text string) error {
	return f(ctx, target, text)
}
