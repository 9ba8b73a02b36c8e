package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Evaluator answers "when does this schedule next fire?" for a given
// expression, timezone and reference instant. It is stateless and safe for
// concurrent use.
type Evaluator struct {
	parser cron.Parser
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Parser exposes the underlying cron parser so the scheduler can register
// entries with the exact same grammar used for evaluation.
func (e *Evaluator) Parser() cron.Parser { return e.parser }

// Location resolves an IANA timezone name. Empty means UTC; an invalid
// name is an error (the caller decides whether to exclude the job).
func (e *Evaluator) Location(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Schedule compiles a schedule expression into a cron.Schedule. Interval
// forms become constant-delay schedules; cron forms are parsed with the
// evaluator's grammar.
func (e *Evaluator) Schedule(expr string) (cron.Schedule, error) {
	ps, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	switch ps.Kind {
	case SpecInterval:
		return cron.Every(ps.Every), nil
	default:
		sched, err := e.parser.Parse(ps.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", ps.Cron, err)
		}
		return sched, nil
	}
}

// Next returns the next fire instant strictly after now for the given
// expression and timezone.
func (e *Evaluator) Next(expr, tz string, now time.Time) (time.Time, error) {
	loc, err := e.Location(tz)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := e.Schedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule %q never fires", expr)
	}
	return next, nil
}

// Preview returns up to n upcoming fire times, for diagnostics.
func (e *Evaluator) Preview(expr, tz string, now time.Time, n int) []time.Time {
	loc, err := e.Location(tz)
	if err != nil {
		return nil
	}
	sched, err := e.Schedule(expr)
	if err != nil {
		return nil
	}
	out := make([]time.Time, 0, n)
	t := now.In(loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
