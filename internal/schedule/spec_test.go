package schedule

import (
	"testing"
	"time"
)

func TestParseVariants(t *testing.T) {
	cases := []struct {
		in      string
		kind    SpecKind
		cron    string
		every   time.Duration
		source  string
		wantErr bool
	}{
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *", source: "cron"},
		{in: "30 */5 * * * *", kind: SpecCron, cron: "30 */5 * * * *", source: "cron"},
		{in: "@hourly", kind: SpecCron, cron: "@hourly", source: "cron"},
		{in: "@every 55m", kind: SpecCron, cron: "@every 55m", source: "cron"},
		{in: "cron: 0 9 * * 1-5", kind: SpecCron, cron: "0 9 * * 1-5", source: "cron"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute, source: "duration"},
		{in: "2h30m", kind: SpecInterval, every: 2*time.Hour + 30*time.Minute, source: "duration"},
		{in: "00:50", kind: SpecInterval, every: 50 * time.Minute, source: "hhmm"},
		{in: "02:30", kind: SpecInterval, every: 2*time.Hour + 30*time.Minute, source: "hhmm"},
		{in: "interval: 00:05", kind: SpecInterval, every: 5 * time.Minute, source: "hhmm"},
		{in: "every: 90s", kind: SpecInterval, every: 90 * time.Second, source: "duration"},
		{in: "  10m  ", kind: SpecInterval, every: 10 * time.Minute, source: "duration"},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "interval:", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "0s", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "01:73", wantErr: true},
		{in: "banana", wantErr: true},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %+v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got.Kind != tc.kind {
			t.Errorf("Parse(%q): kind = %v, want %v", tc.in, got.Kind, tc.kind)
		}
		if got.Cron != tc.cron {
			t.Errorf("Parse(%q): cron = %q, want %q", tc.in, got.Cron, tc.cron)
		}
		if got.Every != tc.every {
			t.Errorf("Parse(%q): every = %v, want %v", tc.in, got.Every, tc.every)
		}
		if got.Source != tc.source {
			t.Errorf("Parse(%q): source = %q, want %q", tc.in, got.Source, tc.source)
		}
	}
}

func TestEvaluatorNext(t *testing.T) {
	e := NewEvaluator()
	now := time.Date(2025, 3, 10, 12, 34, 56, 0, time.UTC)

	next, err := e.Next("*/5 * * * *", "", now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Date(2025, 3, 10, 12, 35, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}

	next, err = e.Next("30m", "", now)
	if err != nil {
		t.Fatalf("Next interval: %v", err)
	}
	if got := next.Sub(now); got != 30*time.Minute {
		t.Errorf("interval Next = now+%v, want now+30m", got)
	}
}

func TestEvaluatorNextTimezone(t *testing.T) {
	e := NewEvaluator()
	// 12:00 UTC is 08:00 EDT, so the daily 09:00 local fire is still ahead
	// on the same day.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	next, err := e.Next("0 9 * * *", "America/New_York", now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	loc, _ := time.LoadLocation("America/New_York")
	want := time.Date(2025, 6, 1, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestEvaluatorLocation(t *testing.T) {
	e := NewEvaluator()
	loc, err := e.Location("")
	if err != nil || loc != time.UTC {
		t.Errorf("Location(\"\") = %v, %v; want UTC, nil", loc, err)
	}
	if _, err := e.Location("Mars/Olympus"); err == nil {
		t.Errorf("Location(invalid): expected error")
	}
}

func TestEvaluatorScheduleInvalid(t *testing.T) {
	e := NewEvaluator()
	if _, err := e.Schedule("61 * * * *"); err == nil {
		t.Errorf("expected error for out-of-range minute field")
	}
	if _, err := e.Schedule("not a schedule at all ok"); err == nil {
		t.Errorf("expected error for garbage cron expression")
	}
}

func TestEvaluatorPreview(t *testing.T) {
	e := NewEvaluator()
	now := time.Date(2025, 3, 10, 12, 0, 30, 0, time.UTC)
	ts := e.Preview("*/10 * * * *", "", now, 3)
	if len(ts) != 3 {
		t.Fatalf("Preview returned %d times, want 3", len(ts))
	}
	for i := 1; i < len(ts); i++ {
		if got := ts[i].Sub(ts[i-1]); got != 10*time.Minute {
			t.Errorf("gap %d = %v, want 10m", i, got)
		}
	}
}
