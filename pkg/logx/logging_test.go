package logx

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"Warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Error("zero value should report IsZero")
	}
	l.Info("must not panic", String("k", "v"))
	l.With(Int("n", 1)).Error("still fine", Err(nil))
}

func TestNopLogger(t *testing.T) {
	l := Nop()
	if l.IsZero() {
		t.Error("Nop() is a real (if silent) logger")
	}
	l.Warn("dropped")
}

func TestFormatAlertJSON(t *testing.T) {
	got := formatAlertJSON([]byte(`{"level":"error","message":"run failed","job":"digest"}`))
	if !strings.HasPrefix(got, "[ERROR] run failed") {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(got, "job=digest") {
		t.Errorf("missing field line in %q", got)
	}

	// time/level/message keys are headers, not field lines
	got = formatAlertJSON([]byte(`{"level":"warn","msg":"x","time":"2025-01-01"}`))
	if strings.Contains(got, "time=") {
		t.Errorf("time leaked into body: %q", got)
	}

	if got := formatAlertJSON([]byte("  plain text line \n")); got != "plain text line" {
		t.Errorf("plain fallback = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("a", 50)
	got := truncate(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("got %q (len %d)", got, len(got))
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) SendAlert(ctx context.Context, target, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, target+"|"+text)
}

func (c *captureSender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestAlertForwarding(t *testing.T) {
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		Alert: AlertConfig{
			Enabled:    true,
			Target:     "ops",
			MinLevel:   "warn",
			RatePerSec: 100,
		},
	})
	defer svc.Close()

	sender := &captureSender{}
	svc.SetAlertSender(sender)

	log.Info("below threshold")
	log.Error("scheduler broke", String("job", "digest"))

	msgs := sender.all()
	if len(msgs) != 1 {
		t.Fatalf("alerts = %d, want 1 (%v)", len(msgs), msgs)
	}
	if !strings.HasPrefix(msgs[0], "ops|[ERROR] scheduler broke") {
		t.Errorf("alert = %q", msgs[0])
	}
}

func TestApplySwapsLevel(t *testing.T) {
	svc, log := New(Config{Level: "warn", Console: false})
	defer svc.Close()

	if log.Enabled(LevelDebug) {
		t.Error("debug enabled at warn level")
	}
	svc.Apply(Config{Level: "debug", Console: false})
	if !log.Enabled(LevelDebug) {
		t.Error("debug still disabled after Apply")
	}
}
