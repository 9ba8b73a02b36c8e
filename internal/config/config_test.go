package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agentcron/internal/job"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
logging:
  level: debug
  console: true
store:
  path: /tmp/agentcron/state.db
  history_limit: 200
scheduler:
  max_concurrent: 2
  timezone: Europe/Berlin
executor:
  command: claude
  timeout: 15m
delivery:
  enabled: true
  rate_per_sec: 1
jobs:
  - id: digest
    schedule: "0 9 * * 1-5"
    prompt: "summarize overnight alerts"
    deliver_target: "12345"
  - id: heartbeat
    schedule: "5m"
    prompt: "ping"
    announce: false
    disabled: true
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.MaxConcurrent != 2 {
		t.Errorf("scheduler.max_concurrent = %d", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Store.HistoryLimit != 200 {
		t.Errorf("store.history_limit = %d", cfg.Store.HistoryLimit)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("jobs = %d", len(cfg.Jobs))
	}

	defs := cfg.StaticJobs()
	if defs[0].ID != "digest" || !defs[0].Announce || !defs[0].Enabled {
		t.Errorf("digest definition = %+v", defs[0])
	}
	if defs[0].Source != job.SourceStatic {
		t.Errorf("digest source = %q", defs[0].Source)
	}
	if defs[1].Announce || defs[1].Enabled {
		t.Errorf("heartbeat definition = %+v", defs[1])
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"store": {"path": "/tmp/x.db"},
		"executor": {"command": "claude"},
		"jobs": [{"id": "a", "schedule": "1h"}]
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jobs[0].ID != "a" {
		t.Errorf("jobs[0].id = %q", cfg.Jobs[0].ID)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
store:
  path: /tmp/x.db
executor:
  command: claude
sheduler:
  max_concurrent: 2
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for misspelled top-level key")
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing store path",
			body: `{"executor": {"command": "claude"}}`,
			want: "store.path",
		},
		{
			name: "missing executor command",
			body: `{"store": {"path": "/tmp/x.db"}}`,
			want: "executor.command",
		},
		{
			name: "duplicate job id",
			body: `{"store": {"path": "/tmp/x.db"}, "executor": {"command": "c"},
				"jobs": [{"id": "a", "schedule": "1h"}, {"id": "a", "schedule": "2h"}]}`,
			want: "duplicate id",
		},
		{
			name: "missing schedule",
			body: `{"store": {"path": "/tmp/x.db"}, "executor": {"command": "c"},
				"jobs": [{"id": "a"}]}`,
			want: "schedule is required",
		},
		{
			name: "bad duration",
			body: `{"store": {"path": "/tmp/x.db"}, "executor": {"command": "c", "timeout": "soon"}}`,
			want: "executor.timeout",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "config.json", tc.body)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestValidateAcceptsMalformedSchedule(t *testing.T) {
	// Schedule expressions are checked at scheduling time, not here; a bad
	// one must not take the daemon down.
	path := writeConfig(t, "config.json",
		`{"store": {"path": "/tmp/x.db"}, "executor": {"command": "c"},
		  "jobs": [{"id": "a", "schedule": "61 99 * * *"}]}`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Errorf("empty: %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Error("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "five minutes"); err == nil {
		t.Error("garbage duration accepted")
	}
}
