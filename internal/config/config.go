package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"agentcron/internal/job"
)

// Config is the daemon's file configuration. All durations are Go
// duration strings (e.g. "500ms", "10s", "1m"). Unknown fields are
// rejected so typos surface at startup instead of silently defaulting.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Store     StoreConfig     `json:"store"`
	Dynamic   DynamicConfig   `json:"dynamic,omitempty"`
	Executor  ExecutorConfig  `json:"executor"`
	Delivery  DeliveryConfig  `json:"delivery,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`

	// Jobs is the static definition list. The dynamic source overrides
	// entries sharing an id.
	Jobs []JobConfig `json:"jobs,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console bool           `json:"console"`
	File    FileLogConfig  `json:"file,omitempty"`
	Alert   AlertLogConfig `json:"alert,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type AlertLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Target     string `json:"target,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SchedulerConfig struct {
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	StopGrace     string `json:"stop_grace,omitempty"`
}

type StoreConfig struct {
	Path         string `json:"path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	HistoryLimit int    `json:"history_limit,omitempty"`
}

// DynamicConfig points at the live agent/schedule database. Empty path
// disables the dynamic source (static jobs only).
type DynamicConfig struct {
	Path string `json:"path,omitempty"`
}

type ExecutorConfig struct {
	Command  string   `json:"command"`
	BaseArgs []string `json:"base_args,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
}

type DeliveryConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`

	TelegramToken string `json:"telegram_token,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// JobConfig is one static job definition as written in the config file.
type JobConfig struct {
	ID              string `json:"id"`
	Label           string `json:"label,omitempty"`
	Schedule        string `json:"schedule"`
	Timezone        string `json:"timezone,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
	PromptFile      string `json:"prompt_file,omitempty"`
	Model           string `json:"model,omitempty"`
	MaxTurns        int    `json:"max_turns,omitempty"`
	WorkDir         string `json:"work_dir,omitempty"`
	SystemPrompt    string `json:"system_prompt,omitempty"`
	DeliverTarget   string `json:"deliver_target,omitempty"`
	Announce        *bool  `json:"announce,omitempty"` // default true
	SuppressPattern string `json:"suppress_pattern,omitempty"`
	Disabled        bool   `json:"disabled,omitempty"`
}

// Definition translates a static job entry into the engine's shape.
func (j JobConfig) Definition() job.Definition {
	announce := true
	if j.Announce != nil {
		announce = *j.Announce
	}
	return job.Definition{
		ID:              j.ID,
		Label:           j.Label,
		Schedule:        j.Schedule,
		Timezone:        j.Timezone,
		Prompt:          j.Prompt,
		PromptFile:      j.PromptFile,
		Model:           j.Model,
		MaxTurns:        j.MaxTurns,
		WorkDir:         j.WorkDir,
		SystemPrompt:    j.SystemPrompt,
		DeliverTarget:   j.DeliverTarget,
		Announce:        announce,
		SuppressPattern: j.SuppressPattern,
		Enabled:         !j.Disabled,
		Source:          job.SourceStatic,
	}
}

// StaticJobs converts every static entry.
func (c *Config) StaticJobs() []job.Definition {
	out := make([]job.Definition, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		out = append(out, j.Definition())
	}
	return out
}

// Load reads, decodes and validates the config at path. YAML files are
// coerced to JSON so both formats share the strict decoder.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and well-formedness. Schedule
// expressions are deliberately not validated here: a malformed schedule
// excludes that job at scheduling time, it must not fail the daemon.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	if strings.TrimSpace(c.Executor.Command) == "" {
		return fmt.Errorf("executor.command is required")
	}
	seen := map[string]bool{}
	for i, j := range c.Jobs {
		if strings.TrimSpace(j.ID) == "" {
			return fmt.Errorf("jobs[%d]: id is required", i)
		}
		if seen[j.ID] {
			return fmt.Errorf("jobs[%d]: duplicate id %q", i, j.ID)
		}
		seen[j.ID] = true
		if strings.TrimSpace(j.Schedule) == "" {
			return fmt.Errorf("jobs[%d] (%s): schedule is required", i, j.ID)
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"scheduler.stop_grace", c.Scheduler.StopGrace},
		{"store.busy_timeout", c.Store.BusyTimeout},
		{"executor.timeout", c.Executor.Timeout},
		{"delivery.retry_base", c.Delivery.RetryBase},
		{"delivery.retry_max_delay", c.Delivery.RetryMaxDelay},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
