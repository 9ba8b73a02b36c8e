// Package executor runs agent jobs by spawning an external agent CLI and
// interpreting its output. Ordinary task failures (non-zero exit, bad
// output, timeout) are reported as IsError results, never as returned
// errors, per the engine's executor contract.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"agentcron/internal/job"
	"agentcron/pkg/logx"
)

type Config struct {
	// Command is the agent CLI binary (e.g. "claude"). Required.
	Command string

	// BaseArgs are prepended to every invocation.
	BaseArgs []string

	// Timeout bounds one execution. 0 disables the bound; the engine
	// itself never cancels runs.
	Timeout time.Duration
}

type Runner struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{cfg: cfg, log: log}
}

// resultEnvelope is the JSON document the agent CLI prints on stdout when
// asked for structured output. Plain-text output is accepted as a
// fallback.
type resultEnvelope struct {
	Result   string  `json:"result"`
	CostUSD  float64 `json:"total_cost_usd"`
	NumTurns int     `json:"num_turns"`
	IsError  bool    `json:"is_error"`
}

func (r *Runner) Execute(ctx context.Context, def job.Definition) (job.RunResult, error) {
	started := time.Now()

	prompt, err := r.resolvePrompt(def)
	if err != nil {
		return job.RunResult{Text: err.Error(), IsError: true, Duration: time.Since(started)}, nil
	}

	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := append([]string(nil), r.cfg.BaseArgs...)
	args = append(args, "--output-format", "json")
	if def.Model != "" {
		args = append(args, "--model", def.Model)
	}
	if def.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(def.MaxTurns))
	}
	if def.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", def.SystemPrompt)
	}
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(runCtx, r.cfg.Command, args...)
	if def.WorkDir != "" {
		cmd.Dir = def.WorkDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("spawning agent process",
		logx.String("job", def.ID),
		logx.String("cmd", r.cfg.Command),
		logx.String("workdir", def.WorkDir))

	runErr := cmd.Run()
	dur := time.Since(started)

	if runErr != nil {
		text := strings.TrimSpace(stderr.String())
		if text == "" {
			text = runErr.Error()
		}
		if runCtx.Err() == context.DeadlineExceeded {
			text = "execution timed out after " + r.cfg.Timeout.String() + ": " + text
		}
		return job.RunResult{Text: text, IsError: true, Duration: dur}, nil
	}

	return parseOutput(stdout.Bytes(), dur), nil
}

func (r *Runner) resolvePrompt(def job.Definition) (string, error) {
	if def.PromptFile != "" {
		b, err := os.ReadFile(def.PromptFile)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return def.Prompt, nil
}

// parseOutput decodes the JSON result envelope, falling back to treating
// the whole stdout as plain result text.
func parseOutput(out []byte, dur time.Duration) job.RunResult {
	trimmed := bytes.TrimSpace(out)
	var env resultEnvelope
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &env); err == nil {
			return job.RunResult{
				Text:     env.Result,
				CostUSD:  env.CostUSD,
				NumTurns: env.NumTurns,
				IsError:  env.IsError,
				Duration: dur,
			}
		}
	}
	return job.RunResult{Text: string(trimmed), Duration: dur}
}
