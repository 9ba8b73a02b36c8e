package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentcron/internal/job"
	"agentcron/pkg/logx"
)

func TestParseOutputJSON(t *testing.T) {
	out := []byte(`{"result":"three PRs need review","total_cost_usd":0.0734,"num_turns":5,"is_error":false}`)
	res := parseOutput(out, time.Second)
	if res.Text != "three PRs need review" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.CostUSD != 0.0734 {
		t.Errorf("CostUSD = %v", res.CostUSD)
	}
	if res.NumTurns != 5 {
		t.Errorf("NumTurns = %d", res.NumTurns)
	}
	if res.IsError {
		t.Errorf("IsError = true")
	}
	if res.Duration != time.Second {
		t.Errorf("Duration = %v", res.Duration)
	}
}

func TestParseOutputErrorEnvelope(t *testing.T) {
	out := []byte(`{"result":"tool denied","is_error":true}`)
	res := parseOutput(out, 0)
	if !res.IsError {
		t.Errorf("IsError = false, want true")
	}
	if res.Text != "tool denied" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestParseOutputPlainText(t *testing.T) {
	res := parseOutput([]byte("  just some text\n"), 0)
	if res.Text != "just some text" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.IsError {
		t.Errorf("plain text must not be an error")
	}
}

func TestParseOutputMalformedJSON(t *testing.T) {
	// Looks like JSON but isn't: fall back to plain text, not an error.
	res := parseOutput([]byte(`{"result": truncated`), 0)
	if res.IsError {
		t.Errorf("IsError = true, want false")
	}
	if res.Text != `{"result": truncated` {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	r := New(Config{Command: "definitely-not-a-real-binary-4f1a"}, logx.Nop())
	res, err := r.Execute(context.Background(), job.Definition{ID: "j", Prompt: "hi"})
	if err != nil {
		t.Fatalf("spawn failures must be results, got error: %v", err)
	}
	if !res.IsError {
		t.Errorf("IsError = false, want true")
	}
	if res.Text == "" {
		t.Errorf("expected failure text")
	}
}

func TestExecutePromptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	if err := os.WriteFile(path, []byte("summarize everything"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(Config{Command: "unused"}, logx.Nop())
	got, err := r.resolvePrompt(job.Definition{PromptFile: path})
	if err != nil {
		t.Fatalf("resolvePrompt: %v", err)
	}
	if got != "summarize everything" {
		t.Errorf("prompt = %q", got)
	}

	// A missing prompt file is an error-path result from Execute.
	res, err := r.Execute(context.Background(), job.Definition{PromptFile: filepath.Join(dir, "gone.md")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Errorf("missing prompt file: IsError = false, want true")
	}
}
