package delivery

import (
	"context"

	"agentcron/pkg/logx"
)

// LogSink writes results to the structured log. Used for headless
// deployments and as the fallback when no chat backend is configured.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (l *LogSink) Send(ctx context.Context, target, text string) error {
	l.log.Info("result", logx.String("target", target), logx.String("text", text))
	return nil
}
