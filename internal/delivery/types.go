package delivery

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("delivery disabled")
	ErrQueueFull = errors.New("delivery queue full")
	ErrStopped   = errors.New("delivery stopped")
)

// Config controls the async delivery pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	return c
}

// Sink sends one message to one target. Implementations are synchronous;
// retry and rate limiting live in the pipeline.
type Sink interface {
	Send(ctx context.Context, target, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, target, text string) error

func (f SinkFunc) Send(ctx context.Context, target, text string) error {
	return f(ctx, target, text)
}
