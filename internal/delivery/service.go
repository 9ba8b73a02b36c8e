// Package delivery forwards run results to their targets through an
// async pipeline: bounded queue, worker pool, rate limit and bounded
// retry. The scheduler treats Deliver as fire-and-forget; retry semantics
// live here, not in the engine.
package delivery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"agentcron/pkg/logx"
)

type item struct {
	target   string
	text     string
	enqueued time.Time
}

// Service is the delivery pipeline. It implements the engine's Deliverer
// contract and logx's AlertSender.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	sink Sink

	cfg     Config
	limiter *rate.Limiter

	queue   chan item
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func New(cfg Config, sink Sink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:   make(chan item, cfg.QueueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped || !s.cfg.Enabled {
		return
	}
	s.started = true

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(wctx)
		}()
	}
	s.log.Debug("delivery pipeline started", logx.Int("workers", s.cfg.Workers))
}

// Stop drains nothing: queued items not yet sent are dropped. Callers
// that care should stop the scheduler first so no new results arrive.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Deliver enqueues one result for its target. It returns ErrQueueFull or
// ErrDisabled rather than blocking the execution path.
func (s *Service) Deliver(ctx context.Context, target, text string) error {
	s.mu.Lock()
	enabled := s.cfg.Enabled && s.started && !s.stopped
	s.mu.Unlock()
	if !enabled {
		return ErrDisabled
	}

	select {
	case s.queue <- item{target: target, text: text, enqueued: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SendAlert forwards an operator alert through the same pipeline,
// dropping silently when the queue is full. Never blocks the logging hot
// path.
func (s *Service) SendAlert(ctx context.Context, target, text string) {
	_ = s.Deliver(ctx, target, text)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			s.sendOne(ctx, it)
		}
	}
}

func (s *Service) sendOne(ctx context.Context, it item) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	var err error
	delay := s.cfg.RetryBase
	for attempt := 0; attempt <= s.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.cfg.RetryMaxDelay {
				delay = s.cfg.RetryMaxDelay
			}
		}
		err = s.sink.Send(ctx, it.target, it.text)
		if err == nil {
			return
		}
	}
	s.log.Warn("delivery gave up",
		logx.String("target", it.target),
		logx.Int("attempts", s.cfg.RetryMax+1),
		logx.Err(err))
}
