package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"agentcron/internal/config"
	"agentcron/internal/delivery"
	"agentcron/internal/eventbus"
	"agentcron/internal/executor"
	"agentcron/internal/job"
	"agentcron/internal/metrics"
	"agentcron/internal/scheduler"
	"agentcron/internal/source"
	"agentcron/internal/store"
	"agentcron/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./agentcron.yaml", "path to config file (yaml or json)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Alert.Enabled,
			Target:     cfg.Logging.Alert.Target,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerSec: cfg.Logging.Alert.RatePerSec,
		},
	})
	defer logSvc.Close()

	busyTimeout, _ := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	st, err := store.Open(store.Config{
		Path:         cfg.Store.Path,
		BusyTimeout:  busyTimeout,
		HistoryLimit: cfg.Store.HistoryLimit,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var dyn source.Reader
	if cfg.Dynamic.Path != "" {
		dbr, err := source.OpenDB(cfg.Dynamic.Path)
		if err != nil {
			// Degrade to static-only rather than refusing to start.
			log.Warn("dynamic source unavailable", logx.String("path", cfg.Dynamic.Path), logx.Err(err))
		} else {
			defer dbr.Close()
			dyn = dbr
		}
	}

	execTimeout, _ := config.ParseDurationField("executor.timeout", cfg.Executor.Timeout)
	runner := executor.New(executor.Config{
		Command:  cfg.Executor.Command,
		BaseArgs: cfg.Executor.BaseArgs,
		Timeout:  execTimeout,
	}, log.With(logx.String("comp", "executor")))

	var sink delivery.Sink
	if cfg.Delivery.TelegramToken != "" {
		tg, err := delivery.NewTelegramSink(delivery.TelegramConfig{Token: cfg.Delivery.TelegramToken})
		if err != nil {
			return fmt.Errorf("telegram sink: %w", err)
		}
		sink = tg
	} else {
		sink = delivery.NewLogSink(log.With(logx.String("comp", "delivery")))
	}
	retryBase, _ := config.ParseDurationField("delivery.retry_base", cfg.Delivery.RetryBase)
	retryMaxDelay, _ := config.ParseDurationField("delivery.retry_max_delay", cfg.Delivery.RetryMaxDelay)
	pipe := delivery.New(delivery.Config{
		Enabled:       cfg.Delivery.Enabled,
		Workers:       cfg.Delivery.Workers,
		QueueSize:     cfg.Delivery.QueueSize,
		RatePerSec:    cfg.Delivery.RatePerSec,
		RetryMax:      cfg.Delivery.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}, sink, log.With(logx.String("comp", "delivery")))
	pipe.Start(ctx)
	defer pipe.Stop(context.Background())
	logSvc.SetAlertSender(pipe)

	var deliverer job.Deliverer
	if cfg.Delivery.Enabled {
		deliverer = pipe
	}

	bus := eventbus.New()
	stopGrace, _ := config.ParseDurationField("scheduler.stop_grace", cfg.Scheduler.StopGrace)
	sched := scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		Timezone:      cfg.Scheduler.Timezone,
		StopGrace:     stopGrace,
	}, st, runner, deliverer, cfg.StaticJobs(), dyn, bus, log.With(logx.String("comp", "scheduler")))

	if cfg.Metrics.Enabled {
		addr := cfg.Metrics.Addr
		if addr == "" {
			addr = ":9290"
		}
		metrics.RegisterSlotGauges(sched.Slots())
		metrics.Observe(ctx, bus)
		metrics.Serve(ctx, addr, log.With(logx.String("comp", "metrics")))
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	// Config edits reschedule everything: logging knobs apply in place,
	// job/scheduler changes land via Apply before the reload rebuilds the
	// timers.
	err = config.Watch(ctx, cfgPath, log.With(logx.String("comp", "config")), func(next *config.Config) {
		logSvc.Apply(logx.Config{
			Level:   next.Logging.Level,
			Console: next.Logging.Console,
			File: logx.FileConfig{
				Enabled: next.Logging.File.Enabled,
				Path:    next.Logging.File.Path,
			},
			Alert: logx.AlertConfig{
				Enabled:    next.Logging.Alert.Enabled,
				Target:     next.Logging.Alert.Target,
				MinLevel:   next.Logging.Alert.MinLevel,
				RatePerSec: next.Logging.Alert.RatePerSec,
			},
		})
		grace, _ := config.ParseDurationField("scheduler.stop_grace", next.Scheduler.StopGrace)
		sched.Apply(scheduler.Config{
			MaxConcurrent: next.Scheduler.MaxConcurrent,
			Timezone:      next.Scheduler.Timezone,
			StopGrace:     grace,
		}, next.StaticJobs())
		if err := sched.Reload(context.Background()); err != nil {
			log.Warn("reload failed", logx.Err(err))
		}
	})
	if err != nil {
		log.Warn("config watch disabled", logx.Err(err))
	}

	// Signal readiness when running under systemd; a no-op elsewhere.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	sched.Stop(stopCtx)
	return nil
}
