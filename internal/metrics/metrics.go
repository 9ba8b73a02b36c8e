// Package metrics exposes Prometheus instrumentation for the engine.
// Counters are fed from the event bus so the scheduler stays decoupled
// from the metrics registry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentcron/internal/engine"
	"agentcron/internal/eventbus"
	"agentcron/internal/scheduler"
	"agentcron/pkg/logx"
)

var (
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcron_runs_started_total",
			Help: "The total number of job executions started.",
		},
		[]string{"job"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcron_runs_completed_total",
			Help: "The total number of job executions completed, by result.",
		},
		[]string{"job", "result"},
	)

	RunsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcron_runs_skipped_total",
			Help: "The total number of timer fires skipped because the job was already running.",
		},
		[]string{"job"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcron_run_duration_seconds",
			Help:    "A histogram of job execution duration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"job"},
	)

	RunCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcron_run_cost_usd_total",
			Help: "Cumulative execution cost in USD.",
		},
		[]string{"job"},
	)
)

// RegisterSlotGauges wires live gauges over the concurrency slot pool.
func RegisterSlotGauges(slots *engine.Slots) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "agentcron_slots_held",
		Help: "Concurrency slots currently occupied.",
	}, func() float64 { return float64(slots.Held()) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "agentcron_slots_waiting",
		Help: "Executions queued for a concurrency slot.",
	}, func() float64 { return float64(slots.Waiting()) })
}

// Observe consumes run lifecycle events from the bus until ctx is done.
func Observe(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(64)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				re, ok := e.Data.(scheduler.RunEvent)
				if !ok {
					continue
				}
				switch e.Type {
				case "run.started":
					RunsStarted.WithLabelValues(re.JobID).Inc()
				case "run.skipped":
					RunsSkipped.WithLabelValues(re.JobID).Inc()
				case "run.finished":
					result := "ok"
					if re.IsError {
						result = "error"
					}
					RunsCompleted.WithLabelValues(re.JobID, result).Inc()
					RunDuration.WithLabelValues(re.JobID).Observe(re.Duration.Seconds())
					if re.CostUSD > 0 {
						RunCost.WithLabelValues(re.JobID).Add(re.CostUSD)
					}
				}
			}
		}
	}()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics listener failed", logx.Err(err))
		}
	}()
}
