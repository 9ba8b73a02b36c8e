package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"agentcron/internal/eventbus"
	"agentcron/internal/scheduler"
)

func TestObserveCountsRunEvents(t *testing.T) {
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	Observe(ctx, bus)

	// Observe subscribes before returning, so publishing immediately is safe.
	bus.Publish(eventbus.Event{Type: "run.started", Data: scheduler.RunEvent{JobID: "m1"}})
	bus.Publish(eventbus.Event{Type: "run.skipped", Data: scheduler.RunEvent{JobID: "m1"}})
	bus.Publish(eventbus.Event{Type: "run.finished", Data: scheduler.RunEvent{
		JobID:    "m1",
		Duration: 3 * time.Second,
		CostUSD:  0.5,
	}})
	bus.Publish(eventbus.Event{Type: "run.finished", Data: scheduler.RunEvent{JobID: "m1", IsError: true}})
	bus.Publish(eventbus.Event{Type: "run.finished", Data: "not a run event"})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(RunsCompleted.WithLabelValues("m1", "ok")) == 1 &&
			testutil.ToFloat64(RunsCompleted.WithLabelValues("m1", "error")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, float64(1), testutil.ToFloat64(RunsStarted.WithLabelValues("m1")))
	require.Equal(t, float64(1), testutil.ToFloat64(RunsSkipped.WithLabelValues("m1")))
	require.Equal(t, float64(0.5), testutil.ToFloat64(RunCost.WithLabelValues("m1")))
}
