package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlotsBound(t *testing.T) {
	s := NewSlots(2)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))
	require.Equal(t, 2, s.Held())

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := s.Acquire(ctx2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 2, s.Held())
	require.Equal(t, 0, s.Waiting())

	s.Release()
	require.Equal(t, 1, s.Held())
	require.NoError(t, s.Acquire(ctx))
}

func TestSlotsFIFO(t *testing.T) {
	s := NewSlots(1)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))

	const n = 5
	var mu sync.Mutex
	var order []int
	var done sync.WaitGroup

	for i := 0; i < n; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			if err := s.Acquire(ctx); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			s.Release()
		}(i)
		// Make each goroutine enqueue before the next starts, so the
		// expected ordering is well defined.
		waitFor(t, func() bool { return s.Waiting() == i+1 })
	}

	s.Release()
	done.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.Equal(t, 0, s.Waiting())
}

func TestSlotsNewWaiterBehindQueue(t *testing.T) {
	s := NewSlots(2)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		_ = s.Acquire(ctx)
		close(acquired)
	}()
	waitFor(t, func() bool { return s.Waiting() == 1 })

	// Freeing one slot must go to the queued waiter, and the held count
	// must stay at the limit.
	s.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("queued waiter was not granted the released slot")
	}
	require.Equal(t, 2, s.Held())
}

func TestSlotsSetLimit(t *testing.T) {
	s := NewSlots(1)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		_ = s.Acquire(ctx)
		close(acquired)
	}()
	waitFor(t, func() bool { return s.Waiting() == 1 })

	// Raising the limit grants freed capacity to the queued waiter.
	s.SetLimit(2)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not granted after limit raise")
	}
	require.Equal(t, 2, s.Held())
	require.Equal(t, 0, s.Waiting())

	// Lowering the limit never evicts holders; releases drain the held
	// count down instead of admitting new work.
	s.SetLimit(1)
	s.Release()
	require.Equal(t, 1, s.Held())
	require.Equal(t, 1, s.Limit())
}

func TestSlotsDefaultLimit(t *testing.T) {
	require.Equal(t, DefaultSlotLimit, NewSlots(0).Limit())
	require.Equal(t, DefaultSlotLimit, NewSlots(-4).Limit())
	require.Equal(t, 7, NewSlots(7).Limit())
}

func TestRunningSet(t *testing.T) {
	r := NewRunningSet()
	require.True(t, r.TryAcquire("a"))
	require.False(t, r.TryAcquire("a"))
	require.True(t, r.TryAcquire("b"))
	require.True(t, r.IsRunning("a"))
	require.Equal(t, 2, r.Len())

	r.Release("a")
	require.False(t, r.IsRunning("a"))
	require.True(t, r.TryAcquire("a"))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}
