// Package engine provides the bounded-concurrency primitives used by the
// scheduler: a counting semaphore with a strict FIFO wait list, and the
// per-job running flags that enforce non-overlapping execution.
package engine

import (
	"context"
	"sync"
)

// DefaultSlotLimit bounds concurrent job executions system-wide. Each
// execution spawns an expensive external process; unbounded concurrency
// could exhaust system resources.
const DefaultSlotLimit = 3

// Slots is a counting semaphore with a FIFO wait list. Held count never
// exceeds the limit; waiters are served strictly in arrival order.
type Slots struct {
	mu      sync.Mutex
	limit   int
	held    int
	waiters []chan struct{}
}

func NewSlots(limit int) *Slots {
	if limit <= 0 {
		limit = DefaultSlotLimit
	}
	return &Slots{limit: limit}
}

// Acquire obtains a slot, suspending the caller FIFO behind earlier
// waiters when the pool is saturated. It returns ctx.Err() if the context
// is done before a slot is granted.
func (s *Slots) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.held < s.limit && len(s.waiters) == 0 {
		s.held++
		s.mu.Unlock()
		return nil
	}
	// Buffered so a Release can hand over the slot without blocking.
	ch := make(chan struct{}, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// Not on the wait list anymore: a Release already handed us the
		// slot. Take it and put it back so it reaches the next waiter.
		<-ch
		s.Release()
		return ctx.Err()
	}
}

// Release returns a slot, waking the oldest waiter if any. When the
// limit was lowered below the held count, the slot drains instead of
// transferring until the pool fits the new limit again.
func (s *Slots) Release() {
	s.mu.Lock()
	if len(s.waiters) > 0 && s.held <= s.limit {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		// held count is transferred to the waiter unchanged.
		ch <- struct{}{}
		return
	}
	if s.held > 0 {
		s.held--
	}
	s.mu.Unlock()
}

// SetLimit resizes the pool. Raising the limit grants freed capacity to
// queued waiters in FIFO order; lowering it never evicts holders, the
// held count just drains down to the new limit as slots are released.
func (s *Slots) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultSlotLimit
	}
	s.mu.Lock()
	s.limit = limit
	for len(s.waiters) > 0 && s.held < s.limit {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.held++
		ch <- struct{}{}
	}
	s.mu.Unlock()
}

// Held reports how many slots are currently occupied.
func (s *Slots) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Waiting reports how many callers are queued for a slot.
func (s *Slots) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// Limit reports the configured slot limit.
func (s *Slots) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}
