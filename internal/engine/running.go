package engine

import "sync"

// RunningSet tracks which job ids currently have an execution in flight.
// It is transient process-local state: a crash mid-run must not leave a
// job permanently blocked, so this is never persisted.
//
// TryAcquire is a synchronous check-and-set performed before any
// suspension point, which is what makes per-job execution strictly
// serialized.
type RunningSet struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewRunningSet() *RunningSet {
	return &RunningSet{running: map[string]struct{}{}}
}

// TryAcquire marks id as running. It returns false if an execution for id
// is already in flight.
func (r *RunningSet) TryAcquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; ok {
		return false
	}
	r.running[id] = struct{}{}
	return true
}

// Release clears the running mark for id.
func (r *RunningSet) Release(id string) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// IsRunning reports whether id has an execution in flight.
func (r *RunningSet) IsRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[id]
	return ok
}

// Len reports how many jobs are currently running.
func (r *RunningSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}
