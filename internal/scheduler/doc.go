// Package scheduler is the engine that runs recurring agent jobs.
//
// Invariants it protects:
//   - per-job executions never overlap (in-memory running set, reset on
//     process restart)
//   - total concurrent executions never exceed the slot limit
//   - every completed execution leaves a durable run record and a
//     matching aggregate update, written in one transaction
//
// Timers are rebuilt from the merged sources on Start() and Reload();
// Stop() halts future firings but lets in-flight runs complete.
package scheduler
