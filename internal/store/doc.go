// Package store is the embedded persistence layer for the scheduler.
//
// Two logical tables:
//   - job_state: one mutable aggregate row per job id
//   - job_runs:  append-only run history, insertion order = recency
package store
