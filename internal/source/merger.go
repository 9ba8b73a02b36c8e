// Package source assembles the effective job set from two independently
// mutable origins: the static list supplied by config at startup, and the
// dynamic agent/schedule store edited at runtime. Dynamic definitions win
// on id collision; a dynamic read failure degrades to static-only rather
// than failing the engine.
package source

import (
	"context"
	"sort"

	"agentcron/internal/job"
	"agentcron/pkg/logx"
)

// Reader is the read-only query over the dynamic store. It must be safe
// to call frequently (every start/reload).
type Reader interface {
	ReadEnabled(ctx context.Context) ([]job.Definition, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) ([]job.Definition, error)

func (f ReaderFunc) ReadEnabled(ctx context.Context) ([]job.Definition, error) {
	return f(ctx)
}

// Merge computes the effective job set, keyed by id, dynamic entries
// taking full precedence over static entries sharing an id (no
// field-level merge). The result is ordered by id for determinism.
func Merge(ctx context.Context, static []job.Definition, dyn Reader, log logx.Logger) []job.Definition {
	byID := make(map[string]job.Definition)

	if dyn != nil {
		defs, err := dyn.ReadEnabled(ctx)
		if err != nil {
			log.Warn("dynamic source unreachable; scheduling static jobs only", logx.Err(err))
		} else {
			for _, d := range defs {
				if d.ID == "" {
					continue
				}
				d.Source = job.SourceDynamic
				byID[d.ID] = d
			}
		}
	}

	for _, d := range static {
		if d.ID == "" {
			continue
		}
		if _, taken := byID[d.ID]; taken {
			log.Debug("static job shadowed by dynamic definition", logx.String("job", d.ID))
			continue
		}
		d.Source = job.SourceStatic
		byID[d.ID] = d
	}

	out := make([]job.Definition, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve finds one definition by exact id, then by derived-id prefix
// (a schedule owned by agent "x" has id "x-<name>"). Used by manual runs
// addressed by the owning agent's id.
func Resolve(defs []job.Definition, id string) (job.Definition, bool) {
	for _, d := range defs {
		if d.ID == id {
			return d, true
		}
	}
	for _, d := range defs {
		if len(d.ID) > len(id) && d.ID[:len(id)] == id && d.ID[len(id)] == '-' {
			return d, true
		}
	}
	return job.Definition{}, false
}
