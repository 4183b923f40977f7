// Package engine drives the aggregation lifecycle over input rows.
//
// Accumulation runs on parallel workers, each exclusively owning a private
// partial (its own arena and group states), so no locking is needed on the
// hot path. A reduction phase then merges pairs of previously independent
// partials; different merges touch disjoint state pairs and proceed
// concurrently. Finalization queries the merged states in deterministic
// group order and writes result columns.
//
// Partials can also be exchanged across a process boundary: WritePartial and
// ReadPartial frame each group's serialized sample state, so one process can
// accumulate and another can merge and finalize.
package engine

import (
	"io"
	"maps"
	"runtime"
	"slices"

	"github.com/xtxerr/centile/internal/aggregate"
	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/sample"
)

// Row is one (group, value) observation.
type Row[T column.Numeric] struct {
	Group string
	Value T
}

// Options configures the pipeline.
type Options struct {
	// Workers is the number of concurrent accumulation workers.
	// 0 means GOMAXPROCS.
	Workers int

	// ChunkSize is the number of rows handed to a worker at a time.
	ChunkSize int

	// Capacity is the per-group reservoir capacity.
	Capacity int

	// Accuracy is the DDSketch relative accuracy for the sketch functions.
	Accuracy float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 64 * 1024
	}
	if o.Capacity <= 0 {
		o.Capacity = sample.DefaultCapacity
	}
	if o.Accuracy <= 0 || o.Accuracy >= 1 {
		o.Accuracy = 0.01
	}
	return o
}

// Aggregator is the lifecycle surface the engine drives between
// configuration and finalization. Both reservoir function families
// implement it; finalization stays on the concrete types because the
// output column shape differs.
type Aggregator[T column.Numeric] interface {
	Accumulate(st *aggregate.GroupState[T], v T)
	Combine(dst, src *aggregate.GroupState[T])
	Serialize(st *aggregate.GroupState[T], w io.Writer) error
	Deserialize(st *aggregate.GroupState[T], r io.Reader) error
}

// Partial holds the group states accumulated by one worker (or read back
// from a partial-state stream). It is owned by a single goroutine.
type Partial[T column.Numeric] struct {
	arena  *aggregate.Arena[T]
	states map[string]*aggregate.GroupState[T]
}

// NewPartial creates an empty partial whose states use the given reservoir
// capacity and on-empty policy.
func NewPartial[T column.Numeric](capacity int, onEmpty sample.OnEmpty) *Partial[T] {
	return &Partial[T]{
		arena:  aggregate.NewArena[T](capacity, onEmpty),
		states: make(map[string]*aggregate.GroupState[T]),
	}
}

// State returns the group's state, allocating it on first use.
func (p *Partial[T]) State(group string) *aggregate.GroupState[T] {
	st, ok := p.states[group]
	if !ok {
		st = p.arena.Alloc()
		p.states[group] = st
	}
	return st
}

// Groups returns the group keys in sorted order.
func (p *Partial[T]) Groups() []string {
	return slices.Sorted(maps.Keys(p.states))
}

// Len returns the number of groups.
func (p *Partial[T]) Len() int {
	return len(p.states)
}

// Merge combines another partial into this one, group by group. Groups only
// present in src keep their accumulated state; shared groups are combined
// through the aggregator.
func (p *Partial[T]) Merge(agg Aggregator[T], src *Partial[T]) {
	for group, sst := range src.states {
		dst, ok := p.states[group]
		if !ok {
			p.states[group] = sst
			continue
		}
		agg.Combine(dst, sst)
	}
}
