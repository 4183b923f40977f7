package aggregate

import (
	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/sample"
)

// GroupState is the per-group accumulator: one reservoir sample paired with
// an implicit group identity. States are owned by an Arena; aggregators only
// receive handles and must not retain them past the arena's lifetime.
type GroupState[T column.Numeric] struct {
	sample *sample.Reservoir[T]
}

// Sample returns the underlying reservoir.
func (s *GroupState[T]) Sample() *sample.Reservoir[T] {
	return s.sample
}

// Arena owns every group state for one aggregation run. It fixes the
// reservoir capacity and on-empty policy once, before any row is processed.
//
// An arena is not safe for concurrent allocation; each worker owns its own
// arena during accumulation.
type Arena[T column.Numeric] struct {
	capacity int
	onEmpty  sample.OnEmpty
	states   []*GroupState[T]
}

// NewArena creates an arena allocating reservoirs of the given capacity.
func NewArena[T column.Numeric](capacity int, onEmpty sample.OnEmpty) *Arena[T] {
	return &Arena[T]{
		capacity: capacity,
		onEmpty:  onEmpty,
	}
}

// Alloc creates one empty group state and returns its handle.
func (a *Arena[T]) Alloc() *GroupState[T] {
	st := &GroupState[T]{
		sample: sample.New[T](a.capacity, a.onEmpty),
	}
	a.states = append(a.states, st)
	return st
}

// Len returns the number of allocated states.
func (a *Arena[T]) Len() int {
	return len(a.states)
}

// Capacity returns the reservoir capacity of states allocated by this arena.
func (a *Arena[T]) Capacity() int {
	return a.capacity
}

// OnEmptyFor returns the empty-query policy matching a result kind: integral
// kinds get 0, floating kinds get NaN.
func OnEmptyFor[R column.Numeric]() sample.OnEmpty {
	var zero R
	switch any(zero).(type) {
	case float32, float64:
		return sample.OnEmptyNaN
	default:
		return sample.OnEmptyZero
	}
}
