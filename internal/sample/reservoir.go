// Package sample implements the bounded uniform random sample ("reservoir")
// that backs the approximate quantile aggregate functions.
//
// A Reservoir retains at most capacity elements out of everything inserted
// into it. While the total number of inserted values is at or below capacity
// the retained set is complete and quantile queries are exact; past capacity
// the retained set is a uniform random sample of all values seen so far.
//
// A reservoir moves through two phases:
//
//   - accumulation: Insert and Merge are allowed
//   - queried: the first QuantileInterpolated call sorts the retained
//     elements and seals the reservoir; Insert and Merge panic afterwards
//
// Sealing makes the "conceptually read-only but sorts on query" behavior an
// explicit one-way transition instead of silent state corruption. Sorting
// never changes the set of retained observations, so Write remains valid on a
// sealed reservoir and callers may treat queries as side-effect-free.
package sample

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/xtxerr/centile/internal/column"
)

// OnEmpty selects what a quantile query on an empty reservoir returns.
// The policy is fixed at construction; an empty query is never an error.
type OnEmpty int

const (
	// OnEmptyNaN returns NaN for empty reservoirs (floating result kinds).
	OnEmptyNaN OnEmpty = iota

	// OnEmptyZero returns 0 for empty reservoirs (integral result kinds).
	OnEmptyZero
)

// DefaultCapacity is the reservoir capacity used when the configuration does
// not specify one. 8192 elements keeps per-group state under 64 KiB for
// 8-byte kinds while holding the p99 estimation error low.
const DefaultCapacity = 8192

// Reservoir is a bounded uniform random sample over a stream of numeric
// values. It is not safe for concurrent use; during accumulation each
// instance is exclusively owned by one worker.
type Reservoir[T column.Numeric] struct {
	capacity int
	seen     uint64
	items    []T
	onEmpty  OnEmpty
	sealed   bool
}

// New creates an empty reservoir with the given capacity and on-empty policy.
func New[T column.Numeric](capacity int, onEmpty OnEmpty) *Reservoir[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Reservoir[T]{
		capacity: capacity,
		items:    make([]T, 0, min(capacity, 64)),
		onEmpty:  onEmpty,
	}
}

// Insert adds one observation. Below capacity the value is always retained;
// at capacity it replaces a random slot with probability capacity/seen, so
// the retained elements stay a uniform sample of everything seen (Vitter's
// algorithm R). Insert never fails.
func (r *Reservoir[T]) Insert(v T) {
	r.mustBeOpen("Insert")

	r.seen++
	if len(r.items) < r.capacity {
		r.items = append(r.items, v)
		return
	}
	if j := rand.Uint64N(r.seen); j < uint64(r.capacity) {
		r.items[j] = v
	}
}

// Merge combines another reservoir into this one. The two sides may have
// observed very different stream sizes, so retained elements are drawn
// weighted by each side's effective observation count rather than
// equal-weight; merging a 10^6-row partial with a 10^2-row partial keeps the
// merged sample unbiased.
//
// The receiver must still be in the accumulation phase. The source is only
// read and may be sealed; its retained set is never modified.
func (r *Reservoir[T]) Merge(o *Reservoir[T]) {
	r.mustBeOpen("Merge")
	if o == nil || o.seen == 0 {
		return
	}

	// Both sides complete: the union is still complete.
	if r.seen+o.seen <= uint64(r.capacity) {
		r.items = append(r.items, o.items...)
		r.seen += o.seen
		return
	}

	a := slices.Clone(r.items)
	b := slices.Clone(o.items)
	rand.Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
	rand.Shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })

	wa := float64(r.seen)
	wb := float64(o.seen)

	merged := make([]T, 0, r.capacity)
	for len(merged) < r.capacity && (len(a) > 0 || len(b) > 0) {
		fromA := len(b) == 0 ||
			(len(a) > 0 && rand.Float64()*(wa+wb) < wa)
		if fromA {
			merged = append(merged, a[len(a)-1])
			a = a[:len(a)-1]
		} else {
			merged = append(merged, b[len(b)-1])
			b = b[:len(b)-1]
		}
	}

	r.items = merged
	r.seen += o.seen
}

// QuantileInterpolated returns the value at the given level in [0, 1] via
// linear interpolation between the two bracketing order statistics. The first
// call sorts the retained elements and seals the reservoir.
//
// On an empty reservoir the configured on-empty policy decides the result:
// NaN for floating result kinds, 0 for integral ones.
func (r *Reservoir[T]) QuantileInterpolated(level float64) float64 {
	if len(r.items) == 0 {
		if r.onEmpty == OnEmptyZero {
			return 0
		}
		return math.NaN()
	}

	r.seal()

	n := len(r.items)
	rank := level * float64(n-1)

	lo := int(math.Floor(rank))
	if lo < 0 {
		return float64(r.items[0])
	}
	if lo >= n-1 {
		return float64(r.items[n-1])
	}

	w := rank - float64(lo)
	return float64(r.items[lo])*(1-w) + float64(r.items[lo+1])*w
}

// seal sorts the retained elements and closes the accumulation phase.
// Repeated queries observe the already-sorted storage.
func (r *Reservoir[T]) seal() {
	if r.sealed {
		return
	}
	slices.Sort(r.items)
	r.sealed = true
}

func (r *Reservoir[T]) mustBeOpen(op string) {
	if r.sealed {
		panic(fmt.Sprintf("sample: %s on a reservoir already queried", op))
	}
}

// Capacity returns the maximum number of retained elements.
func (r *Reservoir[T]) Capacity() int {
	return r.capacity
}

// Len returns the number of currently retained elements.
func (r *Reservoir[T]) Len() int {
	return len(r.items)
}

// Seen returns the total number of observations inserted, including those
// that were evicted from the reservoir.
func (r *Reservoir[T]) Seen() uint64 {
	return r.seen
}

// Sealed reports whether the reservoir has been queried.
func (r *Reservoir[T]) Sealed() bool {
	return r.sealed
}

// Values returns a copy of the retained elements.
func (r *Reservoir[T]) Values() []T {
	return slices.Clone(r.items)
}
