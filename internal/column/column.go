// Package column provides the fixed-width columnar containers that aggregate
// functions write their results into.
//
// Two shapes are supported:
//
//   - Vector: one value per group (single-quantile results)
//   - Array: one variable-length block of values per group, stored as a flat
//     value slice plus running-total offsets (multi-quantile results)
//
// Only fixed-width numeric kinds are supported. The containers are not safe
// for concurrent use; the engine finalizes into them from a single goroutine.
package column

// Numeric is the set of fixed-width numeric kinds the engine aggregates over.
type Numeric interface {
	int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64
}

// Vector is a flat column holding one value per row.
type Vector[T Numeric] struct {
	data []T
}

// NewVector creates a Vector with the given initial capacity.
func NewVector[T Numeric](capacity int) *Vector[T] {
	return &Vector[T]{data: make([]T, 0, capacity)}
}

// Append appends one value to the column.
func (v *Vector[T]) Append(x T) {
	v.data = append(v.data, x)
}

// Len returns the number of values in the column.
func (v *Vector[T]) Len() int {
	return len(v.data)
}

// At returns the value at row i.
func (v *Vector[T]) At(i int) T {
	return v.data[i]
}

// Data returns the backing slice. Callers must not modify it.
func (v *Vector[T]) Data() []T {
	return v.data
}

// Array is a column holding one variable-length block of values per row.
//
// Blocks are stored back to back in a flat value slice. offsets[i] is the
// running total of values up to and including row i, so block i spans
// values[offsets[i-1]:offsets[i]] (with offsets[-1] taken as 0).
type Array[T Numeric] struct {
	values  []T
	offsets []uint64
}

// NewArray creates an Array with the given initial row capacity.
func NewArray[T Numeric](capacity int) *Array[T] {
	return &Array[T]{
		values:  make([]T, 0, capacity),
		offsets: make([]uint64, 0, capacity),
	}
}

// AppendBlock appends one block of values and its closing offset.
func (a *Array[T]) AppendBlock(vals ...T) {
	a.values = append(a.values, vals...)

	var last uint64
	if len(a.offsets) > 0 {
		last = a.offsets[len(a.offsets)-1]
	}
	a.offsets = append(a.offsets, last+uint64(len(vals)))
}

// Len returns the number of blocks (rows) in the column.
func (a *Array[T]) Len() int {
	return len(a.offsets)
}

// Block returns the values of block i. The returned slice aliases the flat
// storage; callers must not modify it.
func (a *Array[T]) Block(i int) []T {
	var start uint64
	if i > 0 {
		start = a.offsets[i-1]
	}
	return a.values[start:a.offsets[i]]
}

// Values returns the flat value slice. Callers must not modify it.
func (a *Array[T]) Values() []T {
	return a.values
}

// Offsets returns the running-total offsets. Callers must not modify it.
func (a *Array[T]) Offsets() []uint64 {
	return a.offsets
}
