package aggregate

import (
	"io"
	"math"
	"slices"

	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/errors"
)

// reservoirBase carries the lifecycle steps shared by both function
// families: they differ only in configuration and result emission.
type reservoirBase[T column.Numeric] struct{}

// Accumulate inserts one row value into the group's sample. Never fails.
func (reservoirBase[T]) Accumulate(st *GroupState[T], v T) {
	st.sample.Insert(v)
}

// Combine merges an independently accumulated partial state into dst. Used
// to reduce per-worker or per-shard partial aggregates. Never fails.
func (reservoirBase[T]) Combine(dst, src *GroupState[T]) {
	dst.sample.Merge(src.sample)
}

// Serialize writes the group's sample state for transfer across a process
// or network boundary.
func (reservoirBase[T]) Serialize(st *GroupState[T], w io.Writer) error {
	return st.sample.Write(w)
}

// Deserialize replaces the group's sample state with a serialized one.
func (reservoirBase[T]) Deserialize(st *GroupState[T], r io.Reader) error {
	return st.sample.Read(r)
}

// Quantile approximates a single quantile level per group.
//
// T is the argument kind, R the result kind: float64 for the "returns as
// float" variant, otherwise R == T.
type Quantile[T, R column.Numeric] struct {
	reservoirBase[T]
	level float64
}

// NewQuantile configures a single-quantile aggregator. Exactly one level
// parameter is required; the level must lie in [0, 1].
func NewQuantile[T, R column.Numeric](params []float64) (*Quantile[T, R], error) {
	if len(params) != 1 {
		return nil, errors.Wrapf(errors.ErrBadParameterCount,
			"quantile requires exactly one level parameter, got %d", len(params))
	}
	if err := validateLevel(params[0]); err != nil {
		return nil, err
	}
	return &Quantile[T, R]{level: params[0]}, nil
}

// Level returns the configured quantile level.
func (q *Quantile[T, R]) Level() float64 {
	return q.level
}

// Finalize queries the group's sample at the configured level and appends
// exactly one value to the output column. Never fails.
func (q *Quantile[T, R]) Finalize(st *GroupState[T], out *column.Vector[R]) {
	out.Append(resultFrom[R](st.sample.QuantileInterpolated(q.level)))
}

// Quantiles approximates several quantile levels per group from one shared
// sample. The per-level results are correlated draws from the same retained
// elements, not independent re-samples.
type Quantiles[T, R column.Numeric] struct {
	reservoirBase[T]
	levels []float64
}

// NewQuantiles configures a multi-quantile aggregator. At least one level
// parameter is required; order is preserved in the output blocks.
func NewQuantiles[T, R column.Numeric](params []float64) (*Quantiles[T, R], error) {
	if len(params) == 0 {
		return nil, errors.Wrap(errors.ErrBadParameterCount,
			"quantiles requires at least one level parameter")
	}
	for _, level := range params {
		if err := validateLevel(level); err != nil {
			return nil, err
		}
	}
	return &Quantiles[T, R]{levels: slices.Clone(params)}, nil
}

// Levels returns the configured levels in configuration order.
func (q *Quantiles[T, R]) Levels() []float64 {
	return slices.Clone(q.levels)
}

// Finalize queries the group's sample once per configured level, in
// configuration order, and appends one block plus its closing offset to the
// output array column. Never fails.
func (q *Quantiles[T, R]) Finalize(st *GroupState[T], out *column.Array[R]) {
	block := make([]R, len(q.levels))
	for i, level := range q.levels {
		block[i] = resultFrom[R](st.sample.QuantileInterpolated(level))
	}
	out.AppendBlock(block...)
}

// validateLevel rejects levels outside [0, 1] at configuration time, before
// any row is accumulated.
func validateLevel(level float64) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return errors.Wrapf(errors.ErrLevelOutOfRange, "level %v", level)
	}
	return nil
}

// resultFrom converts a quantile estimate to the result kind. NaN (the
// floating on-empty result) maps to zero for integral kinds, where a direct
// conversion would be undefined.
func resultFrom[R column.Numeric](f float64) R {
	if math.IsNaN(f) {
		var zero R
		switch any(zero).(type) {
		case float32, float64:
			return R(f)
		default:
			return zero
		}
	}
	return R(f)
}
