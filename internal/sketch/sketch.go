// Package sketch implements DDSketch-backed quantile aggregate functions.
//
// They follow the same aggregation lifecycle as the reservoir-backed
// functions in internal/aggregate but trade uniform sampling for DDSketch's
// relative-accuracy guarantee: estimates are within a configured relative
// error of the true quantile regardless of stream size. Results are always
// float64 and, with the default logarithmic mapping, values very close to
// zero or negative collapse into the sketch's zero bucket.
//
// State serialization uses the DDSketch protobuf encoding, so partials can
// be merged by any DDSketch implementation, not just this engine.
package sketch

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/pb/sketchpb"
	"google.golang.org/protobuf/proto"

	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/errors"
)

// DefaultAccuracy is the relative accuracy used when the configuration does
// not specify one (1% error).
const DefaultAccuracy = 0.01

// GroupState is the per-group accumulator: one DDSketch.
type GroupState struct {
	sk *ddsketch.DDSketch
}

// Arena owns every sketch group state for one aggregation run, all built
// with the same relative accuracy so partials stay mergeable.
type Arena struct {
	accuracy float64
	states   []*GroupState
}

// NewArena creates an arena allocating sketches with the given relative
// accuracy (0.01 = 1% error).
func NewArena(accuracy float64) *Arena {
	if accuracy <= 0 || accuracy >= 1 {
		accuracy = DefaultAccuracy
	}
	return &Arena{accuracy: accuracy}
}

// Alloc creates one empty group state and returns its handle.
func (a *Arena) Alloc() *GroupState {
	st := &GroupState{}
	if sk, err := ddsketch.NewDefaultDDSketch(a.accuracy); err == nil {
		st.sk = sk
	}
	a.states = append(a.states, st)
	return st
}

// Len returns the number of allocated states.
func (a *Arena) Len() int {
	return len(a.states)
}

// sketchBase carries the lifecycle steps shared by both function families.
type sketchBase struct{}

// Accumulate adds one row value to the group's sketch. Values the mapping
// cannot index are dropped; accumulation itself never fails.
func (sketchBase) Accumulate(st *GroupState, v float64) {
	if st.sk == nil {
		return
	}
	_ = st.sk.Add(v)
}

// Combine merges an independently accumulated partial into dst. Sketches
// from the same arena share a mapping, so the merge cannot fail.
func (sketchBase) Combine(dst, src *GroupState) {
	if dst.sk == nil || src.sk == nil {
		return
	}
	_ = dst.sk.MergeWith(src.sk)
}

// Serialize writes the group's sketch as a length-prefixed protobuf message.
func (sketchBase) Serialize(st *GroupState, w io.Writer) error {
	if st.sk == nil {
		return errors.Wrap(errors.ErrBadStateData, "sketch not allocated")
	}

	data, err := proto.Marshal(st.sk.ToProto())
	if err != nil {
		return fmt.Errorf("marshal sketch: %w", err)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write sketch length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write sketch: %w", err)
	}
	return nil
}

// Deserialize replaces the group's sketch with a serialized one.
func (sketchBase) Deserialize(st *GroupState, r io.Reader) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return errors.Wrap(errors.ErrBadStateData, "read sketch length")
	}

	size := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return errors.Wrap(errors.ErrBadStateData, "read sketch")
	}

	var pb sketchpb.DDSketch
	if err := proto.Unmarshal(data, &pb); err != nil {
		return errors.Wrap(errors.ErrBadStateData, "unmarshal sketch")
	}

	sk, err := ddsketch.FromProto(&pb)
	if err != nil {
		return errors.Wrap(errors.ErrBadStateData, "rebuild sketch")
	}
	st.sk = sk
	return nil
}

// Quantile approximates a single quantile level per group.
type Quantile struct {
	sketchBase
	level float64
}

// NewQuantile configures a single-level sketch aggregator. Exactly one level
// parameter in [0, 1] is required.
func NewQuantile(params []float64) (*Quantile, error) {
	if len(params) != 1 {
		return nil, errors.Wrapf(errors.ErrBadParameterCount,
			"quantileSketch requires exactly one level parameter, got %d", len(params))
	}
	if err := validateLevel(params[0]); err != nil {
		return nil, err
	}
	return &Quantile{level: params[0]}, nil
}

// Finalize appends one estimate to the output column. Empty groups yield
// NaN, matching the floating on-empty policy.
func (q *Quantile) Finalize(st *GroupState, out *column.Vector[float64]) {
	out.Append(valueAt(st, q.level))
}

// Quantiles approximates several quantile levels per group from one sketch.
type Quantiles struct {
	sketchBase
	levels []float64
}

// NewQuantiles configures a multi-level sketch aggregator. At least one
// level parameter is required; order is preserved in the output blocks.
func NewQuantiles(params []float64) (*Quantiles, error) {
	if len(params) == 0 {
		return nil, errors.Wrap(errors.ErrBadParameterCount,
			"quantilesSketch requires at least one level parameter")
	}
	for _, level := range params {
		if err := validateLevel(level); err != nil {
			return nil, err
		}
	}
	return &Quantiles{levels: slices.Clone(params)}, nil
}

// Finalize appends one block of estimates plus its closing offset.
func (q *Quantiles) Finalize(st *GroupState, out *column.Array[float64]) {
	block := make([]float64, len(q.levels))
	for i, level := range q.levels {
		block[i] = valueAt(st, level)
	}
	out.AppendBlock(block...)
}

func valueAt(st *GroupState, level float64) float64 {
	if st.sk == nil {
		return math.NaN()
	}
	v, err := st.sk.GetValueAtQuantile(level)
	if err != nil {
		// Empty sketch.
		return math.NaN()
	}
	return v
}

func validateLevel(level float64) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return errors.Wrapf(errors.ErrLevelOutOfRange, "level %v", level)
	}
	return nil
}
