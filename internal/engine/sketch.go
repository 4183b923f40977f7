package engine

import (
	"context"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/sketch"
)

// sketchPartial mirrors Partial for the DDSketch-backed functions, which
// carry non-generic float64 state.
type sketchPartial struct {
	arena  *sketch.Arena
	states map[string]*sketch.GroupState
}

func newSketchPartial(accuracy float64) *sketchPartial {
	return &sketchPartial{
		arena:  sketch.NewArena(accuracy),
		states: make(map[string]*sketch.GroupState),
	}
}

func (p *sketchPartial) state(group string) *sketch.GroupState {
	st, ok := p.states[group]
	if !ok {
		st = p.arena.Alloc()
		p.states[group] = st
	}
	return st
}

// QuantileSketch computes a single DDSketch quantile estimate per group.
func QuantileSketch(ctx context.Context, rows []Row[float64], params []float64, opts Options) (*QuantileResult[float64], error) {
	agg, err := sketch.NewQuantile(params)
	if err != nil {
		return nil, err
	}

	p, groups, err := accumulateSketch(ctx, rows, agg, opts)
	if err != nil {
		return nil, err
	}

	out := column.NewVector[float64](len(groups))
	for _, group := range groups {
		agg.Finalize(p.states[group], out)
	}
	return &QuantileResult[float64]{Groups: groups, Values: out}, nil
}

// QuantilesSketch computes several DDSketch quantile estimates per group.
func QuantilesSketch(ctx context.Context, rows []Row[float64], params []float64, opts Options) (*QuantilesResult[float64], error) {
	agg, err := sketch.NewQuantiles(params)
	if err != nil {
		return nil, err
	}

	p, groups, err := accumulateSketch(ctx, rows, agg, opts)
	if err != nil {
		return nil, err
	}

	out := column.NewArray[float64](len(groups))
	for _, group := range groups {
		agg.Finalize(p.states[group], out)
	}
	return &QuantilesResult[float64]{Groups: groups, Values: out}, nil
}

// sketchAggregator is the lifecycle surface shared by both sketch families.
type sketchAggregator interface {
	Accumulate(st *sketch.GroupState, v float64)
	Combine(dst, src *sketch.GroupState)
}

func accumulateSketch(ctx context.Context, rows []Row[float64], agg sketchAggregator, opts Options) (*sketchPartial, []string, error) {
	opts = opts.withDefaults()

	chunks := chunkRows(rows, opts.ChunkSize)
	if len(chunks) == 0 {
		p := newSketchPartial(opts.Accuracy)
		return p, nil, nil
	}

	partials := make([]*sketchPartial, len(chunks))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			p := newSketchPartial(opts.Accuracy)
			for _, row := range chunk {
				agg.Accumulate(p.state(row.Group), row.Value)
			}
			partials[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := partials[0]
	for _, p := range partials[1:] {
		for group, sst := range p.states {
			dst, ok := merged.states[group]
			if !ok {
				merged.states[group] = sst
				continue
			}
			agg.Combine(dst, sst)
		}
	}

	groups := slices.Sorted(maps.Keys(merged.states))
	return merged, groups, nil
}
