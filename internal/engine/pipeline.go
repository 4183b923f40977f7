package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/centile/internal/aggregate"
	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/logging"
	"github.com/xtxerr/centile/internal/sample"
)

// QuantileResult pairs sorted group keys with one value per group.
type QuantileResult[R column.Numeric] struct {
	Groups []string
	Values *column.Vector[R]
}

// QuantilesResult pairs sorted group keys with one block of values per
// group, stored as offsets + flat data.
type QuantilesResult[R column.Numeric] struct {
	Groups []string
	Values *column.Array[R]
}

// Quantile computes a single approximate quantile per group.
func Quantile[T, R column.Numeric](ctx context.Context, rows []Row[T], params []float64, opts Options) (*QuantileResult[R], error) {
	agg, err := aggregate.NewQuantile[T, R](params)
	if err != nil {
		return nil, err
	}

	p, err := Accumulate(ctx, rows, agg, aggregate.OnEmptyFor[R](), opts)
	if err != nil {
		return nil, err
	}
	return FinalizeQuantile(agg, p), nil
}

// FinalizeQuantile queries a fully merged partial and emits one value per
// group in sorted group order.
func FinalizeQuantile[T, R column.Numeric](agg *aggregate.Quantile[T, R], p *Partial[T]) *QuantileResult[R] {
	groups := p.Groups()
	out := column.NewVector[R](len(groups))
	for _, group := range groups {
		agg.Finalize(p.states[group], out)
	}
	return &QuantileResult[R]{Groups: groups, Values: out}
}

// Quantiles computes several approximate quantiles per group from one shared
// sample per group.
func Quantiles[T, R column.Numeric](ctx context.Context, rows []Row[T], params []float64, opts Options) (*QuantilesResult[R], error) {
	agg, err := aggregate.NewQuantiles[T, R](params)
	if err != nil {
		return nil, err
	}

	p, err := Accumulate(ctx, rows, agg, aggregate.OnEmptyFor[R](), opts)
	if err != nil {
		return nil, err
	}
	return FinalizeQuantiles(agg, p), nil
}

// FinalizeQuantiles queries a fully merged partial and emits one block per
// group in sorted group order.
func FinalizeQuantiles[T, R column.Numeric](agg *aggregate.Quantiles[T, R], p *Partial[T]) *QuantilesResult[R] {
	groups := p.Groups()
	out := column.NewArray[R](len(groups))
	for _, group := range groups {
		agg.Finalize(p.states[group], out)
	}
	return &QuantilesResult[R]{Groups: groups, Values: out}
}

// Accumulate runs the parallel accumulation and reduction phases and
// returns the fully merged partial.
func Accumulate[T column.Numeric](ctx context.Context, rows []Row[T], agg Aggregator[T], onEmpty sample.OnEmpty, opts Options) (*Partial[T], error) {
	opts = opts.withDefaults()
	log := logging.Component("engine")

	chunks := chunkRows(rows, opts.ChunkSize)
	if len(chunks) == 0 {
		return NewPartial[T](opts.Capacity, onEmpty), nil
	}

	log.Debug("accumulating",
		"rows", len(rows), "chunks", len(chunks), "workers", opts.Workers)

	// Accumulation: one private partial per chunk, no shared mutable state.
	partials := make([]*Partial[T], len(chunks))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			p := NewPartial[T](opts.Capacity, onEmpty)
			for _, row := range chunk {
				agg.Accumulate(p.State(row.Group), row.Value)
			}
			partials[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return reduce(partials, agg, opts.Workers), nil
}

// reduce merges partials pairwise in rounds. Each merge touches only its two
// partials, so the merges of one round run concurrently.
func reduce[T column.Numeric](partials []*Partial[T], agg Aggregator[T], workers int) *Partial[T] {
	for len(partials) > 1 {
		half := (len(partials) + 1) / 2

		var g errgroup.Group
		g.SetLimit(workers)
		for i := 0; i+half < len(partials); i++ {
			g.Go(func() error {
				partials[i].Merge(agg, partials[i+half])
				return nil
			})
		}
		_ = g.Wait() // merge goroutines never return errors

		partials = partials[:half]
	}
	return partials[0]
}

func chunkRows[T column.Numeric](rows []Row[T], size int) [][]Row[T] {
	var chunks [][]Row[T]
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}
