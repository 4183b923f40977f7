package engine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/sample"
	"github.com/xtxerr/centile/internal/wire"
)

// WritePartial writes every group state of a partial as length-delimited
// frames, in sorted group order so the stream is deterministic.
func WritePartial[T column.Numeric](w io.Writer, p *Partial[T], agg Aggregator[T]) error {
	ww := wire.NewWriter(w)

	for _, group := range p.Groups() {
		var buf bytes.Buffer
		if err := agg.Serialize(p.states[group], &buf); err != nil {
			return fmt.Errorf("serialize group %q: %w", group, err)
		}
		if err := ww.Write(wire.Frame{Group: group, State: buf.Bytes()}); err != nil {
			return fmt.Errorf("frame group %q: %w", group, err)
		}
	}

	return ww.Flush()
}

// ReadPartial reconstructs a partial from a stream produced by WritePartial.
// The reconstructed states merge and query exactly like the originals.
func ReadPartial[T column.Numeric](r io.Reader, agg Aggregator[T], onEmpty sample.OnEmpty, opts Options) (*Partial[T], error) {
	opts = opts.withDefaults()

	p := NewPartial[T](opts.Capacity, onEmpty)
	rr := wire.NewReader(r)

	for {
		frame, err := rr.Read()
		if err == io.EOF {
			return p, nil
		}
		if err != nil {
			return nil, err
		}

		st := p.State(frame.Group)
		if err := agg.Deserialize(st, bytes.NewReader(frame.State)); err != nil {
			return nil, fmt.Errorf("deserialize group %q: %w", frame.Group, err)
		}
	}
}
