package sketch

import (
	"bytes"
	"math"
	"testing"

	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/errors"
)

func TestNewQuantileParameterCount(t *testing.T) {
	if _, err := NewQuantile(nil); !errors.Is(err, errors.ErrBadParameterCount) {
		t.Errorf("NewQuantile(nil) error = %v, want ErrBadParameterCount", err)
	}
	if _, err := NewQuantile([]float64{0.5, 0.9}); !errors.Is(err, errors.ErrBadParameterCount) {
		t.Errorf("NewQuantile(two levels) error = %v, want ErrBadParameterCount", err)
	}
	if _, err := NewQuantile([]float64{1.5}); !errors.Is(err, errors.ErrLevelOutOfRange) {
		t.Errorf("NewQuantile(1.5) error = %v, want ErrLevelOutOfRange", err)
	}
	if _, err := NewQuantiles(nil); !errors.Is(err, errors.ErrBadParameterCount) {
		t.Errorf("NewQuantiles(nil) error = %v, want ErrBadParameterCount", err)
	}
}

func TestQuantileWithinRelativeAccuracy(t *testing.T) {
	q, err := NewQuantile([]float64{0.5})
	if err != nil {
		t.Fatalf("NewQuantile: %v", err)
	}

	arena := NewArena(0.01)
	st := arena.Alloc()
	for i := 1; i <= 10_000; i++ {
		q.Accumulate(st, float64(i))
	}

	out := column.NewVector[float64](1)
	q.Finalize(st, out)

	got := out.At(0)
	const want = 5000.0
	if math.Abs(got-want)/want > 0.02 {
		t.Errorf("median estimate %v outside 2%% of %v", got, want)
	}
}

func TestQuantilesPreservesLevelOrder(t *testing.T) {
	q, err := NewQuantiles([]float64{0.9, 0.1})
	if err != nil {
		t.Fatalf("NewQuantiles: %v", err)
	}

	arena := NewArena(0.01)
	st := arena.Alloc()
	for i := 1; i <= 1000; i++ {
		q.Accumulate(st, float64(i))
	}

	out := column.NewArray[float64](1)
	q.Finalize(st, out)

	block := out.Block(0)
	if len(block) != 2 {
		t.Fatalf("block length = %d, want 2", len(block))
	}
	if block[0] <= block[1] {
		t.Errorf("block = %v, want p90 first then p10", block)
	}
}

func TestFinalizeEmptySketch(t *testing.T) {
	q, err := NewQuantile([]float64{0.5})
	if err != nil {
		t.Fatalf("NewQuantile: %v", err)
	}

	arena := NewArena(0.01)
	out := column.NewVector[float64](1)
	q.Finalize(arena.Alloc(), out)

	if got := out.At(0); !math.IsNaN(got) {
		t.Errorf("empty sketch estimate = %v, want NaN", got)
	}
}

func TestCombine(t *testing.T) {
	q, err := NewQuantile([]float64{0.5})
	if err != nil {
		t.Fatalf("NewQuantile: %v", err)
	}

	arena := NewArena(0.01)
	a := arena.Alloc()
	b := arena.Alloc()
	for i := 1; i <= 500; i++ {
		q.Accumulate(a, float64(i))
		q.Accumulate(b, float64(i+500))
	}

	q.Combine(a, b)

	out := column.NewVector[float64](1)
	q.Finalize(a, out)

	got := out.At(0)
	if math.Abs(got-500)/500 > 0.05 {
		t.Errorf("combined median %v too far from 500", got)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	q, err := NewQuantiles([]float64{0.25, 0.75})
	if err != nil {
		t.Fatalf("NewQuantiles: %v", err)
	}

	arena := NewArena(0.01)
	src := arena.Alloc()
	for i := 1; i <= 2000; i++ {
		q.Accumulate(src, float64(i))
	}

	var buf bytes.Buffer
	if err := q.Serialize(src, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	dst := arena.Alloc()
	if err := q.Deserialize(dst, &buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	want := column.NewArray[float64](1)
	q.Finalize(src, want)
	got := column.NewArray[float64](1)
	q.Finalize(dst, got)

	wb, gb := want.Block(0), got.Block(0)
	for i := range wb {
		if gb[i] != wb[i] {
			t.Errorf("level %d: deserialized estimate %v, original %v", i, gb[i], wb[i])
		}
	}
}

func TestDeserializeRejectsCorruptState(t *testing.T) {
	var base sketchBase
	arena := NewArena(0.01)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short length", []byte{0x10}},
		{"garbage payload", []byte{4, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := arena.Alloc()
			err := base.Deserialize(st, bytes.NewReader(tt.data))
			if !errors.Is(err, errors.ErrBadStateData) {
				t.Errorf("Deserialize error = %v, want ErrBadStateData", err)
			}
		})
	}
}
