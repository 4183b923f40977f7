package sample

import (
	"bytes"
	"math"
	"testing"
)

func TestQuantileExactUnderCapacity(t *testing.T) {
	r := New[float64](1024, OnEmptyNaN)
	for i := 101; i >= 1; i-- {
		r.Insert(float64(i))
	}

	tests := []struct {
		level float64
		want  float64
	}{
		{0, 1},
		{0.25, 26},
		{0.5, 51},
		{0.75, 76},
		{1, 101},
	}
	for _, tt := range tests {
		if got := r.QuantileInterpolated(tt.level); got != tt.want {
			t.Errorf("QuantileInterpolated(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestQuantileInterpolatesBetweenOrderStatistics(t *testing.T) {
	r := New[int64](16, OnEmptyNaN)
	for _, v := range []int64{10, 20} {
		r.Insert(v)
	}

	if got := r.QuantileInterpolated(0.5); got != 15 {
		t.Errorf("QuantileInterpolated(0.5) = %v, want 15", got)
	}
	if got := r.QuantileInterpolated(0.25); got != 12.5 {
		t.Errorf("QuantileInterpolated(0.25) = %v, want 12.5", got)
	}
}

func TestQuantileEmptyPolicy(t *testing.T) {
	nan := New[float64](8, OnEmptyNaN)
	if got := nan.QuantileInterpolated(0.5); !math.IsNaN(got) {
		t.Errorf("empty reservoir with NaN policy returned %v", got)
	}

	zero := New[int32](8, OnEmptyZero)
	if got := zero.QuantileInterpolated(0.5); got != 0 {
		t.Errorf("empty reservoir with zero policy returned %v", got)
	}
}

func TestInsertCapsRetainedSet(t *testing.T) {
	const capacity = 64
	r := New[int64](capacity, OnEmptyNaN)
	for i := range int64(10_000) {
		r.Insert(i)
	}

	if r.Len() != capacity {
		t.Errorf("Len() = %d, want %d", r.Len(), capacity)
	}
	if r.Seen() != 10_000 {
		t.Errorf("Seen() = %d, want 10000", r.Seen())
	}
}

func TestSampledQuantileApproximatesStream(t *testing.T) {
	r := New[float64](2048, OnEmptyNaN)
	const n = 100_000
	for i := range n {
		r.Insert(float64(i))
	}

	got := r.QuantileInterpolated(0.5)
	want := float64(n) / 2
	if math.Abs(got-want) > 0.05*float64(n) {
		t.Errorf("median estimate %v too far from %v", got, want)
	}
}

func TestMergeUnderCapacityIsExact(t *testing.T) {
	a := New[float64](100, OnEmptyNaN)
	b := New[float64](100, OnEmptyNaN)
	for _, v := range []float64{1, 2, 3, 4} {
		a.Insert(v)
	}
	for _, v := range []float64{5, 6, 7, 8} {
		b.Insert(v)
	}

	a.Merge(b)

	if a.Seen() != 8 {
		t.Errorf("Seen() = %d, want 8", a.Seen())
	}
	if got := a.QuantileInterpolated(0.5); got != 4.5 {
		t.Errorf("merged median = %v, want 4.5", got)
	}
}

func TestMergeNilAndEmptySource(t *testing.T) {
	r := New[int64](8, OnEmptyNaN)
	r.Insert(7)

	r.Merge(nil)
	r.Merge(New[int64](8, OnEmptyNaN))

	if r.Seen() != 1 || r.Len() != 1 {
		t.Errorf("Seen() = %d, Len() = %d after no-op merges", r.Seen(), r.Len())
	}
}

func TestMergeWeightsBySeenCount(t *testing.T) {
	// The large side saw 100x more observations than the small side, so
	// after many trials most retained elements should come from it.
	const trials = 200
	fromLarge := 0
	total := 0

	for range trials {
		large := New[float64](32, OnEmptyNaN)
		for range 3200 {
			large.Insert(1)
		}
		small := New[float64](32, OnEmptyNaN)
		for range 32 {
			small.Insert(2)
		}

		large.Merge(small)
		for _, v := range large.Values() {
			if v == 1 {
				fromLarge++
			}
			total++
		}
	}

	ratio := float64(fromLarge) / float64(total)
	if ratio < 0.90 {
		t.Errorf("large side contributed %.2f of retained elements, want > 0.90", ratio)
	}
}

func TestMergeAccumulatesSeen(t *testing.T) {
	a := New[int64](16, OnEmptyNaN)
	b := New[int64](16, OnEmptyNaN)
	for i := range int64(1000) {
		a.Insert(i)
		b.Insert(i)
	}

	a.Merge(b)

	if a.Seen() != 2000 {
		t.Errorf("Seen() = %d, want 2000", a.Seen())
	}
	if a.Len() != 16 {
		t.Errorf("Len() = %d, want 16", a.Len())
	}
}

func TestQuerySealsReservoir(t *testing.T) {
	r := New[float64](8, OnEmptyNaN)
	r.Insert(1)
	r.QuantileInterpolated(0.5)

	if !r.Sealed() {
		t.Fatal("reservoir not sealed after query")
	}

	assertPanics(t, "Insert", func() { r.Insert(2) })
	assertPanics(t, "Merge", func() { r.Merge(New[float64](8, OnEmptyNaN)) })
}

func TestEmptyQueryDoesNotSeal(t *testing.T) {
	r := New[float64](8, OnEmptyNaN)
	r.QuantileInterpolated(0.5)

	if r.Sealed() {
		t.Fatal("empty query sealed the reservoir")
	}
	r.Insert(1) // must not panic
}

func TestMergeReadsSealedSource(t *testing.T) {
	src := New[float64](8, OnEmptyNaN)
	src.Insert(3)
	src.QuantileInterpolated(0.5)

	dst := New[float64](8, OnEmptyNaN)
	dst.Insert(1)
	dst.Merge(src)

	if dst.Seen() != 2 {
		t.Errorf("Seen() = %d, want 2", dst.Seen())
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	r := New[float64](128, OnEmptyNaN)
	for i := range 1000 {
		r.Insert(float64(i) * 0.25)
	}

	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := New[float64](1, OnEmptyNaN)
	if err := got.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Capacity() != r.Capacity() {
		t.Errorf("Capacity() = %d, want %d", got.Capacity(), r.Capacity())
	}
	if got.Seen() != r.Seen() {
		t.Errorf("Seen() = %d, want %d", got.Seen(), r.Seen())
	}

	want := r.Values()
	values := got.Values()
	if len(values) != len(want) {
		t.Fatalf("Len() = %d, want %d", len(values), len(want))
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("element %d = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestWriteSealedReadReopens(t *testing.T) {
	r := New[int32](16, OnEmptyZero)
	for _, v := range []int32{-5, 0, 5} {
		r.Insert(v)
	}
	r.QuantileInterpolated(0.5)

	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		t.Fatalf("Write on sealed reservoir: %v", err)
	}

	got := New[int32](16, OnEmptyZero)
	if err := got.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Sealed() {
		t.Fatal("deserialized reservoir is sealed")
	}
	got.Insert(10) // accumulation must be open again
}

func TestReadRejectsCorruptState(t *testing.T) {
	r := New[float64](8, OnEmptyNaN)
	r.Insert(1)

	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated header", buf.Bytes()[:10]},
		{"bad version", append([]byte{99}, buf.Bytes()[1:]...)},
		{"truncated elements", buf.Bytes()[:len(buf.Bytes())-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New[float64](8, OnEmptyNaN)
			if err := got.Read(bytes.NewReader(tt.data)); err == nil {
				t.Error("Read accepted corrupt state")
			}
		})
	}
}

func TestValueBitsRoundTrip(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		for _, v := range []float32{0, 1.5, -2.25, math.MaxFloat32} {
			if got := valueFromBits[float32](valueBits(v)); got != v {
				t.Errorf("round trip of %v = %v", v, got)
			}
		}
	})
	t.Run("int64", func(t *testing.T) {
		for _, v := range []int64{0, -1, math.MinInt64, math.MaxInt64} {
			if got := valueFromBits[int64](valueBits(v)); got != v {
				t.Errorf("round trip of %v = %v", v, got)
			}
		}
	})
	t.Run("uint64", func(t *testing.T) {
		for _, v := range []uint64{0, 1, math.MaxUint64} {
			if got := valueFromBits[uint64](valueBits(v)); got != v {
				t.Errorf("round trip of %v = %v", v, got)
			}
		}
	})
}

func assertPanics(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s on sealed reservoir did not panic", name)
		}
	}()
	fn()
}
