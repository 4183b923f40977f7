package sample

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/xtxerr/centile/internal/column"
	"github.com/xtxerr/centile/internal/errors"
)

// Reservoir state encoding (binary, little-endian):
// - Version (1 byte)
// - Capacity (8 bytes)
// - Seen count (8 bytes)
// - Retained count (4 bytes)
// - Retained elements (8 bytes each, see valueBits)
//
// The encoding is self-describing: a reservoir reconstructed from it merges
// and queries exactly like the original. Elements are stored as 8-byte words
// regardless of kind so the round trip is bit-exact for every supported kind
// (float32 widens to float64 losslessly, integers are sign-extended).

const encodingVersion = 1

// maxEncodedElements bounds the retained count accepted during decoding.
// It guards against corrupted streams, not legitimate configurations.
const maxEncodedElements = 1 << 26

// Write serializes the reservoir state. The retained set is written as-is;
// sorting performed by a previous query does not change what is encoded.
func (r *Reservoir[T]) Write(w io.Writer) error {
	buf := make([]byte, 0, 21+8*len(r.items))

	buf = append(buf, encodingVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.capacity))
	buf = binary.LittleEndian.AppendUint64(buf, r.seen)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.items)))

	for _, v := range r.items {
		buf = binary.LittleEndian.AppendUint64(buf, valueBits(v))
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write reservoir state: %w", err)
	}
	return nil
}

// Read replaces the reservoir state with one previously produced by Write.
// The on-empty policy is configuration, not state, and is left untouched.
// Reading reopens the accumulation phase.
func (r *Reservoir[T]) Read(rd io.Reader) error {
	var header [21]byte
	if _, err := io.ReadFull(rd, header[:]); err != nil {
		return errors.Wrap(errors.ErrBadStateData, "read reservoir header")
	}

	if header[0] != encodingVersion {
		return errors.Wrapf(errors.ErrBadStateData,
			"unsupported state version %d", header[0])
	}

	capacity := binary.LittleEndian.Uint64(header[1:9])
	seen := binary.LittleEndian.Uint64(header[9:17])
	count := binary.LittleEndian.Uint32(header[17:21])

	if capacity == 0 || capacity > maxEncodedElements {
		return errors.Wrapf(errors.ErrBadStateData,
			"implausible capacity %d", capacity)
	}
	if uint64(count) > capacity || uint64(count) > seen {
		return errors.Wrapf(errors.ErrBadStateData,
			"retained count %d exceeds capacity %d or seen %d",
			count, capacity, seen)
	}

	elems := make([]byte, 8*int(count))
	if _, err := io.ReadFull(rd, elems); err != nil {
		return errors.Wrap(errors.ErrBadStateData, "read reservoir elements")
	}

	items := make([]T, count)
	for i := range items {
		items[i] = valueFromBits[T](binary.LittleEndian.Uint64(elems[8*i:]))
	}

	r.capacity = int(capacity)
	r.seen = seen
	r.items = items
	r.sealed = false
	return nil
}

// valueBits encodes a value into an 8-byte word. Floating kinds are stored as
// IEEE-754 float64 bits (float32 to float64 widening is exact); integral
// kinds as two's-complement int64.
func valueBits[T column.Numeric](v T) uint64 {
	switch x := any(v).(type) {
	case float64:
		return math.Float64bits(x)
	case float32:
		return math.Float64bits(float64(x))
	case int8:
		return uint64(int64(x))
	case int16:
		return uint64(int64(x))
	case int32:
		return uint64(int64(x))
	case int64:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	default:
		panic("sample: unreachable value kind")
	}
}

// valueFromBits is the inverse of valueBits.
func valueFromBits[T column.Numeric](bits uint64) T {
	var zero T
	switch any(zero).(type) {
	case float64:
		return T(math.Float64frombits(bits))
	case float32:
		return T(math.Float64frombits(bits))
	case int8, int16, int32, int64:
		return T(int64(bits))
	default: // unsigned kinds
		return T(bits)
	}
}
