// Package wire provides framing for partial aggregation state.
//
// A partial-state stream is a sequence of length-delimited frames, one per
// aggregation group: the group key followed by the group's serialized sample
// state. The payload bytes are opaque to this package; their layout belongs
// to the sample encoding. Framing lets independently accumulated partials
// move across a process or network boundary and be merged elsewhere.
//
// Frame layout (binary, little-endian):
//   - Group key length (4 bytes) + group key bytes
//   - State length (4 bytes) + state bytes
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/xtxerr/centile/internal/errors"
)

// MaxFrameSize limits a single frame to prevent OOM on corrupted streams.
// 64 MiB is far beyond any reasonable reservoir state.
const MaxFrameSize = 64 * 1024 * 1024

// MaxKeySize limits the group key length within a frame.
const MaxKeySize = 64 * 1024

// Frame is one group's serialized partial state.
type Frame struct {
	Group string
	State []byte
}

// Writer writes length-delimited state frames to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  *bufio.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes one frame.
func (w *Writer) Write(f Frame) error {
	if len(f.Group) > MaxKeySize {
		return errors.Wrapf(errors.ErrFrameTooLarge,
			"group key %d bytes", len(f.Group))
	}
	if len(f.State) > MaxFrameSize {
		return errors.Wrapf(errors.ErrFrameTooLarge,
			"state %d bytes", len(f.State))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var lenBuf [4]byte

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f.Group)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write key length: %w", err)
	}
	if _, err := w.w.WriteString(f.Group); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f.State)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write state length: %w", err)
	}
	if _, err := w.w.Write(f.State); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	return nil
}

// Flush flushes buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

// Reader reads length-delimited state frames from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r  *bufio.Reader
	mu sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read reads the next frame. It returns io.EOF at a clean end of stream and
// ErrShortFrame if the stream ends mid-frame.
func (r *Reader) Read() (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lenBuf [4]byte

	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, errors.Wrap(errors.ErrShortFrame, "read key length")
	}
	keyLen := binary.LittleEndian.Uint32(lenBuf[:])
	if keyLen > MaxKeySize {
		return Frame{}, errors.Wrapf(errors.ErrFrameTooLarge,
			"group key %d bytes", keyLen)
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r.r, key); err != nil {
		return Frame{}, errors.Wrap(errors.ErrShortFrame, "read key")
	}

	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return Frame{}, errors.Wrap(errors.ErrShortFrame, "read state length")
	}
	stateLen := binary.LittleEndian.Uint32(lenBuf[:])
	if stateLen > MaxFrameSize {
		return Frame{}, errors.Wrapf(errors.ErrFrameTooLarge,
			"state %d bytes", stateLen)
	}

	state := make([]byte, stateLen)
	if _, err := io.ReadFull(r.r, state); err != nil {
		return Frame{}, errors.Wrap(errors.ErrShortFrame, "read state")
	}

	return Frame{Group: string(key), State: state}, nil
}
