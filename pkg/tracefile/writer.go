package tracefile

import (
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"go.uber.org/multierr"
)

type Compression string

const (
	CompressionLZ4  Compression = "lz4"
	CompressionNone Compression = "none"
)

const DefaultStagingSize = 1 << 20

type WriterOptions struct {
	// StagingSize is the size of the buffer records are staged in before
	// being handed to the compressor.
	StagingSize int
	// Cap is the hard limit on uncompressed bytes. Zero means unlimited.
	Cap         uint64
	Compression Compression
}

func (o *WriterOptions) defaults() {
	if o.StagingSize <= 0 {
		o.StagingSize = DefaultStagingSize
	}
	if o.Compression == "" {
		o.Compression = CompressionLZ4
	}
}

// Writer frames records into a staging buffer and streams them through
// the compressor whenever the buffer would overflow.
type Writer struct {
	mu      sync.Mutex
	dst     io.WriteCloser
	zw      *lz4.Writer
	out     io.Writer
	staging []byte
	cap     uint64
	written uint64
	dropped uint64
	closed  bool
}

func NewWriter(dst io.WriteCloser, opts WriterOptions) (*Writer, error) {
	opts.defaults()
	w := &Writer{
		dst:     dst,
		out:     dst,
		staging: make([]byte, 0, opts.StagingSize),
		cap:     opts.Cap,
	}

	switch opts.Compression {
	case CompressionLZ4:
		w.zw = lz4.NewWriter(dst)
		if err := w.zw.Apply(lz4.BlockSizeOption(lz4.Block4Mb), lz4.ConcurrencyOption(1)); err != nil {
			return nil, fmt.Errorf("configuring lz4 writer: %w", err)
		}
		w.out = w.zw
	case CompressionNone:
	default:
		return nil, fmt.Errorf("unknown compression %q", opts.Compression)
	}
	return w, nil
}

// RecordSize is the framed size of a record holding blocks.
func RecordSize(blocks ...[]byte) int {
	n := 12
	for _, b := range blocks {
		n += 4 + len(b)
	}
	return n
}

// WriteRecord frames and stages one record. It returns false without an
// error when the record would exceed the size cap; the record is dropped.
func (w *Writer) WriteRecord(ts uint64, blocks ...[]byte) (bool, error) {
	size := RecordSize(blocks...)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false, io.ErrClosedPipe
	}
	if !w.admit(size) {
		return false, nil
	}

	if err := w.reserve(size); err != nil {
		return false, err
	}
	rec := le.AppendUint64(w.staging, ts)
	rec = le.AppendUint32(rec, uint32(len(blocks)))
	for _, b := range blocks {
		rec = le.AppendUint32(rec, uint32(len(b)))
		rec = append(rec, b...)
	}
	return true, w.commit(rec)
}

// WriteRaw stages bytes that are already framed, such as the contents
// of a drained shared buffer.
func (w *Writer) WriteRaw(p []byte) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false, io.ErrClosedPipe
	}
	if !w.admit(len(p)) {
		return false, nil
	}
	if err := w.reserve(len(p)); err != nil {
		return false, err
	}
	return true, w.commit(append(w.staging, p...))
}

func (w *Writer) admit(size int) bool {
	if w.cap != 0 && w.written+uint64(size) > w.cap {
		w.dropped++
		return false
	}
	w.written += uint64(size)
	return true
}

// reserve makes room for size bytes in the staging buffer.
func (w *Writer) reserve(size int) error {
	if len(w.staging)+size <= cap(w.staging) {
		return nil
	}
	return w.drain()
}

// commit keeps rec staged, or writes it through when it outgrew the
// staging buffer.
func (w *Writer) commit(rec []byte) error {
	if len(rec) <= cap(w.staging) {
		w.staging = rec
		return nil
	}
	if _, err := w.out.Write(rec); err != nil {
		return fmt.Errorf("writing trace record: %w", err)
	}
	return nil
}

func (w *Writer) drain() error {
	if len(w.staging) == 0 {
		return nil
	}
	if _, err := w.out.Write(w.staging); err != nil {
		return fmt.Errorf("writing trace records: %w", err)
	}
	w.staging = w.staging[:0]
	return nil
}

// Flush pushes staged records and the compressor's pending block to the
// destination.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.drain(); err != nil {
		return err
	}
	if w.zw != nil {
		return w.zw.Flush()
	}
	return nil
}

// BumpCap raises the size cap by n bytes so a final capture can always
// be written.
func (w *Writer) BumpCap(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap != 0 {
		w.cap = max(w.cap, w.written) + n
	}
}

// Written is the number of uncompressed bytes accepted so far.
func (w *Writer) Written() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Dropped is the number of records rejected by the size cap.
func (w *Writer) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.drain()
	if w.zw != nil {
		err = multierr.Append(err, w.zw.Close())
	}
	return multierr.Append(err, w.dst.Close())
}
