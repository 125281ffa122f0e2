package tracefile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"
)

var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

// maxBlocks bounds the block count of a single record.
const maxBlocks = 1 << 16

// RecordReader reads framed records from a context or maps stream.
type RecordReader struct {
	r      *bufio.Reader
	closer io.Closer
	off    int64
}

// Open wraps rc, decompressing transparently when it starts with an lz4
// frame.
func Open(rc io.ReadCloser) (*RecordReader, error) {
	br := bufio.NewReaderSize(rc, 64<<10)
	head, err := br.Peek(len(lz4Magic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading trace header: %w", err)
	}
	if bytes.Equal(head, lz4Magic) {
		br = bufio.NewReaderSize(lz4.NewReader(br), 64<<10)
	}
	return &RecordReader{r: br, closer: rc}, nil
}

// Offset is the uncompressed offset of the next record.
func (rr *RecordReader) Offset() int64 {
	return rr.off
}

// Skip discards n uncompressed bytes.
func (rr *RecordReader) Skip(n int64) error {
	got, err := rr.r.Discard(int(n))
	rr.off += int64(got)
	if err != nil {
		return fmt.Errorf("%w: skipping to offset %d: %v", ErrCorrupt, n, err)
	}
	return nil
}

// Next returns the next record. It returns io.EOF at a clean end of stream
// and ErrCorrupt for a truncated record.
func (rr *RecordReader) Next() (uint64, [][]byte, error) {
	var hdr [12]byte
	n, err := io.ReadFull(rr.r, hdr[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("%w: record header at offset %d: %v", ErrCorrupt, rr.off, err)
	}
	ts := le.Uint64(hdr[:])
	nblocks := le.Uint32(hdr[8:])
	if nblocks > maxBlocks {
		return 0, nil, fmt.Errorf("%w: %d blocks at offset %d", ErrCorrupt, nblocks, rr.off)
	}

	size := int64(len(hdr))
	blocks := make([][]byte, 0, nblocks)
	for range nblocks {
		var lenb [4]byte
		if _, err := io.ReadFull(rr.r, lenb[:]); err != nil {
			return 0, nil, fmt.Errorf("%w: block length at offset %d: %v", ErrCorrupt, rr.off+size, err)
		}
		b := make([]byte, le.Uint32(lenb[:]))
		if _, err := io.ReadFull(rr.r, b); err != nil {
			return 0, nil, fmt.Errorf("%w: block of %d bytes at offset %d: %v", ErrCorrupt, len(b), rr.off+size, err)
		}
		size += int64(4 + len(b))
		blocks = append(blocks, b)
	}
	rr.off += size
	return ts, blocks, nil
}

func (rr *RecordReader) Close() error {
	return rr.closer.Close()
}

type readOptions struct {
	payload bool
}

type ReadOption func(*readOptions)

// WithPayload controls whether thread contexts and memory regions are
// decoded. Without payload only headers and extras are kept; LoadEvent
// fetches the rest on demand.
func WithPayload(payload bool) ReadOption {
	return func(o *readOptions) {
		o.payload = payload
	}
}

func newReadOptions(opts []ReadOption) readOptions {
	o := readOptions{payload: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type pairKey struct {
	tid int32
	nr  int
}

// ReadEvents builds the ordered event table of a context stream and
// pairs every syscall exit with the nearest unmatched enter of the same
// thread and number. It also returns the uncompressed offset of every
// record. A truncated tail is logged and ends the table.
func ReadEvents(rr *RecordReader, logger *zap.Logger, opts ...ReadOption) ([]Event, []int64, error) {
	o := newReadOptions(opts)

	var (
		events  []Event
		offsets []int64
		open    = map[pairKey][]int{}
	)
	for {
		off := rr.Offset()
		ts, blocks, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(events) == 0 {
				return nil, nil, err
			}
			logger.Warn("trace ends with a truncated record", zap.Int64("offset", off), zap.Error(err))
			break
		}

		ev, err := decodeEvent(ts, blocks, o.payload)
		if err != nil {
			return nil, nil, fmt.Errorf("event %d at offset %d: %w", len(events), off, err)
		}
		ev.Index = len(events)

		if nr, exit, ok := ev.Type.Syscall(); ok {
			key := pairKey{tid: ev.Tid, nr: nr}
			if !exit {
				open[key] = append(open[key], ev.Index)
			} else if stack := open[key]; len(stack) > 0 {
				enter := &events[stack[len(stack)-1]]
				open[key] = stack[:len(stack)-1]

				res, _ := ev.ExitResult()
				enter.Paired, ev.Paired = true, true
				enter.Peer, ev.Peer = ev.Index, enter.Index
				enter.Result, ev.Result = res, res
				if ev.Timestamp >= enter.Timestamp {
					enter.Duration = ev.Timestamp - enter.Timestamp
					ev.Duration = enter.Duration
				}
			} else {
				logger.Error("syscall exit without matching enter",
					zap.Int("event", ev.Index),
					zap.Int32("tid", ev.Tid),
					zap.Int("syscall", nr),
					zap.Uint64("ts", ev.Timestamp))
			}
		}

		events = append(events, ev)
		offsets = append(offsets, off)
	}
	return events, offsets, nil
}

// MapsTable is the ordered table of complete maps snapshots. Static info
// is kept apart since it is recorded once per image, possibly in a
// snapshot that is itself incomplete.
type MapsTable struct {
	Snapshots []MapsSnapshot
	statics   []staticAt
}

type staticAt struct {
	ts   uint64
	info *StaticInfo
}

// ReadMaps builds the maps table from a maps stream. Snapshots with no
// resolved loader debug info are dropped.
func ReadMaps(rr *RecordReader, logger *zap.Logger) (*MapsTable, error) {
	t := &MapsTable{}
	for {
		off := rr.Offset()
		ts, blocks, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("maps stream ends with a truncated record", zap.Int64("offset", off), zap.Error(err))
			break
		}
		s, err := decodeSnapshot(ts, blocks)
		if err != nil {
			return nil, fmt.Errorf("maps snapshot at offset %d: %w", off, err)
		}
		if s.Static != nil {
			t.statics = append(t.statics, staticAt{ts: ts, info: s.Static})
		}
		if !s.Complete() {
			logger.Debug("dropping incomplete maps snapshot",
				zap.Uint64("ts", ts),
				zap.Int("modules", len(s.Modules)),
				zap.Int("link_maps", len(s.Debug.LinkMaps)))
			continue
		}
		t.Snapshots = append(t.Snapshots, s)
	}
	return t, nil
}

// At returns the latest complete snapshot taken at or before ts.
func (t *MapsTable) At(ts uint64) (*MapsSnapshot, bool) {
	for i := len(t.Snapshots) - 1; i >= 0; i-- {
		if t.Snapshots[i].Timestamp <= ts {
			return &t.Snapshots[i], true
		}
	}
	return nil, false
}

// Static returns the static info in effect at ts: the latest one recorded
// at or before ts, or the first one when ts predates them all.
func (t *MapsTable) Static(ts uint64) (*StaticInfo, bool) {
	if len(t.statics) == 0 {
		return nil, false
	}
	for i := len(t.statics) - 1; i >= 0; i-- {
		if t.statics[i].ts <= ts {
			return t.statics[i].info, true
		}
	}
	return t.statics[0].info, true
}

// Len is the number of complete snapshots.
func (t *MapsTable) Len() int {
	return len(t.Snapshots)
}
