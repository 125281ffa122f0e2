package tracefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/coretrace/coretrace/pkg/telemetry"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var tracer = telemetry.Tracer()

const (
	contextPrefix = "context."
	mapsPrefix    = "maps."
)

func ContextPath(dir string, pid int) string {
	return filepath.Join(dir, contextPrefix+strconv.Itoa(pid))
}

func MapsPath(dir string, pid int) string {
	return filepath.Join(dir, mapsPrefix+strconv.Itoa(pid))
}

// Streams is the pair of writers of one traced process.
type Streams struct {
	Pid     int
	Context *Writer
	Maps    *Writer
}

// CreateStreams creates the context and maps files of pid in dir.
func CreateStreams(fs afero.Fs, dir string, pid int, opts WriterOptions) (*Streams, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}

	open := func(path string, opts WriterOptions) (*Writer, error) {
		f, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}
		w, err := NewWriter(f, opts)
		if err != nil {
			return nil, multierr.Append(err, f.Close())
		}
		return w, nil
	}

	ctxw, err := open(ContextPath(dir, pid), opts)
	if err != nil {
		return nil, err
	}
	// snapshots are small and must never be capped
	mapsOpts := opts
	mapsOpts.Cap = 0
	mapsw, err := open(MapsPath(dir, pid), mapsOpts)
	if err != nil {
		return nil, multierr.Append(err, ctxw.Close())
	}
	return &Streams{Pid: pid, Context: ctxw, Maps: mapsw}, nil
}

func (s *Streams) WriteEvent(ev *Event) (bool, error) {
	return s.Context.WriteRecord(ev.Timestamp, ev.Encode()...)
}

func (s *Streams) WriteSnapshot(snap *MapsSnapshot) error {
	_, err := s.Maps.WriteRecord(snap.Timestamp, snap.Encode()...)
	return err
}

func (s *Streams) Flush() error {
	return multierr.Append(s.Context.Flush(), s.Maps.Flush())
}

func (s *Streams) Close() error {
	return multierr.Append(s.Context.Close(), s.Maps.Close())
}

// ListPids returns the pids that have a context stream in dir.
func ListPids(fs afero.Fs, dir string) ([]int, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, e := range entries {
		name, ok := strings.CutPrefix(e.Name(), contextPrefix)
		if !ok || e.IsDir() {
			continue
		}
		if pid, err := strconv.Atoi(name); err == nil {
			pids = append(pids, pid)
		}
	}
	slices.Sort(pids)
	return pids, nil
}

// Trace is the decoded trace of one process.
type Trace struct {
	Pid    int
	Events []Event
	Maps   *MapsTable

	fs      afero.Fs
	dir     string
	offsets []int64
}

// LoadTrace reads both streams of pid.
func LoadTrace(ctx context.Context, fs afero.Fs, dir string, pid int, logger *zap.Logger, opts ...ReadOption) (*Trace, error) {
	_, span := tracer.Start(ctx, "tracefile.LoadTrace")
	defer span.End()
	span.SetAttributes(attribute.Int("pid", pid), attribute.String("dir", dir))

	t, err := loadTrace(fs, dir, pid, logger, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", len(t.Events)), attribute.Int("snapshots", t.Maps.Len()))
	return t, nil
}

func loadTrace(fs afero.Fs, dir string, pid int, logger *zap.Logger, opts []ReadOption) (*Trace, error) {
	logger = logger.With(zap.Int("pid", pid))

	cf, err := fs.Open(ContextPath(dir, pid))
	if err != nil {
		return nil, fmt.Errorf("opening context stream: %w", err)
	}
	crr, err := Open(cf)
	if err != nil {
		return nil, multierr.Append(err, cf.Close())
	}
	events, offsets, err := ReadEvents(crr, logger, opts...)
	err = multierr.Append(err, crr.Close())
	if err != nil {
		return nil, fmt.Errorf("reading context stream: %w", err)
	}

	mf, err := fs.Open(MapsPath(dir, pid))
	if err != nil {
		return nil, fmt.Errorf("opening maps stream: %w", err)
	}
	mrr, err := Open(mf)
	if err != nil {
		return nil, multierr.Append(err, mf.Close())
	}
	maps, err := ReadMaps(mrr, logger)
	err = multierr.Append(err, mrr.Close())
	if err != nil {
		return nil, fmt.Errorf("reading maps stream: %w", err)
	}

	return &Trace{
		Pid:     pid,
		Events:  events,
		Maps:    maps,
		fs:      fs,
		dir:     dir,
		offsets: offsets,
	}, nil
}

// LoadEvent returns event i with its payload, re-reading it from the
// context stream when the table was loaded without payloads.
func (t *Trace) LoadEvent(i int) (*Event, error) {
	if i < 0 || i >= len(t.Events) {
		return nil, fmt.Errorf("event index %d out of range [0, %d)", i, len(t.Events))
	}
	ev := &t.Events[i]
	if ev.HasPayload {
		return ev, nil
	}

	f, err := t.fs.Open(ContextPath(t.dir, t.Pid))
	if err != nil {
		return nil, err
	}
	rr, err := Open(f)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	defer rr.Close()

	if err := rr.Skip(t.offsets[i]); err != nil {
		return nil, err
	}
	ts, blocks, err := rr.Next()
	if err != nil {
		return nil, err
	}
	full, err := decodeEvent(ts, blocks, true)
	if err != nil {
		return nil, err
	}
	ev.Threads, ev.Regions, ev.HasPayload = full.Threads, full.Regions, true
	return ev, nil
}

// LastSignal returns the index of the last signal event, or -1.
func (t *Trace) LastSignal() int {
	for i := len(t.Events) - 1; i >= 0; i-- {
		if r, ok := t.Events[i].Type.Reason(); ok && r == ReasonSignal {
			return i
		}
	}
	return -1
}
