//go:build linux

package tracer

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/coretrace/coretrace/pkg/control"
	"github.com/coretrace/coretrace/pkg/tracefile"
	"github.com/coretrace/coretrace/pkg/vmem"
)

// thread is the supervisor's view of one traced task.
type thread struct {
	tid  int
	proc *Process

	// pending is the syscall number between its enter and exit stops,
	// -1 when idle.
	pending int
	args    [6]uint64

	regs   []byte
	regsOK bool

	stopped bool
	// queued: a status of this thread waits in Session.queued and the
	// thread must stay stopped until it is dispatched.
	queued bool
	// held: stopped by our SIGSTOP to freeze it during a capture.
	held bool
	// fresh: auto-attached, its initial SIGSTOP not seen yet.
	fresh bool
	// sigstops counts SIGSTOPs we sent that are still to arrive.
	sigstops int
	// deliver is the signal handed over on detach.
	deliver unix.Signal
	gone    bool
}

// Process is one traced thread group and its trace streams.
type Process struct {
	Pid int

	threads map[int]*thread
	streams *tracefile.Streams
	control *control.Server

	exe     string
	capture bool
	started bool
	// static: the next snapshot carries static info.
	static    bool
	rescanDue bool

	mappings    []vmem.Mapping
	modules     []tracefile.Module
	interesting vmem.Set

	breakHit    bool
	breakpoints map[uint64]*breakpoint
	scanned     mapset.Set[string]
}

func (p *Process) sorted() []*thread {
	out := slices.Collect(maps.Values(p.threads))
	slices.SortFunc(out, func(a, b *thread) int { return cmp.Compare(a.tid, b.tid) })
	return out
}

func (p *Process) resetImage() {
	p.mappings = nil
	p.modules = nil
	p.interesting.Reset()
	p.breakpoints = make(map[uint64]*breakpoint)
	p.scanned.Clear()
	p.static = true
}

func (s *Session) newProcess(pid int) (*Process, error) {
	streams, err := tracefile.CreateStreams(s.fs, s.cfg.Dir, pid, s.cfg.Writer)
	if err != nil {
		return nil, fmt.Errorf("creating trace of %d: %w", pid, err)
	}
	p := &Process{
		Pid:         pid,
		threads:     make(map[int]*thread),
		streams:     streams,
		static:      true,
		breakpoints: make(map[uint64]*breakpoint),
		scanned:     mapset.NewThreadUnsafeSet[string](),
	}

	if s.cfg.Control != nil {
		srv := control.NewServer(s.logger, pid, control.ServerOptions{
			Dir:          s.cfg.Control.Dir,
			ShmDir:       s.cfg.Control.ShmDir,
			Sink:         streams.Context,
			BufferConfig: s.bufferConfig,
		})
		if err := srv.Start(s.ctx); err != nil {
			s.logger.Warn("control socket unavailable", zap.Int("pid", pid), zap.Error(err))
		} else {
			p.control = srv
		}
	}

	s.procs.Store(pid, p)
	s.wakeTid.CompareAndSwap(0, int64(pid))
	processesTraced(1)
	liveProcesses.Add(1)
	return p, nil
}

// forkProcess starts tracing a child created by fork or vfork. The child
// shares the parent's image, including any planted breakpoints.
func (s *Session) forkProcess(pid int, parent *Process) (*Process, error) {
	p, err := s.newProcess(pid)
	if err != nil {
		return nil, err
	}
	p.rescanDue = true
	p.capture = s.cfg.BreakAt == ""
	if parent != nil {
		p.capture = parent.capture
		p.breakHit = parent.breakHit
		p.exe = parent.exe
		maps.Copy(p.breakpoints, parent.breakpoints)
		for _, path := range parent.scanned.ToSlice() {
			p.scanned.Add(path)
		}
	}
	s.started(p)
	return p, nil
}

func (s *Session) addThread(p *Process, tid int) *thread {
	th := &thread{tid: tid, proc: p, pending: -1}
	p.threads[tid] = th
	s.threads[tid] = th
	return th
}

func (s *Session) closeProcess(p *Process) error {
	if _, ok := s.procs.Load(p.Pid); !ok {
		return nil
	}
	s.procs.Delete(p.Pid)
	liveProcesses.Add(-1)

	var err error
	if p.control != nil {
		err = multierr.Append(err, p.control.Close())
		p.control.Wait()
	}
	err = multierr.Append(err, p.streams.Close())
	s.pt.Release(p.Pid)

	if s.wakeTid.Load() == int64(p.Pid) {
		next := int64(0)
		s.procs.Iter(func(pid int, _ *Process) bool {
			next = int64(pid)
			return false
		})
		s.wakeTid.Store(next)
	}

	s.logger.Info("trace closed", zap.Int("pid", p.Pid),
		zap.Uint64("written", p.Written()),
		zap.Uint64("dropped", p.Dropped()))
	s.notify(p, "stopped", Observer.ProcessStopped)
	return err
}

func (s *Session) bufferConfig() control.BufferConfig {
	return control.BufferConfig{
		PageSize: vmem.PageSize,
		MaxStack: uint32(s.cfg.MaxStack),
		MaxParam: uint32(s.cfg.MaxParam),
		Filter:   s.filter.Load().Bitmap(s.table.Max()),
		ABI:      s.table.Encode(),
	}
}

// pollControl applies requests the tracee made over its control socket.
func (s *Session) pollControl(p *Process) {
	if p.control == nil {
		return
	}
	if enabled, ok := p.control.TakeDump(); ok {
		p.capture = enabled
		s.logger.Debug("capture toggled by tracee", zap.Int("pid", p.Pid), zap.Bool("enabled", enabled))
	}
	if p.control.TakeUpdateMaps() {
		s.rescan(p)
		s.installBreakpoints(p)
	}
}
