//go:build linux

package tracer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/xid"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/coretrace/coretrace/pkg/arch"
	"github.com/coretrace/coretrace/pkg/binutils"
	"github.com/coretrace/coretrace/pkg/process"
	"github.com/coretrace/coretrace/pkg/synq"
	"github.com/coretrace/coretrace/pkg/syscalls"
	"github.com/coretrace/coretrace/pkg/tracefile"
)

var (
	ErrNoThreads = errors.New("no traced threads")
	ErrNoTarget  = errors.New("no target: call Launch or Attach before Run")

	errTasksChanged = errors.New("task set changed while attaching")
)

const (
	DefaultMaxStack = 64 << 10
	DefaultMaxParam = 4 << 10
	DefaultCapBump  = 16 << 20

	// companion-length pointer arguments are clamped to this
	maxRegion = 16 << 20
)

// Config is the capture policy of a session.
type Config struct {
	// Dir receives context.<pid> and maps.<pid> for every traced process.
	Dir    string
	Writer tracefile.WriterOptions
	// CapBump is added to the context size cap on a fatal signal.
	CapBump uint64

	MaxStack uint64
	MaxParam uint64
	// TLSSize bytes around each thread pointer are captured; 0 disables.
	TLSSize uint64

	// BreakAt names a function; capture stays off until it is first hit.
	BreakAt string
	// ModuleData queues every module's .data and .bss on fatal signals.
	ModuleData bool
	// Signals are recorded when delivered. Fatal signals always are.
	Signals []unix.Signal

	// Control enables the per-process control socket when set.
	Control *ControlConfig
}

type ControlConfig struct {
	Dir    string
	ShmDir string
}

// Option overrides a collaborator of the session.
type Option func(*Session)

func WithPtrace(pt Ptrace) Option { return func(s *Session) { s.pt = pt } }

func WithProcFS(p *process.ProcFS) Option { return func(s *Session) { s.procfs = p } }

func WithIdentityCache(c *binutils.IdentityCache) Option { return func(s *Session) { s.cache = c } }

func WithNumberSet(set *syscalls.NumberSet) Option {
	return func(s *Session) { s.filter.Store(set) }
}

func WithArch(a arch.Arch) Option { return func(s *Session) { s.arch = a } }

// WithFs sets the filesystem the trace files are created on.
func WithFs(fs afero.Fs) Option { return func(s *Session) { s.fs = fs } }

func WithClock(now func() time.Time) Option { return func(s *Session) { s.clock = now } }

// WithID fixes the session id, e.g. to match a directory already named
// after it.
func WithID(id xid.ID) Option { return func(s *Session) { s.id = id } }

type target struct {
	argv []string
	pid  int
}

// Session owns one traced process tree. Everything but the stop flag and
// the swappable filters is confined to the goroutine running Run.
type Session struct {
	id     xid.ID
	logger *zap.Logger
	cfg    Config

	arch   arch.Arch
	table  *syscalls.Table
	pt     Ptrace
	procfs *process.ProcFS
	cache  *binutils.IdentityCache
	fs     afero.Fs
	clock  func() time.Time

	filter  atomic.Pointer[syscalls.NumberSet]
	signals atomic.Pointer[mapset.Set[unix.Signal]]

	procs    *synq.Map[int, *Process]
	threads  map[int]*thread
	queued   []Status
	rejected mapset.Set[string]

	observers []Observer

	target *target
	ctx    context.Context
	lastTS uint64

	stopping atomic.Bool
	wakeTid  atomic.Int64
	wakeups  atomic.Int32
}

func NewSession(logger *zap.Logger, cfg Config, opts ...Option) (*Session, error) {
	if cfg.MaxStack == 0 {
		cfg.MaxStack = DefaultMaxStack
	}
	if cfg.MaxParam == 0 {
		cfg.MaxParam = DefaultMaxParam
	}
	if cfg.CapBump == 0 {
		cfg.CapBump = DefaultCapBump
	}

	s := &Session{
		id:       xid.New(),
		cfg:      cfg,
		procs:    synq.NewMap[int, *Process](),
		threads:  make(map[int]*thread),
		rejected: mapset.NewThreadUnsafeSet[string](),
		clock:    time.Now,
	}
	s.UpdateSignals(cfg.Signals)
	for _, opt := range opts {
		opt(s)
	}

	if s.arch == nil {
		a, err := arch.Host()
		if err != nil {
			return nil, err
		}
		s.arch = a
	}
	table, err := syscalls.NewTable(s.arch.Name())
	if err != nil {
		return nil, err
	}
	s.table = table
	if s.filter.Load() == nil {
		s.filter.Store(syscalls.AllSet())
	}
	if s.pt == nil {
		s.pt = NewKernelPtrace(process.DefaultRoot)
	}
	if s.procfs == nil {
		s.procfs = process.NewProcFS()
	}
	if s.cache == nil {
		if s.cache, err = binutils.NewIdentityCache(0); err != nil {
			return nil, err
		}
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}

	s.logger = logger.With(zap.Stringer("session", s.id), zap.String("arch", s.arch.Name()))
	return s, nil
}

func (s *Session) ID() xid.ID { return s.id }

func (s *Session) Table() *syscalls.Table { return s.table }

// Pids lists the processes currently traced. It is safe to call from any
// goroutine.
func (s *Session) Pids() []int { return s.procs.Keys() }

// UpdateFilter swaps the set of recorded syscalls.
func (s *Session) UpdateFilter(set *syscalls.NumberSet) {
	s.filter.Store(set)
}

// UpdateSignals swaps the whitelist of recorded non-fatal signals.
func (s *Session) UpdateSignals(sigs []unix.Signal) {
	set := mapset.NewSet(sigs...)
	s.signals.Store(&set)
}

// Launch arranges for Run to start argv under trace.
func (s *Session) Launch(argv []string) {
	s.target = &target{argv: argv}
}

// Attach arranges for Run to attach to every task of pid.
func (s *Session) Attach(pid int) {
	s.target = &target{pid: pid}
}

// Stop asks Run to detach and return. It is safe to call from any
// goroutine.
func (s *Session) Stop() {
	if s.stopping.CompareAndSwap(false, true) {
		s.wake()
	}
}

// Run traces the target until every thread is gone or ctx is done, then
// detaches what is left and closes every stream.
func (s *Session) Run(ctx context.Context) error {
	if s.target == nil {
		return ErrNoTarget
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	s.ctx = ctx

	var err error
	if len(s.target.argv) > 0 {
		err = s.launch(s.target.argv)
	} else {
		err = s.attach(s.target.pid)
	}
	if err != nil {
		return multierr.Append(err, s.shutdown())
	}

	done := make(chan struct{})
	var wg conc.WaitGroup
	wg.Go(func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	})

	err = s.loop()
	close(done)
	wg.Wait()
	return multierr.Append(err, s.shutdown())
}

// wake interrupts a blocked Wait by stopping one traced thread; that stop
// is swallowed.
func (s *Session) wake() {
	tid := int(s.wakeTid.Load())
	if tid <= 0 {
		return
	}
	s.wakeups.Add(1)
	if err := s.pt.Tgkill(tid, tid, unix.SIGSTOP); err != nil {
		s.wakeups.Add(-1)
		s.logger.Debug("waking supervisor", zap.Int("tid", tid), zap.Error(err))
	}
}

func (s *Session) launch(argv []string) error {
	pid, err := s.pt.Launch(argv, os.Environ(), "")
	if err != nil {
		return fmt.Errorf("launching %s: %w", argv[0], err)
	}
	st, err := s.waitFor(pid)
	if err != nil {
		return fmt.Errorf("waiting for %d to exec: %w", pid, err)
	}
	if !st.Stopped() {
		return fmt.Errorf("%s did not stop after exec: %s", argv[0], st)
	}
	if err := s.pt.SetOptions(pid, launchOptions); err != nil {
		return fmt.Errorf("setting ptrace options on %d: %w", pid, err)
	}

	p, err := s.newProcess(pid)
	if err != nil {
		return err
	}
	th := s.addThread(p, pid)
	th.stopped = true

	s.logger.Info("launched tracee", zap.Int("pid", pid), zap.Strings("argv", argv))
	s.startImage(p, th, tracefile.ReasonExec)
	s.resume(th, 0)
	return nil
}

func (s *Session) attach(pid int) error {
	attached := map[int]bool{}
	op := func() error {
		tids, err := s.procfs.Tasks(pid)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("listing tasks of %d: %w", pid, err))
		}
		added := 0
		for _, tid := range tids {
			if attached[tid] {
				continue
			}
			if err := s.pt.Attach(tid); err != nil {
				if errors.Is(err, unix.ESRCH) {
					continue
				}
				return backoff.Permanent(fmt.Errorf("attaching to %d: %w", tid, err))
			}
			attached[tid] = true
			added++
			if err := s.awaitAttach(tid); err != nil {
				delete(attached, tid)
				s.logger.Debug("task vanished while attaching", zap.Int("tid", tid), zap.Error(err))
				continue
			}
			if err := s.pt.SetOptions(tid, ptraceOptions); err != nil {
				return backoff.Permanent(fmt.Errorf("setting ptrace options on %d: %w", tid, err))
			}
		}
		if added > 0 {
			return errTasksChanged
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	err := backoff.Retry(op, b)

	if len(attached) == 0 {
		return multierr.Append(err, fmt.Errorf("%w: pid %d", ErrNoThreads, pid))
	}

	// every attached task is stopped from here on and must be tracked
	// so shutdown can detach it even when attaching failed midway
	p, perr := s.newProcess(pid)
	if perr != nil {
		for tid := range attached {
			_ = s.pt.Detach(tid, 0)
		}
		return multierr.Append(err, perr)
	}
	for tid := range attached {
		s.addThread(p, tid).stopped = true
	}
	if err != nil && !errors.Is(err, errTasksChanged) {
		return err
	}

	lead := p.threads[pid]
	if lead == nil {
		lead = p.sorted()[0]
	}
	s.logger.Info("attached to tracee", zap.Int("pid", pid), zap.Int("threads", len(p.threads)))
	s.startImage(p, lead, tracefile.ReasonAttach)
	for _, th := range p.sorted() {
		s.resume(th, 0)
	}
	return nil
}

// awaitAttach consumes the SIGSTOP that PTRACE_ATTACH sends.
func (s *Session) awaitAttach(tid int) error {
	for {
		st, err := s.waitFor(tid)
		if err != nil {
			return err
		}
		if !st.Stopped() {
			return fmt.Errorf("task %d: %s", tid, st)
		}
		if st.Kind == SignalStop && st.Signal == unix.SIGSTOP {
			return nil
		}
		// anything else is still a stop; let it run on to the SIGSTOP
		if err := s.pt.Syscall(tid, 0); err != nil {
			return err
		}
	}
}

// startImage records the initial state of a freshly launched or attached
// process image.
func (s *Session) startImage(p *Process, th *thread, reason tracefile.Reason) {
	p.capture = s.cfg.BreakAt == "" || p.breakHit
	s.rescan(p)
	s.installBreakpoints(p)
	if p.capture {
		s.record(p, th, tracefile.ReasonEvent(reason), []byte(p.exe))
	}
	if p.started {
		s.notify(p, "replaced", Observer.ProcessReplaced)
	} else {
		s.started(p)
	}
}

func (s *Session) loop() error {
	for len(s.threads) > 0 {
		if s.stopping.Load() {
			return nil
		}
		st, err := s.next()
		if err != nil {
			if errors.Is(err, unix.ECHILD) {
				return nil
			}
			return fmt.Errorf("waiting for tracees: %w", err)
		}
		s.dispatch(st)
	}
	return nil
}

func (s *Session) next() (Status, error) {
	if len(s.queued) > 0 {
		st := s.queued[0]
		s.queued = s.queued[1:]
		if th := s.threads[st.Tid]; th != nil {
			th.queued = false
		}
		return st, nil
	}
	wpid, ws, err := s.pt.Wait(-1)
	if err != nil {
		return Status{}, err
	}
	return Decode(wpid, ws), nil
}

func (s *Session) waitFor(tid int) (Status, error) {
	wpid, ws, err := s.pt.Wait(tid)
	if err != nil {
		return Status{}, err
	}
	return Decode(wpid, ws), nil
}

func (s *Session) dispatch(st Status) {
	th := s.threads[st.Tid]
	if th == nil {
		if !st.Stopped() {
			return
		}
		if th = s.adopt(st.Tid); th == nil {
			_ = s.pt.Syscall(st.Tid, 0)
			return
		}
	}

	if !st.Stopped() {
		s.reap(th, st)
		return
	}

	th.stopped = true
	p := th.proc
	if p.rescanDue {
		s.rescan(p)
		s.installBreakpoints(p)
	}
	s.pollControl(p)

	var sig unix.Signal
	switch st.Kind {
	case SyscallStop:
		s.onSyscallStop(th)
	case PtraceEvent:
		th = s.onEvent(th, st.Event)
	case GroupStop:
		s.logger.Debug("group-stop", zap.Int("tid", th.tid), zap.Stringer("signal", st.Signal))
	case SignalStop:
		sig = s.onSignal(th, st.Signal)
	}
	th.fresh = false
	s.resume(th, sig)
}

// adopt starts tracking a task whose first stop arrived before the event
// announcing it.
func (s *Session) adopt(tid int) *thread {
	status, err := s.procfs.Status(tid)
	if err != nil {
		s.logger.Debug("stop from unknown task", zap.Int("tid", tid), zap.Error(err))
		return nil
	}
	if p, ok := s.procs.Load(status.Tgid); ok {
		th := s.addThread(p, tid)
		th.fresh = true
		return th
	}
	if status.Tgid != tid {
		s.logger.Debug("stop from thread of untraced process", zap.Int("tid", tid), zap.Int("tgid", status.Tgid))
		return nil
	}
	var parent *Process
	if pp, ok := s.procs.Load(status.PPid); ok {
		parent = pp
	}
	p, err := s.forkProcess(tid, parent)
	if err != nil {
		s.logger.Error("tracing new process", zap.Int("pid", tid), zap.Error(err))
		return nil
	}
	th := s.addThread(p, tid)
	th.fresh = true
	return th
}

func (s *Session) resume(th *thread, sig unix.Signal) {
	if !th.stopped || th.queued || th.gone {
		return
	}
	if s.stopping.Load() {
		if sig != 0 {
			th.deliver = sig
		}
		return
	}
	th.regsOK = false
	th.held = false
	th.stopped = false
	if err := s.pt.Syscall(th.tid, sig); err != nil {
		// ESRCH: the thread was killed while stopped; its exit follows
		s.logger.Debug("resuming thread", zap.Int("tid", th.tid), zap.Error(err))
	}
}

func (s *Session) reap(th *thread, st Status) {
	p := th.proc
	th.gone = true
	delete(s.threads, th.tid)
	delete(p.threads, th.tid)

	if st.Kind == FatalSignal {
		s.logger.Info("thread killed", zap.Int("pid", p.Pid), zap.Int("tid", th.tid), zap.Stringer("signal", st.Signal))
	} else {
		s.logger.Debug("thread exited", zap.Int("pid", p.Pid), zap.Int("tid", th.tid), zap.Int("code", st.Code))
	}

	if len(p.threads) == 0 {
		if err := s.closeProcess(p); err != nil {
			s.logger.Error("closing trace of exited process", zap.Int("pid", p.Pid), zap.Error(err))
		}
	}
}

// shutdown detaches every remaining thread and closes every stream.
func (s *Session) shutdown() error {
	for _, st := range s.queued {
		if th := s.threads[st.Tid]; th != nil && st.Kind == SignalStop && st.Signal != unix.SIGSTOP {
			th.deliver = st.Signal
		}
	}
	s.queued = nil

	for _, th := range s.threads {
		s.detach(th)
	}

	var err error
	for _, p := range s.procs.Copy() {
		err = multierr.Append(err, s.closeProcess(p))
	}
	s.threads = make(map[int]*thread)
	return err
}

// detach brings th to a stop with none of our SIGSTOPs outstanding and
// releases it, delivering any signal it was stopped with.
func (s *Session) detach(th *thread) {
	if !th.stopped {
		if err := s.pt.Tgkill(th.proc.Pid, th.tid, unix.SIGSTOP); err != nil {
			return
		}
		th.sigstops++
	}

	for range 16 {
		wakeDue := th.tid == int(s.wakeTid.Load()) && s.wakeups.Load() > 0
		if th.stopped && th.sigstops == 0 && !wakeDue {
			break
		}
		if th.stopped {
			if err := s.pt.Syscall(th.tid, th.deliver); err != nil {
				return
			}
			th.stopped, th.deliver = false, 0
		}
		st, err := s.waitFor(th.tid)
		if err != nil || !st.Stopped() {
			return
		}
		th.stopped = true
		if st.Kind != SignalStop {
			continue
		}
		switch {
		case st.Signal != unix.SIGSTOP:
			th.deliver = st.Signal
		case th.sigstops > 0:
			th.sigstops--
		case wakeDue:
			s.wakeups.Add(-1)
		default:
			th.deliver = unix.SIGSTOP
		}
	}

	if th.stopped {
		if err := s.pt.Detach(th.tid, th.deliver); err != nil {
			s.logger.Debug("detaching thread", zap.Int("tid", th.tid), zap.Error(err))
		}
	}
}

// now returns a strictly increasing wall-clock timestamp in nanoseconds.
func (s *Session) now() uint64 {
	ts := uint64(s.clock().UnixNano())
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// Processes lists the pids currently traced.
func (s *Session) Processes() []int {
	var out []int
	s.procs.Iter(func(pid int, _ *Process) bool {
		out = append(out, pid)
		return true
	})
	return out
}
