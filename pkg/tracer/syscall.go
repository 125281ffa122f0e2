//go:build linux

package tracer

import (
	"debug/elf"
	"encoding/binary"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/coretrace/coretrace/pkg/tracefile"
)

func (s *Session) onSyscallStop(th *thread) {
	regs, err := s.regs(th)
	if err != nil {
		s.logger.Debug("reading registers at syscall stop", zap.Int("tid", th.tid), zap.Error(err))
		return
	}
	nr := s.arch.SyscallNumber(regs)

	switch {
	case th.pending < 0:
		s.enter(th, nr, regs)
	case th.pending != nr:
		// the pending call never reported its exit, typically because a
		// signal interrupted it
		s.logger.Debug("syscall stop out of sequence",
			zap.Int("tid", th.tid), zap.String("pending", s.table.Name(th.pending)), zap.String("seen", s.table.Name(nr)))
		s.exit(th, th.pending, -int64(unix.EINTR), false)
		s.enter(th, nr, regs)
	default:
		s.exit(th, nr, s.arch.SyscallResult(regs), true)
	}
}

func (s *Session) enter(th *thread, nr int, regs []byte) {
	th.pending = nr
	th.args = s.arch.SyscallArgs(regs)

	p := th.proc
	if s.recordable(p, nr) {
		s.queuePointers(p, th, nr)
		s.record(p, th, tracefile.SyscallEnter(nr), tracefile.EnterExtra(th.args))
	}
	if s.isClone(nr) {
		s.followClone(th)
	}
}

func (s *Session) exit(th *thread, nr int, result int64, observed bool) {
	th.pending = -1
	p := th.proc
	if s.recordable(p, nr) {
		s.record(p, th, tracefile.SyscallExit(nr), tracefile.ExitExtra(result))
	}
	if observed && s.mapsChanged(nr, th.args, result) {
		s.rescan(p)
		s.installBreakpoints(p)
	}
}

func (s *Session) recordable(p *Process, nr int) bool {
	return p.capture && nr >= 0 && nr < s.table.Max() && s.filter.Load().Contains(nr)
}

func (s *Session) isClone(nr int) bool {
	return s.table.IsAny(nr, "clone", "clone3", "fork", "vfork")
}

// mapsChanged reports syscalls after which the address space must be
// rescanned, whatever the filter says.
func (s *Session) mapsChanged(nr int, args [6]uint64, result int64) bool {
	switch {
	case s.table.IsAny(nr, "brk", "mremap"), s.isClone(nr):
		return true
	case s.table.IsAny(nr, "mmap", "mmap2"):
		if result < 0 && result > -4096 {
			return false
		}
		prot, flags := args[2], args[3]
		return prot&unix.PROT_EXEC != 0 || flags&unix.MAP_ANONYMOUS != 0
	}
	return false
}

// followClone steps th from the clone enter stop to the ptrace event
// announcing the child. Anything else that shows up instead is left for
// the main loop.
func (s *Session) followClone(th *thread) {
	if err := s.pt.Syscall(th.tid, 0); err != nil {
		s.logger.Warn("stepping into clone", zap.Int("tid", th.tid), zap.Error(err))
		return
	}
	th.stopped, th.regsOK = false, false

	st, err := s.waitFor(th.tid)
	if err != nil {
		s.logger.Warn("waiting for clone event", zap.Int("tid", th.tid), zap.Error(err))
		return
	}
	if st.Kind == PtraceEvent && isCloneEvent(st.Event) {
		th.stopped = true
		s.onClone(th, st.Event)
		return
	}
	// a failed clone reports its exit stop directly
	if st.Stopped() {
		th.stopped, th.queued = true, true
	}
	s.queued = append(s.queued, st)
}

func isCloneEvent(e int) bool {
	return e == unix.PTRACE_EVENT_CLONE || e == unix.PTRACE_EVENT_FORK || e == unix.PTRACE_EVENT_VFORK
}

func (s *Session) onEvent(th *thread, event int) *thread {
	switch event {
	case unix.PTRACE_EVENT_CLONE, unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK:
		s.onClone(th, event)
	case unix.PTRACE_EVENT_EXEC:
		return s.onExec(th)
	case unix.PTRACE_EVENT_EXIT:
		s.onExit(th)
	case unix.PTRACE_EVENT_SECCOMP:
		s.onSeccomp(th)
	}
	return th
}

func (s *Session) onClone(parent *thread, event int) {
	msg, err := s.pt.GetEventMsg(parent.tid)
	if err != nil {
		s.logger.Warn("reading new task id", zap.Int("tid", parent.tid), zap.Error(err))
		return
	}
	child := int(msg)
	if _, known := s.threads[child]; known {
		return
	}

	p := parent.proc
	isThread := event == unix.PTRACE_EVENT_CLONE && s.cloneFlags(parent)&unix.CLONE_THREAD != 0
	if isThread {
		s.addThread(p, child).fresh = true
	} else {
		np, err := s.forkProcess(child, p)
		if err != nil {
			s.logger.Error("tracing new process", zap.Int("pid", child), zap.Error(err))
			return
		}
		s.addThread(np, child).fresh = true
	}
	s.logger.Debug("new task", zap.Int("parent", parent.tid), zap.Int("child", child), zap.Bool("thread", isThread))

	if p.capture {
		info := tracefile.CloneInfo{Child: int32(child), Thread: isThread}
		s.record(p, parent, tracefile.ReasonEvent(tracefile.ReasonClone), info.Encode())
	}
}

// cloneFlags reads the flags of the clone call th is stopped in.
func (s *Session) cloneFlags(th *thread) uint64 {
	switch {
	case s.table.Is(th.pending, "clone"):
		return th.args[0]
	case s.table.Is(th.pending, "clone3"):
		// struct clone_args starts with a u64 flags field
		b, ok := s.readExact(th.proc, th.args[0], 8)
		if !ok {
			return 0
		}
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// onExec resets the process after a successful execve. When a non-leader
// thread called it, the kernel has already renamed that thread to the
// thread group id.
func (s *Session) onExec(th *thread) *thread {
	p := th.proc
	msg, err := s.pt.GetEventMsg(th.tid)
	if err != nil {
		s.logger.Debug("reading former exec tid", zap.Int("tid", th.tid), zap.Error(err))
		msg = uint64(th.tid)
	}

	pending, args := th.pending, th.args
	if former, ok := s.threads[int(msg)]; ok && former != th {
		pending, args = former.pending, former.args
	}
	for tid, other := range p.threads {
		if other != th {
			other.gone = true
			delete(p.threads, tid)
			delete(s.threads, tid)
		}
	}
	// the execve exit stop is still to come
	th.pending, th.args = pending, args
	th.regsOK = false

	p.resetImage()
	s.logger.Info("exec", zap.Int("pid", p.Pid), zap.Int("former", int(msg)))
	s.startImage(p, th, tracefile.ReasonExec)
	return th
}

func (s *Session) onExit(th *thread) {
	status, err := s.pt.GetEventMsg(th.tid)
	if err != nil {
		s.logger.Debug("reading exit status", zap.Int("tid", th.tid), zap.Error(err))
		return
	}
	p := th.proc
	if p.capture {
		s.record(p, th, tracefile.ReasonEvent(tracefile.ReasonExit), tracefile.ExitStatus(int32(status)))
	}
}

func (s *Session) onSeccomp(th *thread) {
	data, err := s.pt.GetEventMsg(th.tid)
	if err != nil {
		s.logger.Debug("reading seccomp data", zap.Int("tid", th.tid), zap.Error(err))
		return
	}
	p := th.proc
	if p.capture {
		s.record(p, th, tracefile.ReasonEvent(tracefile.ReasonSeccomp), binary.LittleEndian.AppendUint64(nil, data))
	}
}

// regs returns the GP registers of a stopped thread, reading them once
// per stop.
func (s *Session) regs(th *thread) ([]byte, error) {
	if th.regsOK {
		return th.regs, nil
	}
	if cap(th.regs) < s.arch.RegsSize() {
		th.regs = make([]byte, s.arch.RegsSize())
	}
	buf := th.regs[:s.arch.RegsSize()]
	n, err := s.pt.GetRegSet(th.tid, elf.NT_PRSTATUS, buf)
	if err != nil {
		return nil, err
	}
	th.regs, th.regsOK = buf[:n], true
	return th.regs, nil
}
