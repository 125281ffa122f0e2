//go:build linux

package tracer

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/coretrace/coretrace/pkg/tracefile"
)

// fatalSignals force a full capture before they are delivered.
var fatalSignals = mapset.NewSet(
	unix.SIGSEGV, unix.SIGABRT, unix.SIGBUS, unix.SIGILL, unix.SIGFPE,
	unix.SIGQUIT, unix.SIGSYS, unix.SIGXCPU, unix.SIGXFSZ,
)

// IsFatal reports whether sig triggers a crash capture.
func IsFatal(sig unix.Signal) bool {
	return fatalSignals.Contains(sig)
}

// onSignal handles a signal-delivery-stop and returns the signal to
// inject on resume.
func (s *Session) onSignal(th *thread, sig unix.Signal) unix.Signal {
	p := th.proc
	if sig == unix.SIGSTOP {
		switch {
		case th.fresh:
			return 0
		case th.sigstops > 0:
			th.sigstops--
			return 0
		case th.tid == int(s.wakeTid.Load()) && s.wakeups.Load() > 0:
			s.wakeups.Add(-1)
			return 0
		}
	}

	si, err := s.pt.GetSigInfo(th.tid)
	if errors.Is(err, unix.EINVAL) {
		s.logger.Debug("group-stop", zap.Int("tid", th.tid), zap.Stringer("signal", sig))
		return 0
	}
	if err != nil {
		s.logger.Debug("reading siginfo", zap.Int("tid", th.tid), zap.Error(err))
		si = tracefile.SigInfo{Signo: int32(sig)}
	}

	if sig == unix.SIGTRAP && s.onTrap(th) {
		return 0
	}

	switch {
	case IsFatal(sig):
		s.onFatal(th, sig, si)
	case (*s.signals.Load()).Contains(sig):
		if p.capture {
			s.record(p, th, tracefile.ReasonEvent(tracefile.ReasonSignal), si.Encode())
		}
	}
	return sig
}

// onFatal freezes the whole thread group and records everything needed
// for a core before the signal is delivered.
func (s *Session) onFatal(th *thread, sig unix.Signal, si tracefile.SigInfo) {
	p := th.proc
	s.logger.Warn("fatal signal",
		zap.Int("pid", p.Pid),
		zap.Int("tid", th.tid),
		zap.Stringer("signal", sig),
		zap.Int32("code", si.Code),
		zap.String("addr", fmt.Sprintf("%#x", si.Addr)))
	fatalTotal(1, unix.SignalName(sig))

	for _, other := range p.sorted() {
		if other != th {
			s.stopThread(other)
		}
	}

	p.capture = true
	s.rescan(p)
	if s.cfg.ModuleData {
		s.queueModuleData(p)
	}
	p.streams.Context.BumpCap(s.cfg.CapBump)
	s.record(p, th, tracefile.ReasonEvent(tracefile.ReasonSignal), si.Encode())
	if err := p.streams.Flush(); err != nil {
		s.logger.Error("flushing trace", zap.Int("pid", p.Pid), zap.Error(err))
	}

	for _, other := range p.sorted() {
		if other.held {
			s.resume(other, 0)
		}
	}
}

// stopThread brings a running thread to a stop with SIGSTOP. Statuses
// other than that stop are queued for the main loop.
func (s *Session) stopThread(th *thread) {
	if th.stopped {
		return
	}
	if err := s.pt.Tgkill(th.proc.Pid, th.tid, unix.SIGSTOP); err != nil {
		s.logger.Debug("stopping thread", zap.Int("tid", th.tid), zap.Error(err))
		return
	}
	th.sigstops++

	st, err := s.waitFor(th.tid)
	if err != nil {
		s.logger.Debug("waiting for stopped thread", zap.Int("tid", th.tid), zap.Error(err))
		return
	}
	switch {
	case st.Kind == SignalStop && st.Signal == unix.SIGSTOP:
		th.sigstops--
		th.stopped, th.held = true, true
	case st.Stopped():
		th.stopped, th.queued = true, true
		s.queued = append(s.queued, st)
	default:
		s.queued = append(s.queued, st)
	}
}
