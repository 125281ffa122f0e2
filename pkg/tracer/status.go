//go:build linux

package tracer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies a wait status.
type Kind int

const (
	Exited Kind = iota
	FatalSignal
	SignalStop
	GroupStop
	SyscallStop
	PtraceEvent
)

var kindNames = [...]string{"exited", "fatal-signal", "signal-stop", "group-stop", "syscall-stop", "ptrace-event"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status is a decoded wait status of one thread.
type Status struct {
	Kind Kind
	Tid  int
	// Code is the exit code of an Exited status.
	Code int
	// Signal is the terminating signal of FatalSignal and the stop
	// signal of SignalStop and GroupStop.
	Signal unix.Signal
	// Event is the PTRACE_EVENT_* of a PtraceEvent.
	Event int
}

// Stopped reports whether the thread is in a ptrace-stop.
func (s Status) Stopped() bool {
	return s.Kind >= SignalStop
}

func (s Status) String() string {
	switch s.Kind {
	case Exited:
		return fmt.Sprintf("%d exited(%d)", s.Tid, s.Code)
	case FatalSignal, SignalStop, GroupStop:
		return fmt.Sprintf("%d %s(%s)", s.Tid, s.Kind, unix.SignalName(s.Signal))
	case PtraceEvent:
		return fmt.Sprintf("%d %s(%s)", s.Tid, s.Kind, eventName(s.Event))
	}
	return fmt.Sprintf("%d %s", s.Tid, s.Kind)
}

const sysGoodBit = 0x80

// Decode classifies the raw status of tid.
func Decode(tid int, ws unix.WaitStatus) Status {
	st := Status{Tid: tid}
	switch {
	case ws.Exited():
		st.Kind = Exited
		st.Code = ws.ExitStatus()
	case ws.Signaled():
		st.Kind = FatalSignal
		st.Signal = ws.Signal()
	case ws.Stopped():
		sig := ws.StopSignal()
		event := int(uint32(ws)>>16) & 0xff
		switch {
		case sig == unix.SIGTRAP|sysGoodBit:
			st.Kind = SyscallStop
		case event == unix.PTRACE_EVENT_STOP:
			st.Kind = GroupStop
			st.Signal = sig
		case event != 0:
			st.Kind = PtraceEvent
			st.Event = event
		default:
			st.Kind = SignalStop
			st.Signal = sig
		}
	default:
		// continued notifications are not requested with WALL alone
		st.Kind = SignalStop
	}
	return st
}

func eventName(e int) string {
	switch e {
	case unix.PTRACE_EVENT_FORK:
		return "fork"
	case unix.PTRACE_EVENT_VFORK:
		return "vfork"
	case unix.PTRACE_EVENT_CLONE:
		return "clone"
	case unix.PTRACE_EVENT_EXEC:
		return "exec"
	case unix.PTRACE_EVENT_VFORK_DONE:
		return "vfork-done"
	case unix.PTRACE_EVENT_EXIT:
		return "exit"
	case unix.PTRACE_EVENT_SECCOMP:
		return "seccomp"
	case unix.PTRACE_EVENT_STOP:
		return "stop"
	}
	return fmt.Sprintf("event(%d)", e)
}
