//go:build linux

// Package tracer drives a ptrace-attached process tree: it steps every
// thread from syscall stop to syscall stop, decides what to capture, and
// streams events and maps snapshots to per-process trace files.
package tracer

import (
	"debug/elf"

	"github.com/coretrace/coretrace/pkg/tracefile"
	"golang.org/x/sys/unix"
)

// Ptrace is the set of kernel primitives the supervisor needs. All calls
// except Tgkill must come from the goroutine that launched or attached the
// tracee, locked to its OS thread.
type Ptrace interface {
	// Launch starts argv stopped at its first instruction after exec.
	Launch(argv, env []string, dir string) (int, error)
	Attach(tid int) error
	SetOptions(tid int, options int) error

	// Syscall resumes tid until its next syscall stop, delivering sig.
	Syscall(tid int, sig unix.Signal) error
	Detach(tid int, sig unix.Signal) error

	// Wait blocks for the next status of pid, or of any tracee when pid
	// is -1.
	Wait(pid int) (int, unix.WaitStatus, error)

	GetRegSet(tid int, typ elf.NType, buf []byte) (int, error)
	SetRegSet(tid int, typ elf.NType, buf []byte) error
	GetEventMsg(tid int) (uint64, error)
	// GetSigInfo returns unix.EINVAL for group-stops.
	GetSigInfo(tid int) (tracefile.SigInfo, error)

	Tgkill(tgid, tid int, sig unix.Signal) error

	ReadMemory(pid int, addr uint64, buf []byte) (int, error)
	WriteMemory(pid int, addr uint64, data []byte) (int, error)
	// Release drops per-process resources once pid is gone.
	Release(pid int)
}

const ptraceOptions = unix.PTRACE_O_TRACESYSGOOD |
	unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_TRACEEXIT |
	unix.PTRACE_O_TRACESECCOMP

// launched children die with the tracer; attached ones are left alone
const launchOptions = ptraceOptions | unix.PTRACE_O_EXITKILL
