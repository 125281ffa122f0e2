// Package arch isolates the per-architecture register and ABI layouts the
// tracer and the core writer depend on. Every supported architecture is
// compiled in; the active one is picked at startup.
package arch

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
)

var ErrUnsupported = errors.New("unsupported architecture")

// Arch decodes raw register sets in the layout returned by
// PTRACE_GETREGSET(NT_PRSTATUS), which is also the layout of pr_reg in a
// core file.
type Arch interface {
	// Name is the GOARCH-style name (amd64, arm64, 386, arm).
	Name() string
	Machine() elf.Machine
	Class() elf.Class
	// Flags is the e_flags value written into core headers.
	Flags() uint32
	PtrSize() int

	// RegsSize is the size of the general purpose register set.
	RegsSize() int
	// FPRegsSize is the size of the NT_PRFPREG register set.
	FPRegsSize() int
	RegisterNames() []string

	SyscallNumber(regs []byte) int
	SyscallResult(regs []byte) int64
	SyscallArgs(regs []byte) [6]uint64

	StackPointer(regs []byte) uint64
	PC(regs []byte) uint64
	SetPC(regs []byte, pc uint64)
	// ThreadPointer returns the TLS base if the GP set carries one.
	ThreadPointer(regs []byte) (uint64, bool)

	// Breakpoint is the trap instruction poked at break-at addresses.
	Breakpoint() []byte
	// BreakpointPCAdjust is subtracted from the PC reported at a trap stop
	// to get back the breakpoint address.
	BreakpointPCAdjust() uint64
}

// ByteOrder is shared by every supported target.
var ByteOrder = binary.LittleEndian

var registry = map[string]Arch{}

func register(a Arch) {
	registry[a.Name()] = a
}

// ForName returns the architecture for a GOARCH-style name.
func ForName(name string) (Arch, error) {
	switch name {
	case "x86_64":
		name = "amd64"
	case "aarch64":
		name = "arm64"
	case "i386", "i686", "x86":
		name = "386"
	}
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	return a, nil
}

// ForMachine maps an ELF machine to the architecture that produces it.
func ForMachine(m elf.Machine) (Arch, error) {
	for _, a := range registry {
		if a.Machine() == m {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, m)
}

// Host is the architecture the binary was built for.
func Host() (Arch, error) {
	return ForName(runtime.GOARCH)
}

// Names lists the compiled-in architectures.
func Names() []string {
	return []string{"amd64", "arm64", "386", "arm"}
}

// words is the shared accessor for register sets made of equally sized
// slots.
type words struct {
	size int
}

func (w words) get(regs []byte, i int) uint64 {
	off := i * w.size
	if off+w.size > len(regs) {
		return 0
	}
	if w.size == 8 {
		return ByteOrder.Uint64(regs[off:])
	}
	return uint64(ByteOrder.Uint32(regs[off:]))
}

func (w words) signed(regs []byte, i int) int64 {
	v := w.get(regs, i)
	if w.size == 4 {
		return int64(int32(uint32(v)))
	}
	return int64(v)
}

func (w words) set(regs []byte, i int, v uint64) {
	off := i * w.size
	if off+w.size > len(regs) {
		return
	}
	if w.size == 8 {
		ByteOrder.PutUint64(regs[off:], v)
		return
	}
	ByteOrder.PutUint32(regs[off:], uint32(v))
}

func (w words) gather(regs []byte, idx [6]int) [6]uint64 {
	var out [6]uint64
	for i, r := range idx {
		out[i] = w.get(regs, r)
	}
	return out
}
