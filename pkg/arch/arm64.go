package arch

import (
	"debug/elf"
	"strconv"
)

// user_pt_regs: x0..x30, sp, pc, pstate.
const (
	arm64X0 = 0
	arm64X8 = 8
	arm64Sp = 31
	arm64Pc = 32
)

var arm64Names = func() []string {
	names := make([]string, 0, 34)
	for i := 0; i <= 30; i++ {
		names = append(names, "x"+strconv.Itoa(i))
	}
	return append(names, "sp", "pc", "pstate")
}()

type arm64 struct{ words }

func init() { register(arm64{words{8}}) }

func (arm64) Name() string            { return "arm64" }
func (arm64) Machine() elf.Machine    { return elf.EM_AARCH64 }
func (arm64) Class() elf.Class        { return elf.ELFCLASS64 }
func (arm64) Flags() uint32           { return 0 }
func (arm64) PtrSize() int            { return 8 }
func (arm64) RegsSize() int           { return 34 * 8 }
func (arm64) FPRegsSize() int         { return 528 }
func (arm64) RegisterNames() []string { return arm64Names }

func (a arm64) SyscallNumber(regs []byte) int { return int(a.signed(regs, arm64X8)) }

// SyscallResult is only meaningful at a syscall-exit stop; x0 doubles as
// the first argument on entry.
func (a arm64) SyscallResult(regs []byte) int64 { return a.signed(regs, arm64X0) }

func (a arm64) SyscallArgs(regs []byte) [6]uint64 {
	return a.gather(regs, [6]int{0, 1, 2, 3, 4, 5})
}

func (a arm64) StackPointer(regs []byte) uint64 { return a.get(regs, arm64Sp) }
func (a arm64) PC(regs []byte) uint64           { return a.get(regs, arm64Pc) }
func (a arm64) SetPC(regs []byte, pc uint64)    { a.set(regs, arm64Pc, pc) }

// tpidr_el0 lives in NT_ARM_TLS, not in the GP set.
func (arm64) ThreadPointer([]byte) (uint64, bool) { return 0, false }

func (arm64) Breakpoint() []byte         { return []byte{0x00, 0x00, 0x20, 0xd4} }
func (arm64) BreakpointPCAdjust() uint64 { return 0 }
