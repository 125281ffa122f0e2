package arch

import "debug/elf"

// user_regs_struct slot indices.
const (
	amd64R10    = 7
	amd64R9     = 8
	amd64R8     = 9
	amd64Rax    = 10
	amd64Rdx    = 12
	amd64Rsi    = 13
	amd64Rdi    = 14
	amd64OrigAx = 15
	amd64Rip    = 16
	amd64Rsp    = 19
	amd64FsBase = 21
)

var amd64Names = []string{
	"r15", "r14", "r13", "r12", "rbp", "rbx", "r11", "r10", "r9", "r8",
	"rax", "rcx", "rdx", "rsi", "rdi", "orig_rax", "rip", "cs", "eflags",
	"rsp", "ss", "fs_base", "gs_base", "ds", "es", "fs", "gs",
}

type amd64 struct{ words }

func init() { register(amd64{words{8}}) }

func (amd64) Name() string            { return "amd64" }
func (amd64) Machine() elf.Machine    { return elf.EM_X86_64 }
func (amd64) Class() elf.Class        { return elf.ELFCLASS64 }
func (amd64) Flags() uint32           { return 0 }
func (amd64) PtrSize() int            { return 8 }
func (amd64) RegsSize() int           { return 27 * 8 }
func (amd64) FPRegsSize() int         { return 512 }
func (amd64) RegisterNames() []string { return amd64Names }

func (a amd64) SyscallNumber(regs []byte) int { return int(a.signed(regs, amd64OrigAx)) }

func (a amd64) SyscallResult(regs []byte) int64 { return a.signed(regs, amd64Rax) }

func (a amd64) SyscallArgs(regs []byte) [6]uint64 {
	return a.gather(regs, [6]int{amd64Rdi, amd64Rsi, amd64Rdx, amd64R10, amd64R8, amd64R9})
}

func (a amd64) StackPointer(regs []byte) uint64 { return a.get(regs, amd64Rsp) }
func (a amd64) PC(regs []byte) uint64           { return a.get(regs, amd64Rip) }
func (a amd64) SetPC(regs []byte, pc uint64)    { a.set(regs, amd64Rip, pc) }

func (a amd64) ThreadPointer(regs []byte) (uint64, bool) {
	return a.get(regs, amd64FsBase), true
}

func (amd64) Breakpoint() []byte         { return []byte{0xcc} }
func (amd64) BreakpointPCAdjust() uint64 { return 1 }
