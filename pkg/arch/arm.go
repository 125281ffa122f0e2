package arch

import "debug/elf"

// pt_regs (arm): r0..r15, cpsr, orig_r0.
const (
	armR7 = 7
	armSp = 13
	armPc = 15
)

var armNames = []string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9", "r10",
	"fp", "ip", "sp", "lr", "pc", "cpsr", "orig_r0",
}

type arm struct{ words }

func init() { register(arm{words{4}}) }

func (arm) Name() string            { return "arm" }
func (arm) Machine() elf.Machine    { return elf.EM_ARM }
func (arm) Class() elf.Class        { return elf.ELFCLASS32 }
func (arm) Flags() uint32           { return 0x05000000 } // EABI5
func (arm) PtrSize() int            { return 4 }
func (arm) RegsSize() int           { return 18 * 4 }
func (arm) FPRegsSize() int         { return 116 }
func (arm) RegisterNames() []string { return armNames }

func (a arm) SyscallNumber(regs []byte) int { return int(a.signed(regs, armR7)) }

func (a arm) SyscallResult(regs []byte) int64 { return a.signed(regs, 0) }

func (a arm) SyscallArgs(regs []byte) [6]uint64 {
	return a.gather(regs, [6]int{0, 1, 2, 3, 4, 5})
}

func (a arm) StackPointer(regs []byte) uint64 { return a.get(regs, armSp) }
func (a arm) PC(regs []byte) uint64           { return a.get(regs, armPc) }
func (a arm) SetPC(regs []byte, pc uint64)    { a.set(regs, armPc, pc) }

func (arm) ThreadPointer([]byte) (uint64, bool) { return 0, false }

// udf #16, the Linux ARM breakpoint.
func (arm) Breakpoint() []byte         { return []byte{0xf0, 0x01, 0xf0, 0xe7} }
func (arm) BreakpointPCAdjust() uint64 { return 0 }
