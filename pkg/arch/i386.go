package arch

import "debug/elf"

// user_regs_struct (i386) slot indices.
const (
	i386Ebx    = 0
	i386Ecx    = 1
	i386Edx    = 2
	i386Esi    = 3
	i386Edi    = 4
	i386Ebp    = 5
	i386Eax    = 6
	i386OrigAx = 11
	i386Eip    = 12
	i386Esp    = 15
)

var i386Names = []string{
	"ebx", "ecx", "edx", "esi", "edi", "ebp", "eax", "xds", "xes", "xfs",
	"xgs", "orig_eax", "eip", "xcs", "eflags", "esp", "xss",
}

type i386 struct{ words }

func init() { register(i386{words{4}}) }

func (i386) Name() string            { return "386" }
func (i386) Machine() elf.Machine    { return elf.EM_386 }
func (i386) Class() elf.Class        { return elf.ELFCLASS32 }
func (i386) Flags() uint32           { return 0 }
func (i386) PtrSize() int            { return 4 }
func (i386) RegsSize() int           { return 17 * 4 }
func (i386) FPRegsSize() int         { return 108 }
func (i386) RegisterNames() []string { return i386Names }

func (a i386) SyscallNumber(regs []byte) int { return int(a.signed(regs, i386OrigAx)) }

func (a i386) SyscallResult(regs []byte) int64 { return a.signed(regs, i386Eax) }

func (a i386) SyscallArgs(regs []byte) [6]uint64 {
	return a.gather(regs, [6]int{i386Ebx, i386Ecx, i386Edx, i386Esi, i386Edi, i386Ebp})
}

func (a i386) StackPointer(regs []byte) uint64 { return a.get(regs, i386Esp) }
func (a i386) PC(regs []byte) uint64           { return a.get(regs, i386Eip) }
func (a i386) SetPC(regs []byte, pc uint64)    { a.set(regs, i386Eip, pc) }

// The TLS base is a GDT descriptor selected by gs; only its selector is in
// the GP set.
func (i386) ThreadPointer([]byte) (uint64, bool) { return 0, false }

func (i386) Breakpoint() []byte         { return []byte{0xcc} }
func (i386) BreakpointPCAdjust() uint64 { return 1 }
