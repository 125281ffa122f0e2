package arch

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(a Arch, slots map[int]uint64) []byte {
	regs := make([]byte, a.RegsSize())
	w := words{a.PtrSize()}
	for i, v := range slots {
		w.set(regs, i, v)
	}
	return regs
}

func TestForName(t *testing.T) {
	tests := []struct {
		name    string
		want    elf.Machine
		wantErr bool
	}{
		{name: "amd64", want: elf.EM_X86_64},
		{name: "x86_64", want: elf.EM_X86_64},
		{name: "aarch64", want: elf.EM_AARCH64},
		{name: "386", want: elf.EM_386},
		{name: "arm", want: elf.EM_ARM},
		{name: "riscv64", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ForName(tt.name)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Machine())

			b, err := ForMachine(tt.want)
			require.NoError(t, err)
			assert.Equal(t, a.Name(), b.Name())
		})
	}
}

func TestRegisterNamesMatchSize(t *testing.T) {
	for _, name := range Names() {
		a, err := ForName(name)
		require.NoError(t, err)
		assert.Len(t, a.RegisterNames(), a.RegsSize()/a.PtrSize(), name)
	}
}

func TestSyscallDecode(t *testing.T) {
	tests := []struct {
		arch   string
		slots  map[int]uint64
		nr     int
		result int64
		args   [6]uint64
		sp, pc uint64
	}{
		{
			arch: "amd64",
			slots: map[int]uint64{
				amd64OrigAx: 257, amd64Rax: ^uint64(1), amd64Rdi: 1, amd64Rsi: 2,
				amd64Rdx: 3, amd64R10: 4, amd64R8: 5, amd64R9: 6,
				amd64Rsp: 0x7ffd0000, amd64Rip: 0x401000,
			},
			nr: 257, result: -2, args: [6]uint64{1, 2, 3, 4, 5, 6},
			sp: 0x7ffd0000, pc: 0x401000,
		},
		{
			arch: "arm64",
			slots: map[int]uint64{
				arm64X8: 56, 0: 10, 1: 11, 2: 12, 3: 13, 4: 14, 5: 15,
				arm64Sp: 0xffff0000, arm64Pc: 0x400000,
			},
			nr: 56, result: 10, args: [6]uint64{10, 11, 12, 13, 14, 15},
			sp: 0xffff0000, pc: 0x400000,
		},
		{
			arch: "386",
			slots: map[int]uint64{
				i386OrigAx: 5, i386Eax: 0xfffffff2, i386Ebx: 1, i386Ecx: 2,
				i386Edx: 3, i386Esi: 4, i386Edi: 5, i386Ebp: 6,
				i386Esp: 0xbf000000, i386Eip: 0x8048000,
			},
			nr: 5, result: -14, args: [6]uint64{1, 2, 3, 4, 5, 6},
			sp: 0xbf000000, pc: 0x8048000,
		},
		{
			arch: "arm",
			slots: map[int]uint64{
				armR7: 322, 0: 7, 1: 8, 2: 9, 3: 10, 4: 11, 5: 12,
				armSp: 0xbe000000, armPc: 0x10000,
			},
			nr: 322, result: 7, args: [6]uint64{7, 8, 9, 10, 11, 12},
			sp: 0xbe000000, pc: 0x10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.arch, func(t *testing.T) {
			a, err := ForName(tt.arch)
			require.NoError(t, err)

			regs := fill(a, tt.slots)
			assert.Equal(t, tt.nr, a.SyscallNumber(regs))
			assert.Equal(t, tt.result, a.SyscallResult(regs))
			assert.Equal(t, tt.args, a.SyscallArgs(regs))
			assert.Equal(t, tt.sp, a.StackPointer(regs))
			assert.Equal(t, tt.pc, a.PC(regs))

			a.SetPC(regs, tt.pc+0x10)
			assert.Equal(t, tt.pc+0x10, a.PC(regs))
		})
	}
}

func TestShortRegsDoNotPanic(t *testing.T) {
	for _, name := range Names() {
		a, err := ForName(name)
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			a.SyscallArgs(nil)
			a.SetPC(make([]byte, 3), 1)
		})
	}
}
