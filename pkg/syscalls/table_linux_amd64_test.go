//go:build linux && amd64

package syscalls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestAMD64NumbersMatchKernelHeaders(t *testing.T) {
	tbl := MustTable("amd64")
	for name, want := range map[string]int{
		"read":       unix.SYS_READ,
		"open":       unix.SYS_OPEN,
		"brk":        unix.SYS_BRK,
		"mmap":       unix.SYS_MMAP,
		"mremap":     unix.SYS_MREMAP,
		"clone":      unix.SYS_CLONE,
		"fork":       unix.SYS_FORK,
		"vfork":      unix.SYS_VFORK,
		"execve":     unix.SYS_EXECVE,
		"exit_group": unix.SYS_EXIT_GROUP,
		"openat":     unix.SYS_OPENAT,
		"tgkill":     unix.SYS_TGKILL,
		"getrandom":  unix.SYS_GETRANDOM,
		"clone3":     unix.SYS_CLONE3,
		"statx":      unix.SYS_STATX,
	} {
		got, ok := tbl.Number(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}
