package syscalls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTables(t *testing.T) {
	tests := []struct {
		arch  string
		name  string
		nr    int
		found bool
	}{
		{"amd64", "openat", 257, true},
		{"amd64", "mmap2", 0, false},
		{"arm64", "openat", 56, true},
		{"arm64", "open", 0, false},
		{"arm64", "brk", 214, true},
		{"386", "mmap2", 192, true},
		{"386", "socket", 359, true},
		{"arm", "openat", 322, true},
		{"arm", "send", 289, true},
	}

	for _, tt := range tests {
		t.Run(tt.arch+"/"+tt.name, func(t *testing.T) {
			tbl, err := NewTable(tt.arch)
			require.NoError(t, err)
			nr, ok := tbl.Number(tt.name)
			require.Equal(t, tt.found, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.nr, nr)
			assert.Equal(t, tt.name, tbl.Name(nr))
			assert.True(t, tbl.Is(nr, tt.name))
		})
	}
}

func TestTableUnknown(t *testing.T) {
	_, err := NewTable("mips")
	require.Error(t, err)

	tbl := MustTable("amd64")
	assert.Nil(t, tbl.Lookup(-1))
	assert.Nil(t, tbl.Lookup(Max))
	assert.Equal(t, "syscall_500", tbl.Name(500))
}

func TestDescriptorPointers(t *testing.T) {
	tbl := MustTable("amd64")
	nr, _ := tbl.Number("read")
	d := tbl.Lookup(nr)
	require.NotNil(t, d)
	assert.Equal(t, 3, d.Args)

	ptr, ok := d.PointerFor(1)
	require.True(t, ok)
	assert.Equal(t, 2, ptr.LenArg)

	_, ok = d.PointerFor(0)
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	tbl := MustTable("amd64")
	enc := tbl.Encode()
	require.Len(t, enc, Max*abiEntrySize)

	read := enc[0:abiEntrySize]
	assert.Equal(t, byte(3), read[0])
	assert.Equal(t, byte(1<<1), read[1])
	assert.Equal(t, byte(2), read[2+1])
	assert.Equal(t, byte(0xff), read[2+0])

	unknown := enc[500*abiEntrySize : 501*abiEntrySize]
	assert.Equal(t, byte(0xff), unknown[0])
}

func TestEveryNumberHasDescriptor(t *testing.T) {
	for archName, nums := range numbersByArch {
		for name, nr := range nums {
			require.True(t, Known(name), "%s: %s", archName, name)
			require.Less(t, nr, Max)
		}
	}
}
