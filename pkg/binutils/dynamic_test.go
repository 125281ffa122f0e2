package binutils

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leOrder() binary.ByteOrder { return binary.LittleEndian }

func encodeDyn(class elf.Class, entries ...DynEntry) []byte {
	sz := dynEntrySize(class)
	b := make([]byte, len(entries)*sz)
	for i, e := range entries {
		if class == elf.ELFCLASS32 {
			binary.LittleEndian.PutUint32(b[i*sz:], uint32(e.Tag))
			binary.LittleEndian.PutUint32(b[i*sz+4:], uint32(e.Val))
		} else {
			binary.LittleEndian.PutUint64(b[i*sz:], uint64(e.Tag))
			binary.LittleEndian.PutUint64(b[i*sz+8:], e.Val)
		}
	}
	return b
}

func TestPatchDynamic(t *testing.T) {
	for _, class := range []elf.Class{elf.ELFCLASS32, elf.ELFCLASS64} {
		t.Run(class.String(), func(t *testing.T) {
			raw := encodeDyn(class,
				DynEntry{Tag: elf.DT_NEEDED, Val: 1},
				DynEntry{Tag: elf.DT_DEBUG, Val: 0},
				DynEntry{Tag: elf.DT_NULL},
				DynEntry{Tag: elf.DT_DEBUG, Val: 99},
			)

			entries := ParseDynamic(raw, class)
			require.Len(t, entries, 3, "parsing stops at DT_NULL")

			require.True(t, PatchDynamic(raw, class, elf.DT_DEBUG, 4096))
			entries = ParseDynamic(raw, class)
			assert.Equal(t, DynEntry{Tag: elf.DT_DEBUG, Val: 4096}, entries[1])

			assert.False(t, PatchDynamic(raw, class, elf.DT_SONAME, 1))
		})
	}
}

func TestLinkMapRoundTrip(t *testing.T) {
	for _, class := range []elf.Class{elf.ELFCLASS32, elf.ELFCLASS64} {
		t.Run(class.String(), func(t *testing.T) {
			maps := []LinkMap{
				{Addr: 0, Name: "", Dynamic: 0x403e10},
				{Addr: 0x7f0000000000 & 0xffffffff, Name: "/lib/libc.so.6", Dynamic: 0x1000},
				{Addr: 0x7f1000, Name: "/lib/ld-linux.so.2", Dynamic: 0x2000},
			}
			const base = 4096
			blob := EncodeLinkMaps(class, base, 0x7f1000, maps)

			rd, ok := DecodeRDebug(blob, class)
			require.True(t, ok)
			assert.Equal(t, uint32(1), rd.Version)
			assert.Equal(t, uint64(0x7f1000), rd.LdBase)

			at := func(addr uint64) []byte { return blob[addr-base:] }
			cstr := func(addr uint64) string {
				b := at(addr)
				for i, c := range b {
					if c == 0 {
						return string(b[:i])
					}
				}
				return string(b)
			}

			var got []LinkMap
			var prev uint64
			for addr := rd.Map; addr != 0; {
				lm, nameAddr, ok := DecodeLinkMap(at(addr), class)
				require.True(t, ok)
				assert.Equal(t, prev, lm.Prev)
				lm.Name = cstr(nameAddr)
				prev = addr
				addr = lm.Next
				lm.Next, lm.Prev = 0, 0
				got = append(got, lm)
			}
			assert.Equal(t, maps, got)
		})
	}
}

func TestEncodeLinkMapsEmpty(t *testing.T) {
	blob := EncodeLinkMaps(elf.ELFCLASS64, 4096, 0, nil)
	rd, ok := DecodeRDebug(blob, elf.ELFCLASS64)
	require.True(t, ok)
	assert.Zero(t, rd.Map)
}
