package binutils

import (
	"debug/elf"
	"encoding/binary"
)

// DynEntry is one Elf{32,64}_Dyn record.
type DynEntry struct {
	Tag elf.DynTag
	Val uint64
}

func dynEntrySize(class elf.Class) int {
	if class == elf.ELFCLASS32 {
		return 8
	}
	return 16
}

// ParseDynamic decodes raw _DYNAMIC bytes up to and including DT_NULL.
func ParseDynamic(b []byte, class elf.Class) []DynEntry {
	sz := dynEntrySize(class)
	var out []DynEntry
	for off := 0; off+sz <= len(b); off += sz {
		var e DynEntry
		if class == elf.ELFCLASS32 {
			e.Tag = elf.DynTag(int32(binary.LittleEndian.Uint32(b[off:])))
			e.Val = uint64(binary.LittleEndian.Uint32(b[off+4:]))
		} else {
			e.Tag = elf.DynTag(int64(binary.LittleEndian.Uint64(b[off:])))
			e.Val = binary.LittleEndian.Uint64(b[off+8:])
		}
		out = append(out, e)
		if e.Tag == elf.DT_NULL {
			break
		}
	}
	return out
}

// DynamicSlot returns the byte offset of the value field of the first
// entry tagged tag, or -1.
func DynamicSlot(b []byte, class elf.Class, tag elf.DynTag) int {
	sz := dynEntrySize(class)
	for i, e := range ParseDynamic(b, class) {
		if e.Tag == tag {
			return i*sz + sz/2
		}
	}
	return -1
}

// PatchDynamic overwrites the value of the first entry tagged tag in
// place. It reports false when no such entry exists.
func PatchDynamic(b []byte, class elf.Class, tag elf.DynTag, val uint64) bool {
	off := DynamicSlot(b, class, tag)
	if off < 0 {
		return false
	}
	if class == elf.ELFCLASS32 {
		binary.LittleEndian.PutUint32(b[off:], uint32(val))
	} else {
		binary.LittleEndian.PutUint64(b[off:], val)
	}
	return true
}
