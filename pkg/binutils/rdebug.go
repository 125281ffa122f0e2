package binutils

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// RDebug mirrors the dynamic loader's struct r_debug.
type RDebug struct {
	Version uint32
	Map     uint64
	Brk     uint64
	State   uint32
	LdBase  uint64
}

// LinkMap is one node of the loader's module list.
type LinkMap struct {
	Addr    uint64
	Name    string
	Dynamic uint64
	Next    uint64
	Prev    uint64
}

// RDebugSize is sizeof(struct r_debug).
func RDebugSize(class elf.Class) int {
	if class == elf.ELFCLASS32 {
		return 20
	}
	return 40
}

// LinkMapSize is the size of the public prefix of struct link_map.
func LinkMapSize(class elf.Class) int {
	return 5 * ptrSize(class)
}

func ptrSize(class elf.Class) int {
	if class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

func getPtr(b []byte, class elf.Class) uint64 {
	if class == elf.ELFCLASS32 {
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}

func putPtr(b []byte, class elf.Class, v uint64) {
	if class == elf.ELFCLASS32 {
		binary.LittleEndian.PutUint32(b, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(b, v)
}

// DecodeRDebug parses raw r_debug bytes.
func DecodeRDebug(b []byte, class elf.Class) (RDebug, bool) {
	if len(b) < RDebugSize(class) {
		return RDebug{}, false
	}
	p := ptrSize(class)
	return RDebug{
		Version: binary.LittleEndian.Uint32(b[0:]),
		Map:     getPtr(b[p:], class),
		Brk:     getPtr(b[2*p:], class),
		State:   binary.LittleEndian.Uint32(b[3*p:]),
		LdBase:  getPtr(b[4*p:], class),
	}, true
}

// DecodeLinkMap parses one link_map node; the name is left for the
// caller to read from l_name.
func DecodeLinkMap(b []byte, class elf.Class) (LinkMap, uint64, bool) {
	if len(b) < LinkMapSize(class) {
		return LinkMap{}, 0, false
	}
	p := ptrSize(class)
	return LinkMap{
		Addr:    getPtr(b[0:], class),
		Dynamic: getPtr(b[2*p:], class),
		Next:    getPtr(b[3*p:], class),
		Prev:    getPtr(b[4*p:], class),
	}, getPtr(b[p:], class), true
}

// EncodeLinkMaps lays out an r_debug followed by a doubly linked list of
// link_map nodes and their names, as it would appear when loaded at base.
// The returned blob starts with the r_debug.
func EncodeLinkMaps(class elf.Class, base uint64, ldBase uint64, maps []LinkMap) []byte {
	rsz, lsz := RDebugSize(class), LinkMapSize(class)
	p := ptrSize(class)

	nodes := base + uint64(rsz)
	names := nodes + uint64(len(maps)*lsz)

	var strtab bytes.Buffer
	nameAddr := make([]uint64, len(maps))
	for i, m := range maps {
		nameAddr[i] = names + uint64(strtab.Len())
		strtab.WriteString(m.Name)
		strtab.WriteByte(0)
	}

	out := make([]byte, rsz+len(maps)*lsz+strtab.Len())
	binary.LittleEndian.PutUint32(out[0:], 1)
	if len(maps) > 0 {
		putPtr(out[p:], class, nodes)
	}
	putPtr(out[4*p:], class, ldBase)

	for i, m := range maps {
		n := out[rsz+i*lsz:]
		putPtr(n[0:], class, m.Addr)
		putPtr(n[p:], class, nameAddr[i])
		putPtr(n[2*p:], class, m.Dynamic)
		if i+1 < len(maps) {
			putPtr(n[3*p:], class, nodes+uint64((i+1)*lsz))
		}
		if i > 0 {
			putPtr(n[4*p:], class, nodes+uint64((i-1)*lsz))
		}
	}
	copy(out[rsz+len(maps)*lsz:], strtab.Bytes())
	return out
}
