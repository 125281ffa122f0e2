package vmem

import (
	"sort"
	"strings"
)

// Perm holds the protection bits of a mapping.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
	Shared
)

func (p Perm) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Perm
		on  byte
	}{{Read, 'r'}, {Write, 'w'}, {Exec, 'x'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.on)
		} else {
			b.WriteByte('-')
		}
	}
	if p&Shared != 0 {
		b.WriteByte('s')
	} else {
		b.WriteByte('p')
	}
	return b.String()
}

// ParsePerm decodes the "rwxp" column of /proc/<pid>/maps.
func ParsePerm(s string) Perm {
	var p Perm
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'r':
			p |= Read
		case 'w':
			p |= Write
		case 'x':
			p |= Exec
		case 's':
			p |= Shared
		}
	}
	return p
}

// Mapping describes one contiguous region of a process address space.
// Data, when non-nil, holds captured bytes for the range starting at
// Start.
type Mapping struct {
	Segment
	Perm   Perm
	Offset uint64
	Inode  uint64
	Path   string
	Data   []byte
}

// Anonymous reports whether the mapping is not backed by a file.
func (m Mapping) Anonymous() bool {
	return m.Path == "" || m.Inode == 0
}

// Pseudo reports kernel-provided regions such as [stack] or [vdso].
func (m Mapping) Pseudo() bool {
	return strings.HasPrefix(m.Path, "[")
}

func (m Mapping) IsStack() bool {
	return m.Path == "[stack]" || strings.HasPrefix(m.Path, "[stack:")
}

func (m Mapping) IsVDSO() bool {
	return m.Path == "[vdso]"
}

// Find returns the index of the mapping containing addr in a slice sorted
// by start address, or -1.
func Find(maps []Mapping, addr uint64) int {
	i := sort.Search(len(maps), func(i int) bool {
		return maps[i].End > addr
	})
	if i < len(maps) && maps[i].Contains(addr) {
		return i
	}
	return -1
}
