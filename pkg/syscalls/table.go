package syscalls

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/coretrace/coretrace/pkg/arch"
)

// Max bounds the syscall numbers considered part of an architecture's ABI.
// Numbers at or above it are never recorded.
const Max = 512

// Table resolves syscall numbers of one architecture to descriptors.
type Table struct {
	arch    string
	entries [Max]*Descriptor
	numbers map[string]int
}

// NewTable builds the table for a GOARCH-style architecture name.
func NewTable(archName string) (*Table, error) {
	a, err := arch.ForName(archName)
	if err != nil {
		return nil, err
	}
	nums, ok := numbersByArch[a.Name()]
	if !ok {
		return nil, fmt.Errorf("%w: no syscall table for %s", arch.ErrUnsupported, a.Name())
	}

	t := &Table{arch: a.Name(), numbers: nums}
	for name, nr := range nums {
		if nr < 0 || nr >= Max {
			continue
		}
		t.entries[nr] = byName[name]
	}
	return t, nil
}

// MustTable is NewTable for architecture names known to be compiled in.
func MustTable(archName string) *Table {
	t, err := NewTable(archName)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Arch() string { return t.arch }

func (t *Table) Max() int { return Max }

// Lookup returns the descriptor for nr, or nil for unknown numbers.
func (t *Table) Lookup(nr int) *Descriptor {
	if nr < 0 || nr >= Max {
		return nil
	}
	return t.entries[nr]
}

// Number returns the syscall number of name on this architecture.
func (t *Table) Number(name string) (int, bool) {
	nr, ok := t.numbers[name]
	return nr, ok
}

// Name returns the syscall name, or syscall_<nr> for unknown numbers.
func (t *Table) Name(nr int) string {
	if d := t.Lookup(nr); d != nil {
		return d.Name
	}
	return "syscall_" + strconv.Itoa(nr)
}

// ByClass lists the numbers of every syscall tagged with c, ascending.
func (t *Table) ByClass(c Class) []int {
	var out []int
	for nr, d := range t.entries {
		if d != nil && d.Class&c != 0 {
			out = append(out, nr)
		}
	}
	return out
}

// Is reports whether nr is the syscall called name.
func (t *Table) Is(nr int, name string) bool {
	n, ok := t.numbers[name]
	return ok && n == nr
}

// IsAny reports whether nr is one of the named syscalls.
func (t *Table) IsAny(nr int, names ...string) bool {
	return slices.ContainsFunc(names, func(n string) bool { return t.Is(nr, n) })
}

const abiEntrySize = 8

// Encode lays the table out as Max fixed-size entries: argument count,
// pointer-argument bitmask, then for each of the six arguments the index
// of its length argument (0xff when absent). Unknown numbers have an
// argument count of 0xff.
func (t *Table) Encode() []byte {
	out := make([]byte, Max*abiEntrySize)
	for nr := range Max {
		e := out[nr*abiEntrySize : (nr+1)*abiEntrySize]
		for i := range e {
			e[i] = 0xff
		}
		d := t.entries[nr]
		if d == nil {
			continue
		}
		e[0] = byte(d.Args)
		e[1] = 0
		for _, ptr := range d.Ptrs {
			e[1] |= 1 << ptr.Arg
			if ptr.LenArg != NoLen {
				e[2+ptr.Arg] = byte(ptr.LenArg)
			}
		}
	}
	return out
}
