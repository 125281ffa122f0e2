package binutils

import (
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// IDKind says how a module identifier was derived.
type IDKind uint8

const (
	IDBuildID IDKind = iota + 1
	IDTextHash
)

func (k IDKind) String() string {
	switch k {
	case IDBuildID:
		return "build-id"
	case IDTextHash:
		return "text-hash"
	}
	return "unknown"
}

// Section locates a section both in the file and in link-time memory.
type Section struct {
	Offset uint64
	Addr   uint64
	Size   uint64
}

func (s Section) Present() bool {
	return s.Size != 0
}

// ModuleInfo is everything the tracer and the core writer need to know
// about a mapped module, derived once per path.
type ModuleInfo struct {
	Path string
	ID   string
	Kind IDKind

	Type    elf.Type
	Machine elf.Machine
	Class   elf.Class

	Data Section
	Bss  Section

	// RWLoadOffset and RWLoadVaddr describe the first writable PT_LOAD.
	RWLoadOffset uint64
	RWLoadVaddr  uint64
	// FirstLoadVaddr is the lowest PT_LOAD address, used to compute the
	// load bias from a mapping start.
	FirstLoadVaddr uint64
	// DynamicVaddr is the link-time address of _DYNAMIC, zero when the
	// module is static.
	DynamicVaddr uint64
	DynamicSize  uint64

	Needed []string
}

const textHashLen = 4096

// Identify derives the module identity of path (beneath root).
func Identify(path, root string) (*ModuleInfo, error) {
	e, err := NewElf(path, root)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	f, err := e.Elf()
	if err != nil {
		return nil, err
	}

	info := &ModuleInfo{
		Path:           path,
		Type:           f.Type,
		Machine:        f.Machine,
		Class:          f.Class,
		FirstLoadVaddr: ^uint64(0),
	}

	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			info.FirstLoadVaddr = min(info.FirstLoadVaddr, prog.Vaddr)
			if prog.Flags&elf.PF_W != 0 && info.RWLoadVaddr == 0 {
				info.RWLoadOffset = prog.Off
				info.RWLoadVaddr = prog.Vaddr
			}
		case elf.PT_DYNAMIC:
			info.DynamicVaddr = prog.Vaddr
			info.DynamicSize = prog.Memsz
		}
	}
	if info.FirstLoadVaddr == ^uint64(0) {
		info.FirstLoadVaddr = 0
	}

	if s := f.Section(".data"); s != nil {
		info.Data = Section{Offset: s.Offset, Addr: s.Addr, Size: s.Size}
	}
	if s := f.Section(".bss"); s != nil {
		info.Bss = Section{Offset: s.Offset, Addr: s.Addr, Size: s.Size}
	}

	if info.DynamicVaddr != 0 {
		needed, err := e.Needed()
		if err != nil {
			return nil, err
		}
		info.Needed = needed
	}

	if id, ok := buildID(f); ok {
		info.ID, info.Kind = hex.EncodeToString(id), IDBuildID
		return info, nil
	}

	sum, err := textHash(f)
	if err != nil {
		return nil, fmt.Errorf("identifying %s: %w", path, err)
	}
	info.ID, info.Kind = fmt.Sprintf("text-%016x", sum), IDTextHash
	return info, nil
}

// buildID returns the NT_GNU_BUILD_ID descriptor, looking first at the
// dedicated section and then at every note segment.
func buildID(f *elf.File) ([]byte, bool) {
	if s := f.Section(".note.gnu.build-id"); s != nil {
		if data, err := s.Data(); err == nil {
			if id, ok := findNote(data, f, "GNU", 3); ok {
				return id, true
			}
		}
	}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}
		data, err := io.ReadAll(prog.Open())
		if err != nil {
			continue
		}
		if id, ok := findNote(data, f, "GNU", 3); ok {
			return id, true
		}
	}
	return nil, false
}

func findNote(data []byte, f *elf.File, name string, typ uint32) ([]byte, bool) {
	bo := f.ByteOrder
	align4 := func(n uint32) uint32 { return (n + 3) &^ 3 }
	for len(data) >= 12 {
		namesz, descsz, ntype := bo.Uint32(data[0:]), bo.Uint32(data[4:]), bo.Uint32(data[8:])
		data = data[12:]
		if uint64(align4(namesz))+uint64(align4(descsz)) > uint64(len(data)) {
			return nil, false
		}
		n := data[:namesz]
		if len(n) > 0 && n[len(n)-1] == 0 {
			n = n[:len(n)-1]
		}
		desc := data[align4(namesz) : align4(namesz)+descsz]
		if ntype == typ && string(n) == name {
			return desc, true
		}
		data = data[align4(namesz)+align4(descsz):]
	}
	return nil, false
}

var errNoText = errors.New("no .text section")

func textHash(f *elf.File) (uint64, error) {
	s := f.Section(".text")
	if s == nil || s.Type == elf.SHT_NOBITS {
		return 0, errNoText
	}
	page := make([]byte, min(uint64(textHashLen), s.Size))
	if _, err := io.ReadFull(s.Open(), page); err != nil {
		return 0, fmt.Errorf("reading .text: %w", err)
	}
	return xxhash.Sum64(page), nil
}
