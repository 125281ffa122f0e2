package binutils

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchFunction(t *testing.T) {
	tests := []struct {
		name        string
		symName     string
		targetName  string
		strategy    MatchStrategy
		shouldMatch bool
	}{
		{"Exact match", "testSymbol", "testSymbol", MatchStrategyExact, true},
		{"Exact mismatch", "testSymbol", "TestSymbol", MatchStrategyExact, false},
		{"Prefix match", "testSymbol", "test", MatchStrategyPrefix, true},
		{"Prefix mismatch", "testSymbol", "Test", MatchStrategyPrefix, false},
		{"Suffix match", "testSymbol", "Symbol", MatchStrategySuffix, true},
		{"Suffix mismatch", "testSymbol", "symbol", MatchStrategySuffix, false},
		{"Contains match", "testSymbol", "tSym", MatchStrategyContains, true},
		{"Contains mismatch", "testSymbol", "symTest", MatchStrategyContains, false},
		{"Unknown strategy", "testSymbol", "testSymbol", MatchStrategy(42), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldMatch, match(tt.symName, tt.targetName, tt.strategy))
		})
	}
}

func TestNewElfRejectsNonELF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-elf")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	_, err := NewElf(path, "")
	require.ErrorIs(t, err, ErrNotELF)

	_, err = NewElf("/definitely/missing", "")
	require.Error(t, err)
}

func TestNewElfRoot(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	e, err := NewElf(filepath.Base(exe), filepath.Dir(exe))
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, exe, e.FilePath())

	require.NoError(t, e.Close())
	_, err = e.Elf()
	require.ErrorIs(t, err, ErrFileClosed)
}

// fixtureSym is one symbol of a generated ELF.
type fixtureSym struct {
	name  string
	typ   elf.SymType
	shndx elf.SectionIndex
	value uint64
}

// writeSymbolELF writes a section-only ELF64 executable with a .text
// section and the given .symtab and .dynsym tables; a nil table is left
// out.
func writeSymbolELF(t *testing.T, symtab, dynsym []fixtureSym) string {
	t.Helper()

	type section struct {
		name string
		hdr  elf.Section64
		data []byte
	}
	var sections []*section
	add := func(name string, typ elf.SectionType, data []byte) *section {
		s := &section{name: name, hdr: elf.Section64{Type: uint32(typ), Addralign: 1}, data: data}
		sections = append(sections, s)
		return s
	}
	table := func(syms []fixtureSym) (tab, strs []byte) {
		var b bytes.Buffer
		strs = []byte{0}
		require.NoError(t, binary.Write(&b, binary.LittleEndian, elf.Sym64{}))
		for _, sym := range syms {
			require.NoError(t, binary.Write(&b, binary.LittleEndian, elf.Sym64{
				Name:  uint32(len(strs)),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, sym.typ),
				Shndx: uint16(sym.shndx),
				Value: sym.value,
				Size:  16,
			}))
			strs = append(strs, sym.name+"\x00"...)
		}
		return b.Bytes(), strs
	}

	add("", elf.SHT_NULL, nil)
	text := add(".text", elf.SHT_PROGBITS, bytes.Repeat([]byte{0x90}, 0x40))
	text.hdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	text.hdr.Addr = 0x401000
	for _, tbl := range []struct {
		name, strName string
		typ           elf.SectionType
		syms          []fixtureSym
	}{
		{".symtab", ".strtab", elf.SHT_SYMTAB, symtab},
		{".dynsym", ".dynstr", elf.SHT_DYNSYM, dynsym},
	} {
		if tbl.syms == nil {
			continue
		}
		tab, strs := table(tbl.syms)
		sec := add(tbl.name, tbl.typ, tab)
		sec.hdr.Link = uint32(len(sections))
		sec.hdr.Info = 1
		sec.hdr.Entsize = elf.Sym64Size
		sec.hdr.Addralign = 8
		add(tbl.strName, elf.SHT_STRTAB, strs)
	}
	shstrtab := add(".shstrtab", elf.SHT_STRTAB, nil)
	shstrtab.data = []byte{0}
	for _, s := range sections[1:] {
		s.hdr.Name = uint32(len(shstrtab.data))
		shstrtab.data = append(shstrtab.data, s.name+"\x00"...)
	}

	const headerSize = 64
	body := bytes.NewBuffer(nil)
	for _, s := range sections[1:] {
		for (headerSize+body.Len())%8 != 0 {
			body.WriteByte(0)
		}
		s.hdr.Off = uint64(headerSize + body.Len())
		s.hdr.Size = uint64(len(s.data))
		body.Write(s.data)
	}
	for (headerSize+body.Len())%8 != 0 {
		body.WriteByte(0)
	}

	var out bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x401000,
		Shoff:     uint64(headerSize + body.Len()),
		Ehsize:    headerSize,
		Phentsize: 56,
		Shentsize: 64,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(len(sections) - 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	require.NoError(t, binary.Write(&out, binary.LittleEndian, hdr))
	out.Write(body.Bytes())
	for _, s := range sections {
		require.NoError(t, binary.Write(&out, binary.LittleEndian, s.hdr))
	}

	path := filepath.Join(t.TempDir(), "app")
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o755))
	return path
}

func TestLookupFunction(t *testing.T) {
	const text elf.SectionIndex = 1
	symtab := []fixtureSym{
		{"main.counter", elf.STT_OBJECT, text, 0x404000},
		{"puts", elf.STT_FUNC, elf.SHN_UNDEF, 0},
		{"main.crash", elf.STT_FUNC, text, 0x401010},
	}
	dynsym := []fixtureSym{
		{"exported_fn", elf.STT_FUNC, text, 0x401020},
	}

	tests := []struct {
		name    string
		symtab  []fixtureSym
		dynsym  []fixtureSym
		lookup  string
		want    uint64
		wantErr error
	}{
		{"symtab function", symtab, dynsym, "main.crash", 0x401010, nil},
		{"dynsym fallback", symtab, dynsym, "exported_fn", 0x401020, nil},
		{"dynsym only", nil, dynsym, "exported_fn", 0x401020, nil},
		{"object is not a function", symtab, nil, "main.counter", 0, ErrNotFound},
		{"undefined import", symtab, nil, "puts", 0, ErrNotFound},
		{"missing", symtab, dynsym, "no.such.function", 0, ErrNotFound},
		{"no symbol tables", nil, nil, "main.crash", 0, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewElf(writeSymbolELF(t, tt.symtab, tt.dynsym), "")
			require.NoError(t, err)
			defer e.Close()

			sym, err := e.LookupFunction(tt.lookup)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lookup, sym.Name)
			assert.Equal(t, tt.want, sym.Value)
			assert.Equal(t, elf.STT_FUNC, elf.ST_TYPE(sym.Info))
		})
	}
}

func TestIdentify(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("needs an ELF test binary")
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	a, err := Identify(exe, "")
	require.NoError(t, err)
	b, err := Identify(exe, "")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID)
	assert.Contains(t, []IDKind{IDBuildID, IDTextHash}, a.Kind)
	assert.True(t, a.Data.Present() || a.Bss.Present())
	assert.NotZero(t, a.RWLoadVaddr)
}

func TestIdentityCache(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("needs an ELF test binary")
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	c, err := NewIdentityCache(0)
	require.NoError(t, err)

	first, err := c.Get(exe, "")
	require.NoError(t, err)
	second, err := c.Get(exe, "")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())

	_, err = c.Get("/definitely/missing", "")
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestFindNote(t *testing.T) {
	f := &elf.File{FileHeader: elf.FileHeader{ByteOrder: leOrder()}}
	note := []byte{
		4, 0, 0, 0, // namesz
		3, 0, 0, 0, // descsz
		3, 0, 0, 0, // NT_GNU_BUILD_ID
		'G', 'N', 'U', 0,
		0xde, 0xad, 0xbf, 0,
	}
	id, ok := findNote(note, f, "GNU", 3)
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad, 0xbf}, id)

	_, ok = findNote(note[:14], f, "GNU", 3)
	assert.False(t, ok)
}
