// Package binutils inspects the ELF modules mapped into a traced process:
// module identity, the dynamic section, loader debug structures and
// symbol lookup for break-at addresses.
package binutils

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrNotELF       = errors.New("file is not an ELF")
	ErrNoFileLoaded = errors.New("no file loaded")
	ErrNoSymbols    = errors.New("no symbol section")
	ErrFileClosed   = errors.New("file is closed")
	ErrNotFound     = errors.New("symbol not found")
)

const bufferSize = 4096

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new([bufferSize]byte)
	},
}

type MatchStrategy int

const (
	MatchStrategyExact MatchStrategy = iota
	MatchStrategyPrefix
	MatchStrategySuffix
	MatchStrategyContains
)

type SymbolSearch struct {
	Name string
	MatchStrategy
}

// Elf is an open module file. When root is set the path is resolved
// beneath it, which lets modules of a tracee in another mount namespace
// be read through /proc/<pid>/root.
type Elf struct {
	path string
	root string
	file *os.File
	ef   *elf.File

	isClosed bool
}

// NewElf opens path (beneath root, if non-empty).
// Returns ErrNotELF if the file is not an ELF.
// Remember to call Close() when done
func NewElf(path string, root string) (*Elf, error) {
	e := &Elf{
		path: path,
		root: root,
	}

	file, err := os.Open(e.FilePath())
	if err != nil {
		return nil, fmt.Errorf("opening module: %w", err)
	}
	e.file = file

	var ident [4]byte
	if _, err := file.ReadAt(ident[:], 0); err != nil || !bytes.Equal(ident[:], []byte(elf.ELFMAG)) {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotELF, e.FilePath())
	}

	return e, nil
}

func (e *Elf) Close() error {
	if e.isClosed {
		return nil
	}
	e.isClosed = true

	if e.file != nil {
		return e.file.Close()
	}
	return nil
}

// FilePath is the path actually opened.
func (e *Elf) FilePath() string {
	if e.root != "" && e.root != "/" {
		return filepath.Join(e.root, e.path)
	}
	return e.path
}

func (e *Elf) Elf() (*elf.File, error) {
	if e.isClosed {
		return nil, ErrFileClosed
	}
	if e.file == nil {
		return nil, ErrNoFileLoaded
	}
	if e.ef == nil {
		var err error
		e.ef, err = elf.NewFile(e.file)
		if err != nil {
			return nil, fmt.Errorf("opening ELF: %w", err)
		}
	}

	return e.ef, nil
}

// ReadAt reads raw file bytes.
func (e *Elf) ReadAt(p []byte, off int64) (int, error) {
	if e.isClosed {
		return 0, ErrFileClosed
	}
	return e.file.ReadAt(p, off)
}

// SearchSymbols scans the given symbol tables in order and stops once
// every target has matched.
func (e *Elf) SearchSymbols(targets []SymbolSearch, sectionTypes ...elf.SectionType) ([]elf.Symbol, error) {
	f, err := e.Elf()
	if err != nil {
		return nil, err
	}

	var all []elf.Symbol
	for _, typ := range sectionTypes {
		matches, err := scanSymbols(f, typ, targets, len(targets)-len(all))
		if errors.Is(err, ErrNoSymbols) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("searching symbols in section type %v: %w", typ, err)
		}

		all = append(all, matches...)
		if len(all) >= len(targets) {
			break
		}
	}

	return all, nil
}

// LookupFunction resolves the link-time address of a function symbol,
// preferring the full symbol table over the dynamic one.
func (e *Elf) LookupFunction(name string) (elf.Symbol, error) {
	syms, err := e.SearchSymbols([]SymbolSearch{{Name: name}}, elf.SHT_SYMTAB, elf.SHT_DYNSYM)
	if err != nil {
		return elf.Symbol{}, err
	}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Section != elf.SHN_UNDEF && s.Value != 0 {
			return s, nil
		}
	}
	return elf.Symbol{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// scanSymbols walks one symbol table entry by entry without materialising
// every symbol name.
func scanSymbols(f *elf.File, typ elf.SectionType, targets []SymbolSearch, limit int) ([]elf.Symbol, error) {
	symtab := f.SectionByType(typ)
	if symtab == nil {
		return nil, ErrNoSymbols
	}
	if symtab.Link == 0 || symtab.Link >= uint32(len(f.Sections)) {
		return nil, errors.New("section has invalid string table link")
	}

	entSize := int64(elf.Sym64Size)
	if f.Class == elf.ELFCLASS32 {
		entSize = elf.Sym32Size
	}

	tab := symtab.Open()
	strs := f.Sections[symtab.Link].Open()

	// entry 0 is the reserved null symbol
	if _, err := tab.Seek(entSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek in symbol table: %w", err)
	}

	var matches []elf.Symbol
	rec := make([]byte, entSize)
	for len(matches) < limit {
		if _, err := io.ReadFull(tab, rec); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("failed to read symbol: %w", err)
		}

		sym := decodeSym(f, rec)
		name, err := readString(strs, int64(f.ByteOrder.Uint32(rec[0:4])))
		if err != nil {
			return nil, fmt.Errorf("failed to read string: %w", err)
		}
		if MatchSymbol(name, targets) {
			sym.Name = name
			matches = append(matches, sym)
		}
	}

	return matches, nil
}

func decodeSym(f *elf.File, rec []byte) elf.Symbol {
	bo := f.ByteOrder
	if f.Class == elf.ELFCLASS32 {
		return elf.Symbol{
			Value:   uint64(bo.Uint32(rec[4:8])),
			Size:    uint64(bo.Uint32(rec[8:12])),
			Info:    rec[12],
			Other:   rec[13],
			Section: elf.SectionIndex(bo.Uint16(rec[14:16])),
		}
	}
	return elf.Symbol{
		Info:    rec[4],
		Other:   rec[5],
		Section: elf.SectionIndex(bo.Uint16(rec[6:8])),
		Value:   bo.Uint64(rec[8:16]),
		Size:    bo.Uint64(rec[16:24]),
	}
}

// readString reads a null-terminated string from the given ReadSeeker starting at the given offset
func readString(r io.ReadSeeker, offset int64) (string, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek to string offset: %w", err)
	}

	buf := bufferPool.Get().(*[bufferSize]byte)
	defer bufferPool.Put(buf)

	n, err := r.Read(buf[:])
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read string data: %w", err)
	}

	end := bytes.IndexByte(buf[:n], 0)
	if end == -1 {
		return "", errors.New("string not null-terminated within buffer")
	}

	return string(buf[:end]), nil
}

// Needed returns the DT_NEEDED entries.
func (e *Elf) Needed() ([]string, error) {
	f, err := e.Elf()
	if err != nil {
		return nil, err
	}
	libs, err := f.ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("reading DT_NEEDED: %w", err)
	}
	return libs, nil
}

func MatchSymbol(symName string, targets []SymbolSearch) bool {
	for _, target := range targets {
		if match(symName, target.Name, target.MatchStrategy) {
			return true
		}
	}
	return false
}

func match(symName, targetName string, strategy MatchStrategy) bool {
	switch strategy {
	case MatchStrategyExact:
		return symName == targetName
	case MatchStrategyPrefix:
		return strings.HasPrefix(symName, targetName)
	case MatchStrategySuffix:
		return strings.HasSuffix(symName, targetName)
	case MatchStrategyContains:
		return strings.Contains(symName, targetName)
	default:
		return false
	}
}
