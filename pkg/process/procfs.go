package process

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/coretrace/coretrace/pkg/vmem"
)

// DefaultRoot is where procfs is mounted.
const DefaultRoot = "/proc"

// ProcFS reads per-process pseudo files. The filesystem is injectable so
// tests can lay out fixtures in memory.
type ProcFS struct {
	fs   afero.Fs
	root string
}

// NewProcFS returns a reader over the host procfs.
func NewProcFS() *ProcFS {
	return &ProcFS{fs: afero.NewOsFs(), root: DefaultRoot}
}

// NewProcFSWith reads procfs files from fs below root.
func NewProcFSWith(fs afero.Fs, root string) *ProcFS {
	return &ProcFS{fs: fs, root: root}
}

func (p *ProcFS) path(pid int, elem ...string) string {
	return path.Join(append([]string{p.root, strconv.Itoa(pid)}, elem...)...)
}

// Root is the directory through which pid's mount namespace is visible.
func (p *ProcFS) Root(pid int) string {
	return p.path(pid, "root")
}

// AllProcs returns a list of all currently available processes.
func (p *ProcFS) AllProcs() ([]int, error) {
	return p.numericEntries(p.root)
}

// Tasks lists the thread ids of pid, sorted ascending.
func (p *ProcFS) Tasks(pid int) ([]int, error) {
	tids, err := p.numericEntries(p.path(pid, "task"))
	if err != nil {
		return nil, err
	}
	slices.Sort(tids)
	return tids, nil
}

func (p *ProcFS) numericEntries(dir string) ([]int, error) {
	d, err := p.fs.Open(dir)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	names, err := d.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	out := []int{}
	for _, n := range names {
		id, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// CmdLine returns the command line of a process.
func (p *ProcFS) CmdLine(pid int) ([]string, error) {
	data, err := p.Raw(pid, "cmdline")
	if err != nil {
		return nil, err
	}
	return SplitNul(data), nil
}

// Environ reads process environments from `/proc/<pid>/environ`.
func (p *ProcFS) Environ(pid int) ([]string, error) {
	data, err := p.Raw(pid, "environ")
	if err != nil {
		return nil, err
	}
	return SplitNul(data), nil
}

// Raw returns the unparsed bytes of a per-process file.
func (p *ProcFS) Raw(pid int, name string) ([]byte, error) {
	return afero.ReadFile(p.fs, p.path(pid, name))
}

// Auxv returns the raw auxiliary vector.
func (p *ProcFS) Auxv(pid int) ([]byte, error) {
	return p.Raw(pid, "auxv")
}

// Executable returns the absolute path to the executable of the process.
func (p *ProcFS) Executable(pid int) (string, error) {
	exe := p.path(pid, "exe")
	if lr, ok := p.fs.(afero.LinkReader); ok {
		target, err := lr.ReadlinkIfPossible(exe)
		if os.IsNotExist(err) {
			return "", nil
		}
		return target, err
	}
	data, err := afero.ReadFile(p.fs, exe)
	if os.IsNotExist(err) {
		return "", nil
	}
	return strings.TrimSpace(string(data)), err
}

// Maps parses /proc/<pid>/maps, sorted by start address.
func (p *ProcFS) Maps(pid int) ([]vmem.Mapping, error) {
	f, err := p.fs.Open(p.path(pid, "maps"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMaps(f)
}

// ParseMaps decodes lines of the form
// "start-end perms offset dev inode pathname".
func ParseMaps(r io.Reader) ([]vmem.Mapping, error) {
	var out []vmem.Mapping
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		m, err := parseMapsLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b vmem.Mapping) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return out, nil
}

func parseMapsLine(line string) (vmem.Mapping, error) {
	var m vmem.Mapping
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return m, fmt.Errorf("malformed maps line: %q", line)
	}

	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return m, fmt.Errorf("malformed maps range: %q", fields[0])
	}
	start, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return m, fmt.Errorf("maps start: %w", err)
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return m, fmt.Errorf("maps end: %w", err)
	}
	off, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return m, fmt.Errorf("maps offset: %w", err)
	}
	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return m, fmt.Errorf("maps inode: %w", err)
	}

	m.Segment = vmem.Segment{Start: start, End: end}
	m.Perm = vmem.ParsePerm(fields[1])
	m.Offset = off
	m.Inode = inode

	if len(fields) > 5 {
		// the path is everything after the inode column and may hold spaces
		rest := line
		for i := 0; i < 5; i++ {
			rest = strings.TrimLeft(rest, " \t")
			if j := strings.IndexAny(rest, " \t"); j >= 0 {
				rest = rest[j:]
			}
		}
		m.Path = strings.TrimSuffix(strings.TrimSpace(rest), " (deleted)")
	}
	return m, nil
}

// Status holds the /proc/<pid>/status fields the tracer needs.
type Status struct {
	Name      string
	State     byte
	Tgid      int
	PPid      int
	TracerPid int
	Uid       int
	Gid       int
}

// Status parses /proc/<pid>/status.
func (p *ProcFS) Status(pid int) (Status, error) {
	var st Status
	data, err := p.Raw(pid, "status")
	if err != nil {
		return st, err
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		first := val
		if f := strings.Fields(val); len(f) > 0 {
			first = f[0]
		}
		switch key {
		case "Name":
			st.Name = val
		case "State":
			if len(val) > 0 {
				st.State = val[0]
			}
		case "Tgid":
			st.Tgid, _ = strconv.Atoi(first)
		case "PPid":
			st.PPid, _ = strconv.Atoi(first)
		case "TracerPid":
			st.TracerPid, _ = strconv.Atoi(first)
		case "Uid":
			st.Uid, _ = strconv.Atoi(first)
		case "Gid":
			st.Gid, _ = strconv.Atoi(first)
		}
	}
	return st, sc.Err()
}

// Stat holds the /proc/<pid>/stat fields written into core prpsinfo.
type Stat struct {
	Comm    string
	State   byte
	PPid    int
	Pgrp    int
	Session int
	Flags   uint64
	Nice    int
}

// Stat parses /proc/<pid>/stat. The comm field may contain spaces and
// parentheses, so fields are located from the last ')'.
func (p *ProcFS) Stat(pid int) (Stat, error) {
	var st Stat
	data, err := p.Raw(pid, "stat")
	if err != nil {
		return st, err
	}
	return ParseStat(data)
}

func ParseStat(data []byte) (Stat, error) {
	var st Stat
	open, end := bytes.IndexByte(data, '('), bytes.LastIndexByte(data, ')')
	if open < 0 || end < open {
		return st, fmt.Errorf("malformed stat: %q", data)
	}
	st.Comm = string(data[open+1 : end])

	// fields after comm: state ppid pgrp session tty_nr tpgid flags ...
	f := strings.Fields(string(data[end+1:]))
	if len(f) < 17 {
		return st, fmt.Errorf("short stat: %d fields", len(f))
	}
	st.State = f[0][0]
	st.PPid, _ = strconv.Atoi(f[1])
	st.Pgrp, _ = strconv.Atoi(f[2])
	st.Session, _ = strconv.Atoi(f[3])
	st.Flags, _ = strconv.ParseUint(f[6], 10, 64)
	st.Nice, _ = strconv.Atoi(f[16])
	return st, nil
}

// IsKernelThread reports whether pid has no user address space.
func (p *ProcFS) IsKernelThread(pid int) (bool, error) {
	data, err := p.Raw(pid, "status")
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "VmSize:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				vmSize, err := strconv.ParseUint(fields[1], 10, 64)
				if err != nil {
					return false, fmt.Errorf("failed to parse VmSize: %w", err)
				}
				return vmSize == 0, nil
			}
		}
	}
	return true, nil
}

// SplitNul splits a NUL separated procfs blob, dropping the trailing
// terminator.
func SplitNul(data []byte) []string {
	data = bytes.TrimRight(data, "\x00")
	if len(data) == 0 {
		return []string{}
	}
	return strings.Split(string(data), "\x00")
}

// Auxv keys used by the tracer.
const (
	AT_NULL         = 0
	AT_PHDR         = 3
	AT_PHENT        = 4
	AT_PHNUM        = 5
	AT_PAGESZ       = 6
	AT_BASE         = 7
	AT_ENTRY        = 9
	AT_SYSINFO_EHDR = 33
)

// ParseAuxv decodes an auxiliary vector of ptrSize-wide pairs.
func ParseAuxv(b []byte, ptrSize int) map[uint64]uint64 {
	out := make(map[uint64]uint64)
	step := 2 * ptrSize
	for off := 0; off+step <= len(b); off += step {
		var k, v uint64
		if ptrSize == 4 {
			k = uint64(binary.LittleEndian.Uint32(b[off:]))
			v = uint64(binary.LittleEndian.Uint32(b[off+4:]))
		} else {
			k = binary.LittleEndian.Uint64(b[off:])
			v = binary.LittleEndian.Uint64(b[off+8:])
		}
		if k == AT_NULL {
			break
		}
		out[k] = v
	}
	return out
}
