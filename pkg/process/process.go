package process

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

var ErrUnknownProcess = errors.New("unknown process")

// Poison fills the parts of a read that the tracee could not supply.
const Poison uint32 = 0xdeadbeef

// MemFile reads and writes another process's memory through
// /proc/<pid>/mem. The caller must be the process's ptrace tracer.
type MemFile struct {
	pid int

	mu sync.Mutex
	f  *os.File
}

// OpenMem opens the memory file of pid below root (usually /proc).
func OpenMem(root string, pid int) (*MemFile, error) {
	f, err := os.OpenFile(root+"/"+strconv.Itoa(pid)+"/mem", os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
		}
		return nil, fmt.Errorf("opening memory of %d: %w", pid, err)
	}
	return &MemFile{pid: pid, f: f}, nil
}

func (m *MemFile) Pid() int {
	return m.pid
}

// ReadAt reads len(p) bytes at addr. Unlike io.ReaderAt it returns the
// count read so far without an error when the range runs into an
// unmapped page.
func (m *MemFile) ReadAt(p []byte, addr uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return 0, os.ErrClosed
	}

	n := 0
	for n < len(p) {
		k, err := unix.Pread(int(m.f.Fd()), p[n:], int64(addr)+int64(n))
		if k > 0 {
			n += k
		}
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EIO || err == unix.EFAULT:
			return n, nil
		case err != nil:
			return n, fmt.Errorf("reading %d bytes at %#x of %d: %w", len(p)-n, addr+uint64(n), m.pid, err)
		case k == 0:
			return n, nil
		}
	}
	return n, nil
}

// WriteAt stores p at addr.
func (m *MemFile) WriteAt(p []byte, addr uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return 0, os.ErrClosed
	}

	n := 0
	for n < len(p) {
		k, err := unix.Pwrite(int(m.f.Fd()), p[n:], int64(addr)+int64(n))
		if k > 0 {
			n += k
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("writing %d bytes at %#x of %d: %w", len(p)-n, addr+uint64(n), m.pid, err)
		}
		if k == 0 {
			return n, unix.EIO
		}
	}
	return n, nil
}

func (m *MemFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// Pad fills b with the poison pattern, aligned to the pattern's own
// period relative to the start of b.
func Pad(b []byte) {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], Poison)
	for i := range b {
		b[i] = word[i%4]
	}
}
