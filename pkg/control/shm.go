package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// DefaultShmDir is where POSIX shared memory objects live on Linux.
const DefaultShmDir = "/dev/shm"

const (
	bufferMagic   = 0x42535443 // "CTSB"
	bufferVersion = 1

	offMagic     = 0
	offVersion   = 4
	offCapacity  = 8
	offUsed      = 16
	offPageSize  = 24
	offMaxStack  = 28
	offMaxParam  = 32
	offFilterLen = 36
	offABILen    = 40
	offData      = 44
	headerFixed  = 48
	dataAlign    = 64
)

const maxBufferCapacity = 1 << 32

var (
	ErrBufferFull   = errors.New("shared buffer full")
	ErrBadBuffer    = errors.New("not a coretrace shared buffer")
	ErrBufferClosed = errors.New("shared buffer closed")
	errBufferSize   = errors.New("invalid shared buffer capacity")
)

// BufferConfig is what the tracer publishes to the tracee through the
// buffer header.
type BufferConfig struct {
	Capacity uint64
	PageSize uint32
	MaxStack uint32
	MaxParam uint32
	// Filter is the active syscall bitmap, one bit per number.
	Filter []byte
	// ABI is the encoded per-syscall argument table.
	ABI []byte
}

// SharedBuffer is a mapped staging buffer: a header followed by a data
// area holding records in context stream framing.
type SharedBuffer struct {
	path  string
	owner bool
	fd    int
	mem   []byte
	data  int
	cap   uint64
}

func shmPath(dir, name string) string {
	return filepath.Join(dir, strings.TrimPrefix(name, "/"))
}

func headerLen(filter, abi int) int {
	n := headerFixed + filter + abi
	return (n + dataAlign - 1) &^ (dataAlign - 1)
}

// CreateSharedBuffer creates and maps the named buffer beneath dir. The
// creator unlinks it on Close.
func CreateSharedBuffer(dir, name string, cfg BufferConfig) (*SharedBuffer, error) {
	if cfg.Capacity == 0 || cfg.Capacity > maxBufferCapacity {
		return nil, fmt.Errorf("%w: %d", errBufferSize, cfg.Capacity)
	}
	path := shmPath(dir, name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	data := headerLen(len(cfg.Filter), len(cfg.ABI))
	size := data + int(cfg.Capacity)
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, multierr.Combine(fmt.Errorf("sizing %s: %w", path, err), unix.Close(fd), os.Remove(path))
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("mapping %s: %w", path, err), unix.Close(fd), os.Remove(path))
	}

	le.PutUint32(mem[offMagic:], bufferMagic)
	le.PutUint32(mem[offVersion:], bufferVersion)
	le.PutUint64(mem[offCapacity:], cfg.Capacity)
	le.PutUint32(mem[offPageSize:], cfg.PageSize)
	le.PutUint32(mem[offMaxStack:], cfg.MaxStack)
	le.PutUint32(mem[offMaxParam:], cfg.MaxParam)
	le.PutUint32(mem[offFilterLen:], uint32(len(cfg.Filter)))
	le.PutUint32(mem[offABILen:], uint32(len(cfg.ABI)))
	le.PutUint32(mem[offData:], uint32(data))
	copy(mem[headerFixed:], cfg.Filter)
	copy(mem[headerFixed+len(cfg.Filter):], cfg.ABI)

	return &SharedBuffer{path: path, owner: true, fd: fd, mem: mem, data: data, cap: cfg.Capacity}, nil
}

// OpenSharedBuffer maps an existing buffer, as the tracee side does.
func OpenSharedBuffer(dir, name string) (*SharedBuffer, error) {
	path := shmPath(dir, name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, multierr.Append(err, unix.Close(fd))
	}
	if st.Size < headerFixed {
		return nil, multierr.Append(ErrBadBuffer, unix.Close(fd))
	}
	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("mapping %s: %w", path, err), unix.Close(fd))
	}

	b := &SharedBuffer{path: path, fd: fd, mem: mem}
	b.cap = le.Uint64(mem[offCapacity:])
	b.data = int(le.Uint32(mem[offData:]))
	if le.Uint32(mem[offMagic:]) != bufferMagic || uint64(b.data)+b.cap > uint64(len(mem)) {
		return nil, multierr.Append(ErrBadBuffer, b.Close())
	}
	return b, nil
}

func (b *SharedBuffer) used() *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&b.mem[offUsed]))
}

func (b *SharedBuffer) Name() string {
	return "/" + filepath.Base(b.path)
}

func (b *SharedBuffer) Capacity() uint64 {
	return b.cap
}

// Len is the number of staged bytes.
func (b *SharedBuffer) Len() uint64 {
	if b.mem == nil {
		return 0
	}
	return b.used().Load()
}

// Config reads back the published header.
func (b *SharedBuffer) Config() BufferConfig {
	flen := int(le.Uint32(b.mem[offFilterLen:]))
	alen := int(le.Uint32(b.mem[offABILen:]))
	return BufferConfig{
		Capacity: b.cap,
		PageSize: le.Uint32(b.mem[offPageSize:]),
		MaxStack: le.Uint32(b.mem[offMaxStack:]),
		MaxParam: le.Uint32(b.mem[offMaxParam:]),
		Filter:   append([]byte(nil), b.mem[headerFixed:headerFixed+flen]...),
		ABI:      append([]byte(nil), b.mem[headerFixed+flen:headerFixed+flen+alen]...),
	}
}

// Append reserves space for rec and copies it in.
func (b *SharedBuffer) Append(rec []byte) error {
	if b.mem == nil {
		return ErrBufferClosed
	}
	used := b.used()
	for {
		cur := used.Load()
		next := cur + uint64(len(rec))
		if next > b.cap {
			return ErrBufferFull
		}
		if used.CompareAndSwap(cur, next) {
			copy(b.mem[b.data+int(cur):], rec)
			return nil
		}
	}
}

// Drain copies the staged bytes out and resets the buffer. Writers in the
// tracee are stopped while a flush request is served.
func (b *SharedBuffer) Drain() []byte {
	if b.mem == nil {
		return nil
	}
	used := b.used()
	n := used.Load()
	out := append([]byte(nil), b.mem[b.data:b.data+int(n)]...)
	used.Store(0)
	return out
}

func (b *SharedBuffer) Close() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	err = multierr.Append(err, unix.Close(b.fd))
	if b.owner {
		err = multierr.Append(err, os.Remove(b.path))
	}
	return err
}
