//go:build linux

package tracer

import (
	"context"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/coretrace/coretrace/pkg/arch"
	"github.com/coretrace/coretrace/pkg/binutils"
	"github.com/coretrace/coretrace/pkg/process"
	"github.com/coretrace/coretrace/pkg/tracefile"
)

// fakeStop is one scripted wait status. before runs, with the kernel
// locked, when the status is handed out.
type fakeStop struct {
	tid    int
	status unix.WaitStatus
	before func(k *fakeKernel)
}

func (f fakeStop) also(fn func(k *fakeKernel)) fakeStop {
	prev := f.before
	f.before = func(k *fakeKernel) {
		if prev != nil {
			prev(k)
		}
		fn(k)
	}
	return f
}

type fakeRegion struct {
	start uint64
	data  []byte
}

type resumption struct {
	tid int
	sig unix.Signal
}

// fakeKernel replays a script of wait statuses and records every request
// the session makes.
type fakeKernel struct {
	mu   sync.Mutex
	cond *sync.Cond

	pid    int
	script []fakeStop
	// block makes Wait(-1) sleep on an empty script instead of failing
	// with ECHILD.
	block bool

	regs       map[int][]byte
	msgs       map[int]uint64
	sigs       map[int]tracefile.SigInfo
	groupStops map[int]bool
	mem        map[int][]*fakeRegion

	// onResume runs, with the kernel locked, on every Syscall request.
	onResume func(k *fakeKernel, r resumption)

	launched []string
	attached []int
	options  map[int]int
	resumed  []resumption
	killed   []resumption
	detached map[int]unix.Signal
	setRegs  map[int][]byte
	released []int
}

func newFakeKernel(pid int, script ...fakeStop) *fakeKernel {
	k := &fakeKernel{
		pid:        pid,
		script:     script,
		regs:       map[int][]byte{},
		msgs:       map[int]uint64{},
		sigs:       map[int]tracefile.SigInfo{},
		groupStops: map[int]bool{},
		mem:        map[int][]*fakeRegion{},
		options:    map[int]int{},
		detached:   map[int]unix.Signal{},
		setRegs:    map[int][]byte{},
	}
	k.cond = sync.NewCond(&k.mu)
	return k
}

func (k *fakeKernel) mapMem(pid int, start uint64, data []byte) {
	k.mem[pid] = append(k.mem[pid], &fakeRegion{start: start, data: data})
}

func (k *fakeKernel) region(pid int, addr uint64) (*fakeRegion, uint64, bool) {
	for _, r := range k.mem[pid] {
		if addr >= r.start && addr < r.start+uint64(len(r.data)) {
			return r, addr - r.start, true
		}
	}
	return nil, 0, false
}

func (k *fakeKernel) Launch(argv, env []string, dir string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.launched = argv
	return k.pid, nil
}

func (k *fakeKernel) Attach(tid int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.attached = append(k.attached, tid)
	k.script = append(k.script, fakeStop{tid: tid, status: stopped(unix.SIGSTOP)})
	return nil
}

func (k *fakeKernel) SetOptions(tid int, options int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.options[tid] = options
	return nil
}

func (k *fakeKernel) Syscall(tid int, sig unix.Signal) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	r := resumption{tid, sig}
	k.resumed = append(k.resumed, r)
	if k.onResume != nil {
		k.onResume(k, r)
	}
	return nil
}

func (k *fakeKernel) Detach(tid int, sig unix.Signal) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.detached[tid] = sig
	return nil
}

func (k *fakeKernel) Wait(pid int) (int, unix.WaitStatus, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for {
		i := slices.IndexFunc(k.script, func(f fakeStop) bool { return pid == -1 || f.tid == pid })
		if i >= 0 {
			st := k.script[i]
			k.script = slices.Delete(k.script, i, i+1)
			if st.before != nil {
				st.before(k)
			}
			return st.tid, st.status, nil
		}
		if !k.block || pid != -1 {
			return 0, 0, unix.ECHILD
		}
		k.cond.Wait()
	}
}

func (k *fakeKernel) GetRegSet(tid int, typ elf.NType, buf []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if typ == elf.NT_FPREGSET {
		clear(buf)
		return len(buf), nil
	}
	regs, ok := k.regs[tid]
	if !ok {
		return 0, unix.ESRCH
	}
	return copy(buf, regs), nil
}

func (k *fakeKernel) SetRegSet(tid int, typ elf.NType, buf []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.setRegs[tid] = slices.Clone(buf)
	k.regs[tid] = slices.Clone(buf)
	return nil
}

func (k *fakeKernel) GetEventMsg(tid int) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.msgs[tid], nil
}

func (k *fakeKernel) GetSigInfo(tid int) (tracefile.SigInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.groupStops[tid] {
		return tracefile.SigInfo{}, unix.EINVAL
	}
	return k.sigs[tid], nil
}

func (k *fakeKernel) Tgkill(tgid, tid int, sig unix.Signal) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, resumption{tid, sig})
	if sig == unix.SIGSTOP {
		k.script = append(k.script, fakeStop{tid: tid, status: stopped(unix.SIGSTOP)})
		k.cond.Broadcast()
	}
	return nil
}

func (k *fakeKernel) ReadMemory(pid int, addr uint64, buf []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	r, off, ok := k.region(pid, addr)
	if !ok {
		return 0, unix.EIO
	}
	return copy(buf, r.data[off:]), nil
}

func (k *fakeKernel) WriteMemory(pid int, addr uint64, data []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	r, off, ok := k.region(pid, addr)
	if !ok {
		return 0, unix.EIO
	}
	return copy(r.data[off:], data), nil
}

func (k *fakeKernel) Release(pid int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.released = append(k.released, pid)
}

// poke writes tracee memory from a before hook; k.mu must be held.
func (k *fakeKernel) poke(pid int, addr uint64, data []byte) {
	if r, off, ok := k.region(pid, addr); ok {
		copy(r.data[off:], data)
	}
}

func (k *fakeKernel) peek(pid int, addr uint64, n int) []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	r, off, ok := k.region(pid, addr)
	if !ok {
		return nil
	}
	return slices.Clone(r.data[off : off+uint64(n)])
}

// wait statuses as the kernel encodes them

func stopped(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(uint32(sig)<<8 | 0x7f)
}

func syscallStop() unix.WaitStatus {
	return stopped(unix.SIGTRAP | sysGoodBit)
}

func eventStop(event int) unix.WaitStatus {
	return unix.WaitStatus(uint32(event)<<16 | uint32(unix.SIGTRAP)<<8 | 0x7f)
}

func groupStop(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(uint32(unix.PTRACE_EVENT_STOP)<<16 | uint32(sig)<<8 | 0x7f)
}

func exited(code int) unix.WaitStatus {
	return unix.WaitStatus(uint32(code) << 8)
}

func killed(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(sig)
}

// process image shared by the session tests
const (
	appPid    = 100
	textStart = 0x400000
	dataStart = 0x600000
	ldStart   = 0x7f0000000000
	stackEnd  = 0x7ffe0010000
	vdsoStart = 0x7fff0000000
	heapStart = 0x1000000

	rDebugAddr = dataStart + 0x100
	bufAddr    = dataStart + 0x800
	pathAddr   = textStart + 0x200
	appSP      = stackEnd - 0x1000
	appPC      = textStart + 0x100
)

var appMaps = strings.Join([]string{
	fmt.Sprintf("%x-%x r-xp 00000000 08:01 1234 /bin/app", textStart, textStart+0x1000),
	fmt.Sprintf("%x-%x rw-p 00001000 08:01 1234 /bin/app", dataStart, dataStart+0x1000),
	fmt.Sprintf("%x-%x r-xp 00000000 08:01 5678 /lib/ld.so", ldStart, ldStart+0x1000),
	fmt.Sprintf("%x-%x rw-p 00000000 00:00 0 [stack]", stackEnd-0x10000, stackEnd),
	fmt.Sprintf("%x-%x r-xp 00000000 00:00 0 [vdso]", vdsoStart, vdsoStart+0x2000),
}, "\n") + "\n"

var heapMap = fmt.Sprintf("%x-%x rw-p 00000000 00:00 0 [heap]\n", heapStart, heapStart+0x21000)

// amd64Regs lays out a user_regs_struct.
func amd64Regs(nr int, ret int64, args [6]uint64, sp, pc uint64) []byte {
	b := make([]byte, 27*8)
	put := func(slot int, v uint64) { binary.LittleEndian.PutUint64(b[slot*8:], v) }
	put(15, uint64(int64(nr)))
	put(10, uint64(ret))
	for i, slot := range []int{14, 13, 12, 7, 9, 8} {
		put(slot, args[i])
	}
	put(16, pc)
	put(19, sp)
	return b
}

// sys is a syscall stop of tid in nr; ret only matters at exit stops.
func sys(tid, nr int, ret int64, args ...uint64) fakeStop {
	var a [6]uint64
	copy(a[:], args)
	regs := amd64Regs(nr, ret, a, appSP, appPC)
	return fakeStop{tid: tid, status: syscallStop(), before: func(k *fakeKernel) { k.regs[tid] = regs }}
}

// sig is a signal-delivery-stop of tid.
func sig(tid int, s unix.Signal, si tracefile.SigInfo) fakeStop {
	regs := amd64Regs(-1, 0, [6]uint64{}, appSP, appPC)
	return fakeStop{tid: tid, status: stopped(s), before: func(k *fakeKernel) {
		k.regs[tid] = regs
		k.sigs[tid] = si
	}}
}

func event(tid, ev int, msg uint64) fakeStop {
	return fakeStop{tid: tid, status: eventStop(ev), before: func(k *fakeKernel) { k.msgs[tid] = msg }}
}

func exit(tid int, st unix.WaitStatus) fakeStop {
	return fakeStop{tid: tid, status: st}
}

type fixture struct {
	fs       afero.Fs
	procFs   afero.Fs
	procRoot string
	k        *fakeKernel
	cache    *binutils.IdentityCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixtureAt(t, afero.NewMemMapFs(), "/proc")
	f.mapApp(appPid)
	return f
}

// newFixtureAt keeps the fake procfs under procRoot on procFs; trace
// files always go to an in-memory filesystem.
func newFixtureAt(t *testing.T, procFs afero.Fs, procRoot string) *fixture {
	t.Helper()
	f := &fixture{
		fs:       afero.NewMemMapFs(),
		procFs:   procFs,
		procRoot: procRoot,
		k:        newFakeKernel(appPid),
	}
	f.writeProc(t, appPid, appPid, 1, appMaps)

	var err error
	f.cache, err = binutils.NewIdentityCache(0)
	require.NoError(t, err)
	for _, pid := range []int{appPid, appPid + 1} {
		root := filepath.Join(procRoot, strconv.Itoa(pid), "root")
		f.cache.Store(root, &binutils.ModuleInfo{
			Path: "/bin/app", ID: "app", Kind: binutils.IDBuildID,
			Type: elf.ET_EXEC, Machine: elf.EM_X86_64, Class: elf.ELFCLASS64,
			FirstLoadVaddr: textStart, DynamicVaddr: dataStart, DynamicSize: 32,
		})
		f.cache.Store(root, &binutils.ModuleInfo{
			Path: "/lib/ld.so", ID: "ld", Kind: binutils.IDBuildID,
			Type: elf.ET_DYN, Machine: elf.EM_X86_64, Class: elf.ELFCLASS64,
		})
	}
	return f
}

func (f *fixture) script(stops ...fakeStop) {
	f.k.script = append(f.k.script, stops...)
}

func (f *fixture) writeProc(t *testing.T, pid, tgid, ppid int, maps string) {
	t.Helper()
	auxv := binary.LittleEndian.AppendUint64(nil, process.AT_SYSINFO_EHDR)
	auxv = binary.LittleEndian.AppendUint64(auxv, vdsoStart)
	auxv = binary.LittleEndian.AppendUint64(auxv, process.AT_PAGESZ)
	auxv = binary.LittleEndian.AppendUint64(auxv, 4096)
	auxv = binary.LittleEndian.AppendUint64(auxv, process.AT_NULL)
	auxv = binary.LittleEndian.AppendUint64(auxv, 0)

	dir := filepath.Join(f.procRoot, strconv.Itoa(pid))
	files := map[string]string{
		dir + "/maps":    maps,
		dir + "/auxv":    string(auxv),
		dir + "/cmdline": "/bin/app\x00--crash\x00",
		dir + "/environ": "HOME=/root\x00",
		dir + "/stat":    fmt.Sprintf("%d (app) t %d %d %d 0 -1 4194560 0 0 0 0 0 0 0 0 20 0 1 0\n", pid, ppid, tgid, tgid),
		dir + "/status":  fmt.Sprintf("Name:\tapp\nState:\tt (tracing stop)\nTgid:\t%d\nPPid:\t%d\nUid:\t1000\t1000\t1000\t1000\nGid:\t1000\t1000\t1000\t1000\n", tgid, ppid),
		fmt.Sprintf("%s/task/%d/stat", dir, pid): "",
	}
	for name, content := range files {
		require.NoError(t, f.procFs.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, afero.WriteFile(f.procFs, name, []byte(content), 0o644))
	}
	if sl, ok := f.procFs.(afero.Symlinker); ok {
		require.NoError(t, sl.SymlinkIfPossible("/bin/app", dir+"/exe"))
	} else {
		require.NoError(t, afero.WriteFile(f.procFs, dir+"/exe", []byte("/bin/app"), 0o644))
	}
}

// mapApp fills the tracee memory behind appMaps: the executable's
// _DYNAMIC points DT_DEBUG at an r_debug listing the executable and the
// loader.
func (f *fixture) mapApp(pid int) {
	text := make([]byte, 0x1000)
	for i := range text {
		text[i] = 0x90
	}
	copy(text[pathAddr-textStart:], "/etc/app.conf\x00")

	data := make([]byte, 0x1000)
	binary.LittleEndian.PutUint64(data[0:], uint64(elf.DT_DEBUG))
	binary.LittleEndian.PutUint64(data[8:], rDebugAddr)
	copy(data[rDebugAddr-dataStart:], binutils.EncodeLinkMaps(elf.ELFCLASS64, rDebugAddr, ldStart, []binutils.LinkMap{
		{Addr: 0, Name: "", Dynamic: dataStart},
		{Addr: ldStart, Name: "/lib/ld.so", Dynamic: ldStart + 0xe00},
	}))

	vdso := make([]byte, 0x2000)
	copy(vdso, elf.ELFMAG)

	f.k.mapMem(pid, textStart, text)
	f.k.mapMem(pid, dataStart, data)
	f.k.mapMem(pid, ldStart, make([]byte, 0x1000))
	f.k.mapMem(pid, stackEnd-0x10000, make([]byte, 0x10000))
	f.k.mapMem(pid, vdsoStart, vdso)
}

func (f *fixture) session(t *testing.T, cfg Config, opts ...Option) *Session {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = "/trace"
	}
	a, err := arch.ForName("amd64")
	require.NoError(t, err)
	base := []Option{
		WithArch(a),
		WithPtrace(f.k),
		WithProcFS(process.NewProcFSWith(f.procFs, f.procRoot)),
		WithIdentityCache(f.cache),
		WithFs(f.fs),
	}
	s, err := NewSession(zaptest.NewLogger(t), cfg, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func (f *fixture) load(t *testing.T, pid int) *tracefile.Trace {
	t.Helper()
	tr, err := tracefile.LoadTrace(context.Background(), f.fs, "/trace", pid, zaptest.NewLogger(t), tracefile.WithPayload(true))
	require.NoError(t, err)
	return tr
}

func types(tr *tracefile.Trace) []tracefile.EventType {
	out := make([]tracefile.EventType, len(tr.Events))
	for i, ev := range tr.Events {
		out[i] = ev.Type
	}
	return out
}
