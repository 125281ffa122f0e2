package tracer

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"github.com/coretrace/coretrace/pkg/process"
	"github.com/coretrace/coretrace/pkg/tracefile"
	"golang.org/x/sys/unix"
)

// kernelPtrace issues real ptrace requests.
type kernelPtrace struct {
	procRoot string

	mu   sync.Mutex
	mems map[int]*process.MemFile
}

// NewKernelPtrace returns the host ptrace backend. Memory goes through
// <procRoot>/<pid>/mem.
func NewKernelPtrace(procRoot string) Ptrace {
	if procRoot == "" {
		procRoot = process.DefaultRoot
	}
	return &kernelPtrace{procRoot: procRoot, mems: make(map[int]*process.MemFile)}
}

func (k *kernelPtrace) Launch(argv, env []string, dir string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true, Pdeathsig: unix.SIGKILL}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	// the child is reaped through Wait, never through cmd.Wait
	return cmd.Process.Pid, nil
}

func (k *kernelPtrace) Attach(tid int) error {
	return unix.PtraceAttach(tid)
}

func (k *kernelPtrace) SetOptions(tid int, options int) error {
	return unix.PtraceSetOptions(tid, options)
}

func (k *kernelPtrace) Syscall(tid int, sig unix.Signal) error {
	return unix.PtraceSyscall(tid, int(sig))
}

func (k *kernelPtrace) Detach(tid int, sig unix.Signal) error {
	return ptrace(unix.PTRACE_DETACH, tid, 0, uintptr(sig))
}

func (k *kernelPtrace) Wait(pid int) (int, unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		return wpid, ws, err
	}
}

func (k *kernelPtrace) GetRegSet(tid int, typ elf.NType, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, unix.EINVAL
	}
	iov := unix.Iovec{Base: &buf[0]}
	iov.SetLen(len(buf))
	if err := ptrace(unix.PTRACE_GETREGSET, tid, uintptr(typ), uintptr(unsafe.Pointer(&iov))); err != nil {
		return 0, err
	}
	return int(iov.Len), nil
}

func (k *kernelPtrace) SetRegSet(tid int, typ elf.NType, buf []byte) error {
	if len(buf) == 0 {
		return unix.EINVAL
	}
	iov := unix.Iovec{Base: &buf[0]}
	iov.SetLen(len(buf))
	return ptrace(unix.PTRACE_SETREGSET, tid, uintptr(typ), uintptr(unsafe.Pointer(&iov)))
}

func (k *kernelPtrace) GetEventMsg(tid int) (uint64, error) {
	msg, err := unix.PtraceGetEventMsg(tid)
	return uint64(msg), err
}

const sizeofSiginfo = 128

func (k *kernelPtrace) GetSigInfo(tid int) (tracefile.SigInfo, error) {
	var raw [sizeofSiginfo]byte
	if err := ptrace(unix.PTRACE_GETSIGINFO, tid, 0, uintptr(unsafe.Pointer(&raw[0]))); err != nil {
		return tracefile.SigInfo{}, err
	}
	return decodeSiginfo(raw[:], int(unsafe.Sizeof(uintptr(0)))), nil
}

// decodeSiginfo reads si_signo, si_errno, si_code and, for the fault
// signals, si_addr, which follows the header padded to pointer alignment.
func decodeSiginfo(raw []byte, ptrSize int) tracefile.SigInfo {
	le := binary.LittleEndian
	si := tracefile.SigInfo{
		Signo: int32(le.Uint32(raw[0:])),
		Errno: int32(le.Uint32(raw[4:])),
		Code:  int32(le.Uint32(raw[8:])),
	}
	if ptrSize == 8 {
		si.Addr = le.Uint64(raw[16:])
	} else {
		si.Addr = uint64(le.Uint32(raw[12:]))
	}
	return si
}

func (k *kernelPtrace) Tgkill(tgid, tid int, sig unix.Signal) error {
	return unix.Tgkill(tgid, tid, sig)
}

func (k *kernelPtrace) mem(pid int) (*process.MemFile, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if m, ok := k.mems[pid]; ok {
		return m, nil
	}
	m, err := process.OpenMem(k.procRoot, pid)
	if err != nil {
		return nil, err
	}
	k.mems[pid] = m
	return m, nil
}

func (k *kernelPtrace) ReadMemory(pid int, addr uint64, buf []byte) (int, error) {
	m, err := k.mem(pid)
	if err != nil {
		return 0, err
	}
	return m.ReadAt(buf, addr)
}

func (k *kernelPtrace) WriteMemory(pid int, addr uint64, data []byte) (int, error) {
	m, err := k.mem(pid)
	if err != nil {
		return 0, err
	}
	return m.WriteAt(data, addr)
}

func (k *kernelPtrace) Release(pid int) {
	k.mu.Lock()
	m, ok := k.mems[pid]
	delete(k.mems, pid)
	k.mu.Unlock()
	if ok {
		_ = m.Close()
	}
}

func ptrace(req int, pid int, addr, data uintptr) error {
	_, _, e := unix.Syscall6(unix.SYS_PTRACE, uintptr(req), uintptr(pid), addr, data, 0, 0)
	if e != 0 {
		return e
	}
	return nil
}
