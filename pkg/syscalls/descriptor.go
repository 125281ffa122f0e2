// Package syscalls holds the per-architecture syscall ABI tables and the
// filter language used to pick which syscalls get recorded.
package syscalls

import "strings"

// Class groups syscalls the way strace's %class qualifiers do.
type Class uint16

const (
	File Class = 1 << iota
	Desc
	Network
	Process
	Memory
	Signal
	IPC
	Clock
)

var classNames = map[string]Class{
	"file":    File,
	"desc":    Desc,
	"network": Network,
	"net":     Network,
	"process": Process,
	"memory":  Memory,
	"signal":  Signal,
	"ipc":     IPC,
	"clock":   Clock,
}

func (c Class) String() string {
	var parts []string
	for _, n := range []string{"file", "desc", "network", "process", "memory", "signal", "ipc", "clock"} {
		if c&classNames[n] != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// NoLen marks a pointer argument whose size is not given by another
// argument.
const NoLen = -1

// Pointer describes one pointer argument. When LenArg is not NoLen the
// pointed-to size is the value of that argument.
type Pointer struct {
	Arg    int
	LenArg int
}

// Descriptor is the architecture independent shape of a syscall.
type Descriptor struct {
	Name  string
	Args  int
	Ptrs  []Pointer
	Class Class
}

// PointerFor returns the pointer metadata of argument i.
func (d *Descriptor) PointerFor(i int) (Pointer, bool) {
	for _, p := range d.Ptrs {
		if p.Arg == i {
			return p, true
		}
	}
	return Pointer{}, false
}

func p(arg int) Pointer         { return Pointer{Arg: arg, LenArg: NoLen} }
func pl(arg, lenArg int) Pointer { return Pointer{Arg: arg, LenArg: lenArg} }

func ptrs(ps ...Pointer) []Pointer { return ps }

var descriptors = []Descriptor{
	// descriptors and plain I/O
	{"read", 3, ptrs(pl(1, 2)), Desc},
	{"write", 3, ptrs(pl(1, 2)), Desc},
	{"pread64", 4, ptrs(pl(1, 2)), Desc},
	{"pwrite64", 4, ptrs(pl(1, 2)), Desc},
	{"readv", 3, ptrs(p(1)), Desc},
	{"writev", 3, ptrs(p(1)), Desc},
	{"preadv", 5, ptrs(p(1)), Desc},
	{"pwritev", 5, ptrs(p(1)), Desc},
	{"close", 1, nil, Desc},
	{"close_range", 3, nil, Desc},
	{"lseek", 3, nil, Desc},
	{"ioctl", 3, nil, Desc},
	{"dup", 1, nil, Desc},
	{"dup2", 2, nil, Desc},
	{"dup3", 3, nil, Desc},
	{"fcntl", 3, nil, Desc},
	{"fcntl64", 3, nil, Desc},
	{"flock", 2, nil, Desc},
	{"fsync", 1, nil, Desc},
	{"fdatasync", 1, nil, Desc},
	{"ftruncate", 2, nil, Desc},
	{"ftruncate64", 3, nil, Desc},
	{"getdents", 3, ptrs(pl(1, 2)), Desc},
	{"getdents64", 3, ptrs(pl(1, 2)), Desc},
	{"fchdir", 1, nil, Desc},
	{"fchmod", 2, nil, Desc},
	{"fchown", 3, nil, Desc},
	{"fstat", 2, ptrs(p(1)), Desc},
	{"fstat64", 2, ptrs(p(1)), Desc},
	{"fstatfs", 2, ptrs(p(1)), Desc},
	{"fstatfs64", 3, ptrs(p(2)), Desc},
	{"poll", 3, ptrs(p(0)), Desc},
	{"ppoll", 5, ptrs(p(0), p(2), p(3)), Desc},
	{"select", 5, ptrs(p(1), p(2), p(3), p(4)), Desc},
	{"_newselect", 5, ptrs(p(1), p(2), p(3), p(4)), Desc},
	{"pselect6", 6, ptrs(p(1), p(2), p(3), p(4), p(5)), Desc},
	{"epoll_create", 1, nil, Desc},
	{"epoll_create1", 1, nil, Desc},
	{"epoll_ctl", 4, ptrs(p(3)), Desc},
	{"epoll_wait", 4, ptrs(p(1)), Desc},
	{"epoll_pwait", 6, ptrs(p(1), pl(4, 5)), Desc},
	{"eventfd", 1, nil, Desc},
	{"eventfd2", 2, nil, Desc},
	{"signalfd", 3, ptrs(pl(1, 2)), Desc | Signal},
	{"signalfd4", 4, ptrs(pl(1, 2)), Desc | Signal},
	{"timerfd_create", 2, nil, Desc | Clock},
	{"timerfd_settime", 4, ptrs(p(2), p(3)), Desc | Clock},
	{"timerfd_gettime", 2, ptrs(p(1)), Desc | Clock},
	{"inotify_init", 0, nil, Desc},
	{"inotify_init1", 1, nil, Desc},
	{"inotify_add_watch", 3, ptrs(p(1)), Desc | File},
	{"inotify_rm_watch", 2, nil, Desc},
	{"memfd_create", 2, ptrs(p(0)), Desc},
	{"sendfile", 4, ptrs(p(2)), Desc | Network},
	{"sendfile64", 4, ptrs(p(2)), Desc | Network},
	{"splice", 6, ptrs(p(1), p(3)), Desc},
	{"tee", 4, nil, Desc},
	{"vmsplice", 4, ptrs(p(1)), Desc},
	{"fallocate", 4, nil, Desc},
	{"sync_file_range", 4, nil, Desc},
	{"pipe", 1, ptrs(p(0)), Desc | IPC},
	{"pipe2", 2, ptrs(p(0)), Desc | IPC},
	{"bpf", 3, ptrs(pl(1, 2)), Desc},
	{"perf_event_open", 5, ptrs(p(0)), Desc},

	// paths
	{"open", 3, ptrs(p(0)), File | Desc},
	{"openat", 4, ptrs(p(1)), File | Desc},
	{"openat2", 4, ptrs(p(1), pl(2, 3)), File | Desc},
	{"creat", 2, ptrs(p(0)), File | Desc},
	{"stat", 2, ptrs(p(0), p(1)), File},
	{"lstat", 2, ptrs(p(0), p(1)), File},
	{"stat64", 2, ptrs(p(0), p(1)), File},
	{"lstat64", 2, ptrs(p(0), p(1)), File},
	{"newfstatat", 4, ptrs(p(1), p(2)), File | Desc},
	{"fstatat64", 4, ptrs(p(1), p(2)), File | Desc},
	{"statx", 5, ptrs(p(1), p(4)), File | Desc},
	{"statfs", 2, ptrs(p(0), p(1)), File},
	{"statfs64", 3, ptrs(p(0), p(2)), File},
	{"access", 2, ptrs(p(0)), File},
	{"faccessat", 3, ptrs(p(1)), File | Desc},
	{"faccessat2", 4, ptrs(p(1)), File | Desc},
	{"truncate", 2, ptrs(p(0)), File},
	{"truncate64", 3, ptrs(p(0)), File},
	{"chdir", 1, ptrs(p(0)), File},
	{"getcwd", 2, ptrs(pl(0, 1)), File},
	{"rename", 2, ptrs(p(0), p(1)), File},
	{"renameat", 4, ptrs(p(1), p(3)), File | Desc},
	{"renameat2", 5, ptrs(p(1), p(3)), File | Desc},
	{"mkdir", 2, ptrs(p(0)), File},
	{"mkdirat", 3, ptrs(p(1)), File | Desc},
	{"rmdir", 1, ptrs(p(0)), File},
	{"link", 2, ptrs(p(0), p(1)), File},
	{"linkat", 5, ptrs(p(1), p(3)), File | Desc},
	{"unlink", 1, ptrs(p(0)), File},
	{"unlinkat", 3, ptrs(p(1)), File | Desc},
	{"symlink", 2, ptrs(p(0), p(1)), File},
	{"symlinkat", 3, ptrs(p(0), p(2)), File | Desc},
	{"readlink", 3, ptrs(p(0), pl(1, 2)), File},
	{"readlinkat", 4, ptrs(p(1), pl(2, 3)), File | Desc},
	{"chmod", 2, ptrs(p(0)), File},
	{"fchmodat", 3, ptrs(p(1)), File | Desc},
	{"chown", 3, ptrs(p(0)), File},
	{"lchown", 3, ptrs(p(0)), File},
	{"fchownat", 5, ptrs(p(1)), File | Desc},
	{"mknod", 3, ptrs(p(0)), File},
	{"mknodat", 4, ptrs(p(1)), File | Desc},
	{"utimes", 2, ptrs(p(0), p(1)), File},
	{"futimesat", 3, ptrs(p(1), p(2)), File | Desc},
	{"utimensat", 4, ptrs(p(1), p(2)), File | Desc},
	{"mount", 5, ptrs(p(0), p(1), p(2), p(4)), File},
	{"umount2", 2, ptrs(p(0)), File},
	{"chroot", 1, ptrs(p(0)), File},
	{"sync", 0, nil, 0},

	// network
	{"socket", 3, nil, Network | Desc},
	{"socketpair", 4, ptrs(p(3)), Network | Desc},
	{"socketcall", 2, ptrs(p(1)), Network | Desc},
	{"connect", 3, ptrs(pl(1, 2)), Network | Desc},
	{"bind", 3, ptrs(pl(1, 2)), Network | Desc},
	{"listen", 2, nil, Network | Desc},
	{"accept", 3, ptrs(p(1), p(2)), Network | Desc},
	{"accept4", 4, ptrs(p(1), p(2)), Network | Desc},
	{"send", 4, ptrs(pl(1, 2)), Network | Desc},
	{"recv", 4, ptrs(pl(1, 2)), Network | Desc},
	{"sendto", 6, ptrs(pl(1, 2), pl(4, 5)), Network | Desc},
	{"recvfrom", 6, ptrs(pl(1, 2), p(4), p(5)), Network | Desc},
	{"sendmsg", 3, ptrs(p(1)), Network | Desc},
	{"recvmsg", 3, ptrs(p(1)), Network | Desc},
	{"sendmmsg", 4, ptrs(p(1)), Network | Desc},
	{"recvmmsg", 5, ptrs(p(1), p(4)), Network | Desc},
	{"shutdown", 2, nil, Network | Desc},
	{"getsockname", 3, ptrs(p(1), p(2)), Network | Desc},
	{"getpeername", 3, ptrs(p(1), p(2)), Network | Desc},
	{"setsockopt", 5, ptrs(pl(3, 4)), Network | Desc},
	{"getsockopt", 5, ptrs(p(3), p(4)), Network | Desc},

	// processes
	{"clone", 5, nil, Process},
	{"clone3", 2, ptrs(pl(0, 1)), Process},
	{"fork", 0, nil, Process},
	{"vfork", 0, nil, Process},
	{"execve", 3, ptrs(p(0), p(1), p(2)), Process | File},
	{"execveat", 5, ptrs(p(1), p(2), p(3)), Process | File | Desc},
	{"exit", 1, nil, Process},
	{"exit_group", 1, nil, Process},
	{"wait4", 4, ptrs(p(1), p(3)), Process},
	{"waitid", 5, ptrs(p(2), p(4)), Process},
	{"waitpid", 3, ptrs(p(1)), Process},
	{"kill", 2, nil, Process | Signal},
	{"tkill", 2, nil, Process | Signal},
	{"tgkill", 3, nil, Process | Signal},
	{"unshare", 1, nil, Process},
	{"pidfd_open", 2, nil, Process | Desc},
	{"ptrace", 4, nil, Process},
	{"prctl", 5, nil, Process},
	{"arch_prctl", 2, nil, Process},
	{"seccomp", 3, ptrs(p(2)), Process},
	{"set_tid_address", 1, nil, Process},
	{"uname", 1, ptrs(p(0)), 0},
	{"sysinfo", 1, ptrs(p(0)), 0},
	{"getrandom", 3, ptrs(pl(0, 1)), 0},
	{"getpid", 0, nil, 0},
	{"gettid", 0, nil, 0},
	{"getppid", 0, nil, 0},
	{"getuid", 0, nil, 0},
	{"geteuid", 0, nil, 0},
	{"getgid", 0, nil, 0},
	{"getegid", 0, nil, 0},
	{"getuid32", 0, nil, 0},
	{"geteuid32", 0, nil, 0},
	{"getgid32", 0, nil, 0},
	{"getegid32", 0, nil, 0},
	{"setuid", 1, nil, 0},
	{"setgid", 1, nil, 0},
	{"getpgrp", 0, nil, 0},
	{"getpgid", 1, nil, 0},
	{"setpgid", 2, nil, 0},
	{"getsid", 1, nil, 0},
	{"setsid", 0, nil, 0},
	{"umask", 1, nil, 0},
	{"getrlimit", 2, ptrs(p(1)), 0},
	{"ugetrlimit", 2, ptrs(p(1)), 0},
	{"setrlimit", 2, ptrs(p(1)), 0},
	{"prlimit64", 4, ptrs(p(2), p(3)), 0},
	{"getrusage", 2, ptrs(p(1)), 0},
	{"times", 1, ptrs(p(0)), 0},
	{"getcpu", 3, ptrs(p(0), p(1)), 0},
	{"sched_yield", 0, nil, 0},
	{"sched_getaffinity", 3, ptrs(pl(2, 1)), 0},
	{"sched_setaffinity", 3, ptrs(pl(2, 1)), 0},
	{"futex", 6, ptrs(p(0)), 0},
	{"set_robust_list", 2, ptrs(pl(0, 1)), 0},
	{"get_robust_list", 3, ptrs(p(1), p(2)), 0},
	{"rseq", 4, ptrs(pl(0, 1)), 0},

	// memory
	{"brk", 1, nil, Memory},
	{"mmap", 6, nil, Memory | Desc},
	{"mmap2", 6, nil, Memory | Desc},
	{"munmap", 2, nil, Memory},
	{"mprotect", 3, nil, Memory},
	{"mremap", 5, nil, Memory},
	{"madvise", 3, nil, Memory},
	{"mincore", 3, ptrs(p(2)), Memory},
	{"msync", 3, nil, Memory},

	// signals
	{"rt_sigaction", 4, ptrs(p(1), p(2)), Signal},
	{"rt_sigprocmask", 4, ptrs(pl(1, 3), pl(2, 3)), Signal},
	{"rt_sigreturn", 0, nil, Signal},
	{"sigreturn", 0, nil, Signal},
	{"sigaltstack", 2, ptrs(p(0), p(1)), Signal},
	{"rt_sigsuspend", 2, ptrs(pl(0, 1)), Signal},
	{"rt_sigpending", 2, ptrs(pl(0, 1)), Signal},
	{"rt_sigtimedwait", 4, ptrs(pl(0, 3), p(1), p(2)), Signal},
	{"rt_sigqueueinfo", 3, ptrs(p(2)), Signal | Process},
	{"rt_tgsigqueueinfo", 4, ptrs(p(3)), Signal | Process},
	{"pause", 0, nil, Signal},

	// ipc
	{"shmget", 3, nil, IPC},
	{"shmat", 3, nil, IPC | Memory},
	{"shmdt", 1, nil, IPC | Memory},
	{"shmctl", 3, ptrs(p(2)), IPC},
	{"semget", 3, nil, IPC},
	{"semop", 3, ptrs(p(1)), IPC},
	{"semctl", 4, nil, IPC},
	{"msgget", 2, nil, IPC},
	{"msgsnd", 4, ptrs(p(1)), IPC},
	{"msgrcv", 5, ptrs(p(1)), IPC},
	{"msgctl", 3, ptrs(p(2)), IPC},

	// time
	{"nanosleep", 2, ptrs(p(0), p(1)), Clock},
	{"clock_nanosleep", 4, ptrs(p(2), p(3)), Clock},
	{"clock_gettime", 2, ptrs(p(1)), Clock},
	{"clock_getres", 2, ptrs(p(1)), Clock},
	{"gettimeofday", 2, ptrs(p(0), p(1)), Clock},
	{"time", 1, ptrs(p(0)), Clock},
	{"getitimer", 2, ptrs(p(1)), Clock},
	{"setitimer", 3, ptrs(p(1), p(2)), Clock},
	{"alarm", 1, nil, Clock},
}

var byName = func() map[string]*Descriptor {
	m := make(map[string]*Descriptor, len(descriptors))
	for i := range descriptors {
		m[descriptors[i].Name] = &descriptors[i]
	}
	return m
}()

// Known reports whether name is a syscall of any supported architecture.
func Known(name string) bool {
	_, ok := byName[name]
	return ok
}
