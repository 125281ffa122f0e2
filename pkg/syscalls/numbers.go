package syscalls

// Syscall numbers per architecture. A name missing from a map does not
// exist on that architecture.

var numbersAMD64 = map[string]int{
	"read": 0, "write": 1, "open": 2, "close": 3, "stat": 4, "fstat": 5,
	"lstat": 6, "poll": 7, "lseek": 8, "mmap": 9, "mprotect": 10,
	"munmap": 11, "brk": 12, "rt_sigaction": 13, "rt_sigprocmask": 14,
	"rt_sigreturn": 15, "ioctl": 16, "pread64": 17, "pwrite64": 18,
	"readv": 19, "writev": 20, "access": 21, "pipe": 22, "select": 23,
	"sched_yield": 24, "mremap": 25, "msync": 26, "mincore": 27,
	"madvise": 28, "shmget": 29, "shmat": 30, "shmctl": 31, "dup": 32,
	"dup2": 33, "pause": 34, "nanosleep": 35, "getitimer": 36, "alarm": 37,
	"setitimer": 38, "getpid": 39, "sendfile": 40, "socket": 41,
	"connect": 42, "accept": 43, "sendto": 44, "recvfrom": 45,
	"sendmsg": 46, "recvmsg": 47, "shutdown": 48, "bind": 49, "listen": 50,
	"getsockname": 51, "getpeername": 52, "socketpair": 53,
	"setsockopt": 54, "getsockopt": 55, "clone": 56, "fork": 57,
	"vfork": 58, "execve": 59, "exit": 60, "wait4": 61, "kill": 62,
	"uname": 63, "semget": 64, "semop": 65, "semctl": 66, "shmdt": 67,
	"msgget": 68, "msgsnd": 69, "msgrcv": 70, "msgctl": 71, "fcntl": 72,
	"flock": 73, "fsync": 74, "fdatasync": 75, "truncate": 76,
	"ftruncate": 77, "getdents": 78, "getcwd": 79, "chdir": 80,
	"fchdir": 81, "rename": 82, "mkdir": 83, "rmdir": 84, "creat": 85,
	"link": 86, "unlink": 87, "symlink": 88, "readlink": 89, "chmod": 90,
	"fchmod": 91, "chown": 92, "fchown": 93, "lchown": 94, "umask": 95,
	"gettimeofday": 96, "getrlimit": 97, "getrusage": 98, "sysinfo": 99,
	"times": 100, "ptrace": 101, "getuid": 102, "getgid": 104,
	"setuid": 105, "setgid": 106, "geteuid": 107, "getegid": 108,
	"setpgid": 109, "getppid": 110, "getpgrp": 111, "setsid": 112,
	"getpgid": 121, "getsid": 124, "rt_sigpending": 127,
	"rt_sigtimedwait": 128, "rt_sigqueueinfo": 129, "rt_sigsuspend": 130,
	"sigaltstack": 131, "mknod": 133, "statfs": 137, "fstatfs": 138,
	"prctl": 157, "arch_prctl": 158, "setrlimit": 160, "chroot": 161,
	"sync": 162, "mount": 165, "umount2": 166, "gettid": 186, "tkill": 200,
	"time": 201, "futex": 202, "sched_setaffinity": 203,
	"sched_getaffinity": 204, "epoll_create": 213, "getdents64": 217,
	"set_tid_address": 218, "clock_gettime": 228, "clock_getres": 229,
	"clock_nanosleep": 230, "exit_group": 231, "epoll_wait": 232,
	"epoll_ctl": 233, "tgkill": 234, "utimes": 235, "waitid": 247,
	"inotify_init": 253, "inotify_add_watch": 254, "inotify_rm_watch": 255,
	"openat": 257, "mkdirat": 258, "mknodat": 259, "fchownat": 260,
	"futimesat": 261, "newfstatat": 262, "unlinkat": 263, "renameat": 264,
	"linkat": 265, "symlinkat": 266, "readlinkat": 267, "fchmodat": 268,
	"faccessat": 269, "pselect6": 270, "ppoll": 271, "unshare": 272,
	"set_robust_list": 273, "get_robust_list": 274, "splice": 275,
	"tee": 276, "sync_file_range": 277, "vmsplice": 278, "utimensat": 280,
	"epoll_pwait": 281, "signalfd": 282, "timerfd_create": 283,
	"eventfd": 284, "fallocate": 285, "timerfd_settime": 286,
	"timerfd_gettime": 287, "accept4": 288, "signalfd4": 289,
	"eventfd2": 290, "epoll_create1": 291, "dup3": 292, "pipe2": 293,
	"inotify_init1": 294, "preadv": 295, "pwritev": 296,
	"rt_tgsigqueueinfo": 297, "perf_event_open": 298, "recvmmsg": 299,
	"prlimit64": 302, "sendmmsg": 307, "getcpu": 309, "renameat2": 316,
	"seccomp": 317, "getrandom": 318, "memfd_create": 319, "bpf": 321,
	"execveat": 322, "statx": 332, "rseq": 334, "pidfd_open": 434,
	"clone3": 435, "close_range": 436, "openat2": 437, "faccessat2": 439,
}

var numbersARM64 = map[string]int{
	"getcwd": 17, "eventfd2": 19, "epoll_create1": 20, "epoll_ctl": 21,
	"epoll_pwait": 22, "dup": 23, "dup3": 24, "fcntl": 25,
	"inotify_init1": 26, "inotify_add_watch": 27, "inotify_rm_watch": 28,
	"ioctl": 29, "flock": 32, "mknodat": 33, "mkdirat": 34, "unlinkat": 35,
	"symlinkat": 36, "linkat": 37, "renameat": 38, "umount2": 39,
	"mount": 40, "statfs": 43, "fstatfs": 44, "truncate": 45,
	"ftruncate": 46, "fallocate": 47, "faccessat": 48, "chdir": 49,
	"fchdir": 50, "chroot": 51, "fchmod": 52, "fchmodat": 53,
	"fchownat": 54, "fchown": 55, "openat": 56, "close": 57, "pipe2": 59,
	"getdents64": 61, "lseek": 62, "read": 63, "write": 64, "readv": 65,
	"writev": 66, "pread64": 67, "pwrite64": 68, "preadv": 69,
	"pwritev": 70, "sendfile": 71, "pselect6": 72, "ppoll": 73,
	"signalfd4": 74, "vmsplice": 75, "splice": 76, "tee": 77,
	"readlinkat": 78, "newfstatat": 79, "fstat": 80, "sync": 81,
	"fsync": 82, "fdatasync": 83, "sync_file_range": 84,
	"timerfd_create": 85, "timerfd_settime": 86, "timerfd_gettime": 87,
	"utimensat": 88, "exit": 93, "exit_group": 94, "waitid": 95,
	"set_tid_address": 96, "unshare": 97, "futex": 98,
	"set_robust_list": 99, "get_robust_list": 100, "nanosleep": 101,
	"getitimer": 102, "setitimer": 103, "clock_gettime": 113,
	"clock_getres": 114, "clock_nanosleep": 115, "ptrace": 117,
	"sched_setaffinity": 122, "sched_getaffinity": 123, "sched_yield": 124,
	"kill": 129, "tkill": 130, "tgkill": 131, "sigaltstack": 132,
	"rt_sigsuspend": 133, "rt_sigaction": 134, "rt_sigprocmask": 135,
	"rt_sigpending": 136, "rt_sigtimedwait": 137, "rt_sigqueueinfo": 138,
	"rt_sigreturn": 139, "setgid": 144, "setuid": 146, "times": 153,
	"setpgid": 154, "getpgid": 155, "getsid": 156, "setsid": 157,
	"uname": 160, "getrlimit": 163, "setrlimit": 164, "getrusage": 165,
	"umask": 166, "prctl": 167, "getcpu": 168, "gettimeofday": 169,
	"getpid": 172, "getppid": 173, "getuid": 174, "geteuid": 175,
	"getgid": 176, "getegid": 177, "gettid": 178, "sysinfo": 179,
	"msgget": 186, "msgctl": 187, "msgrcv": 188, "msgsnd": 189,
	"semget": 190, "semctl": 191, "semop": 193, "shmget": 194,
	"shmctl": 195, "shmat": 196, "shmdt": 197, "socket": 198,
	"socketpair": 199, "bind": 200, "listen": 201, "accept": 202,
	"connect": 203, "getsockname": 204, "getpeername": 205, "sendto": 206,
	"recvfrom": 207, "setsockopt": 208, "getsockopt": 209, "shutdown": 210,
	"sendmsg": 211, "recvmsg": 212, "brk": 214, "munmap": 215,
	"mremap": 216, "clone": 220, "execve": 221, "mmap": 222,
	"mprotect": 226, "msync": 227, "mincore": 232, "madvise": 233,
	"rt_tgsigqueueinfo": 240, "perf_event_open": 241, "accept4": 242,
	"recvmmsg": 243, "wait4": 260, "prlimit64": 261, "sendmmsg": 269,
	"renameat2": 276, "seccomp": 277, "getrandom": 278,
	"memfd_create": 279, "bpf": 280, "execveat": 281, "statx": 291,
	"rseq": 293, "pidfd_open": 434, "clone3": 435, "close_range": 436,
	"openat2": 437, "faccessat2": 439,
}

var numbers386 = map[string]int{
	"exit": 1, "fork": 2, "read": 3, "write": 4, "open": 5, "close": 6,
	"waitpid": 7, "creat": 8, "link": 9, "unlink": 10, "execve": 11,
	"chdir": 12, "time": 13, "mknod": 14, "chmod": 15, "lchown": 16,
	"lseek": 19, "getpid": 20, "mount": 21, "setuid": 23, "getuid": 24,
	"ptrace": 26, "alarm": 27, "pause": 29, "access": 33, "sync": 36,
	"kill": 37, "rename": 38, "mkdir": 39, "rmdir": 40, "dup": 41,
	"pipe": 42, "times": 43, "brk": 45, "setgid": 46, "getgid": 47,
	"geteuid": 49, "getegid": 50, "umount2": 52, "ioctl": 54, "fcntl": 55,
	"setpgid": 57, "umask": 60, "chroot": 61, "dup2": 63, "getppid": 64,
	"getpgrp": 65, "setsid": 66, "setrlimit": 75, "getrlimit": 76,
	"getrusage": 77, "gettimeofday": 78, "symlink": 83, "readlink": 85,
	"munmap": 91, "truncate": 92, "ftruncate": 93, "fchmod": 94,
	"fchown": 95, "statfs": 99, "fstatfs": 100, "socketcall": 102,
	"setitimer": 104, "getitimer": 105, "stat": 106, "lstat": 107,
	"fstat": 108, "wait4": 114, "sysinfo": 116, "fsync": 118,
	"sigreturn": 119, "clone": 120, "uname": 122, "mprotect": 125,
	"getpgid": 132, "fchdir": 133, "getdents": 141, "_newselect": 142,
	"flock": 143, "msync": 144, "readv": 145, "writev": 146, "getsid": 147,
	"fdatasync": 148, "sched_setaffinity": 241, "sched_getaffinity": 242,
	"sched_yield": 158, "nanosleep": 162, "mremap": 163, "poll": 168,
	"prctl": 172, "rt_sigreturn": 173, "rt_sigaction": 174,
	"rt_sigprocmask": 175, "rt_sigpending": 176, "rt_sigtimedwait": 177,
	"rt_sigqueueinfo": 178, "rt_sigsuspend": 179, "pread64": 180,
	"pwrite64": 181, "chown": 182, "getcwd": 183, "sigaltstack": 186,
	"sendfile": 187, "vfork": 190, "ugetrlimit": 191, "mmap2": 192,
	"truncate64": 193, "ftruncate64": 194, "stat64": 195, "lstat64": 196,
	"fstat64": 197, "getuid32": 199, "getgid32": 200, "geteuid32": 201,
	"getegid32": 202, "mincore": 218, "madvise": 219, "getdents64": 220,
	"fcntl64": 221, "gettid": 224, "tkill": 238, "sendfile64": 239,
	"futex": 240, "exit_group": 252, "epoll_create": 254, "epoll_ctl": 255,
	"epoll_wait": 256, "set_tid_address": 258, "clock_gettime": 265,
	"clock_getres": 266, "clock_nanosleep": 267, "statfs64": 268,
	"fstatfs64": 269, "tgkill": 270, "utimes": 271, "waitid": 284,
	"inotify_init": 291, "inotify_add_watch": 292, "inotify_rm_watch": 293,
	"openat": 295, "mkdirat": 296, "mknodat": 297, "fchownat": 298,
	"futimesat": 299, "fstatat64": 300, "unlinkat": 301, "renameat": 302,
	"linkat": 303, "symlinkat": 304, "readlinkat": 305, "fchmodat": 306,
	"faccessat": 307, "pselect6": 308, "ppoll": 309, "unshare": 310,
	"set_robust_list": 311, "get_robust_list": 312, "splice": 313,
	"sync_file_range": 314, "tee": 315, "vmsplice": 316, "getcpu": 318,
	"epoll_pwait": 319, "utimensat": 320, "signalfd": 321,
	"timerfd_create": 322, "eventfd": 323, "fallocate": 324,
	"timerfd_settime": 325, "timerfd_gettime": 326, "signalfd4": 327,
	"eventfd2": 328, "epoll_create1": 329, "dup3": 330, "pipe2": 331,
	"inotify_init1": 332, "preadv": 333, "pwritev": 334,
	"rt_tgsigqueueinfo": 335, "perf_event_open": 336, "recvmmsg": 337,
	"prlimit64": 340, "sendmmsg": 345, "renameat2": 353, "seccomp": 354,
	"getrandom": 355, "memfd_create": 356, "bpf": 357, "execveat": 358,
	"socket": 359, "socketpair": 360, "bind": 361, "connect": 362,
	"listen": 363, "accept4": 364, "getsockopt": 365, "setsockopt": 366,
	"getsockname": 367, "getpeername": 368, "sendto": 369, "recvfrom": 370,
	"sendmsg": 371, "recvmsg": 372, "shutdown": 373, "statx": 383,
	"arch_prctl": 384, "rseq": 386, "semget": 393, "semctl": 394,
	"shmget": 395, "shmctl": 396, "shmat": 397, "shmdt": 398,
	"msgget": 399, "msgsnd": 400, "msgrcv": 401, "msgctl": 402,
	"pidfd_open": 434, "clone3": 435, "close_range": 436, "openat2": 437,
	"faccessat2": 439,
}

var numbersARM = map[string]int{
	"exit": 1, "fork": 2, "read": 3, "write": 4, "open": 5, "close": 6,
	"creat": 8, "link": 9, "unlink": 10, "execve": 11, "chdir": 12,
	"mknod": 14, "chmod": 15, "lchown": 16, "lseek": 19, "getpid": 20,
	"mount": 21, "setuid": 23, "getuid": 24, "ptrace": 26, "pause": 29,
	"access": 33, "sync": 36, "kill": 37, "rename": 38, "mkdir": 39,
	"rmdir": 40, "dup": 41, "pipe": 42, "times": 43, "brk": 45,
	"setgid": 46, "getgid": 47, "geteuid": 49, "getegid": 50,
	"umount2": 52, "ioctl": 54, "fcntl": 55, "setpgid": 57, "umask": 60,
	"chroot": 61, "dup2": 63, "getppid": 64, "getpgrp": 65, "setsid": 66,
	"setrlimit": 75, "getrusage": 77, "gettimeofday": 78, "symlink": 83,
	"readlink": 85, "munmap": 91, "truncate": 92, "ftruncate": 93,
	"fchmod": 94, "fchown": 95, "statfs": 99, "fstatfs": 100,
	"setitimer": 104, "getitimer": 105, "stat": 106, "lstat": 107,
	"fstat": 108, "wait4": 114, "sysinfo": 116, "fsync": 118,
	"sigreturn": 119, "clone": 120, "uname": 122, "mprotect": 125,
	"getpgid": 132, "fchdir": 133, "getdents": 141, "_newselect": 142,
	"flock": 143, "msync": 144, "readv": 145, "writev": 146, "getsid": 147,
	"fdatasync": 148, "sched_yield": 158, "nanosleep": 162, "mremap": 163,
	"poll": 168, "prctl": 172, "rt_sigreturn": 173, "rt_sigaction": 174,
	"rt_sigprocmask": 175, "rt_sigpending": 176, "rt_sigtimedwait": 177,
	"rt_sigqueueinfo": 178, "rt_sigsuspend": 179, "pread64": 180,
	"pwrite64": 181, "chown": 182, "getcwd": 183, "sigaltstack": 186,
	"sendfile": 187, "vfork": 190, "ugetrlimit": 191, "mmap2": 192,
	"truncate64": 193, "ftruncate64": 194, "stat64": 195, "lstat64": 196,
	"fstat64": 197, "getuid32": 199, "getgid32": 200, "geteuid32": 201,
	"getegid32": 202, "getdents64": 217, "mincore": 219, "madvise": 220,
	"fcntl64": 221, "gettid": 224, "tkill": 238, "sendfile64": 239,
	"futex": 240, "sched_setaffinity": 241, "sched_getaffinity": 242,
	"exit_group": 248, "epoll_create": 250, "epoll_ctl": 251,
	"epoll_wait": 252, "set_tid_address": 256, "clock_gettime": 263,
	"clock_getres": 264, "clock_nanosleep": 265, "statfs64": 266,
	"fstatfs64": 267, "tgkill": 268, "utimes": 269, "waitid": 280,
	"socket": 281, "bind": 282, "connect": 283, "listen": 284,
	"accept": 285, "getsockname": 286, "getpeername": 287,
	"socketpair": 288, "send": 289, "sendto": 290, "recv": 291,
	"recvfrom": 292, "shutdown": 293, "setsockopt": 294, "getsockopt": 295,
	"sendmsg": 296, "recvmsg": 297, "semop": 298, "semget": 299,
	"semctl": 300, "msgsnd": 301, "msgrcv": 302, "msgget": 303,
	"msgctl": 304, "shmat": 305, "shmdt": 306, "shmget": 307,
	"shmctl": 308, "inotify_init": 316, "inotify_add_watch": 317,
	"inotify_rm_watch": 318, "openat": 322, "mkdirat": 323, "mknodat": 324,
	"fchownat": 325, "futimesat": 326, "fstatat64": 327, "unlinkat": 328,
	"renameat": 329, "linkat": 330, "symlinkat": 331, "readlinkat": 332,
	"fchmodat": 333, "faccessat": 334, "pselect6": 335, "ppoll": 336,
	"unshare": 337, "set_robust_list": 338, "get_robust_list": 339,
	"splice": 340, "tee": 342, "vmsplice": 343, "getcpu": 345,
	"epoll_pwait": 346, "utimensat": 348, "signalfd": 349,
	"timerfd_create": 350, "eventfd": 351, "fallocate": 352,
	"timerfd_settime": 353, "timerfd_gettime": 354, "signalfd4": 355,
	"eventfd2": 356, "epoll_create1": 357, "dup3": 358, "pipe2": 359,
	"inotify_init1": 360, "preadv": 361, "pwritev": 362,
	"rt_tgsigqueueinfo": 363, "perf_event_open": 364, "recvmmsg": 365,
	"accept4": 366, "prlimit64": 369, "sendmmsg": 374, "renameat2": 382,
	"seccomp": 383, "getrandom": 384, "memfd_create": 385, "bpf": 386,
	"execveat": 387, "statx": 397, "rseq": 398, "pidfd_open": 434,
	"clone3": 435, "close_range": 436, "openat2": 437, "faccessat2": 439,
}

var numbersByArch = map[string]map[string]int{
	"amd64": numbersAMD64,
	"arm64": numbersARM64,
	"386":   numbers386,
	"arm":   numbersARM,
}
