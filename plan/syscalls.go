package plan

import (
	"strconv"

	"golang.org/x/sys/unix"

	"sysfail-go/errors"
)

// syscallNumbers maps syscall names to numbers (x86_64). This covers the
// calls fault plans are written against in practice; anything else can be
// given numerically.
var syscallNumbers = map[string]int{
	"read": 0, "write": 1, "open": 2, "close": 3, "stat": 4,
	"fstat": 5, "lstat": 6, "poll": 7, "lseek": 8, "mmap": 9,
	"ioctl": 16, "pread64": 17, "pwrite64": 18, "readv": 19, "writev": 20,
	"access": 21, "pipe": 22, "select": 23, "dup": 32, "dup2": 33,
	"nanosleep": 35, "getpid": 39, "sendfile": 40, "socket": 41,
	"connect": 42, "accept": 43, "sendto": 44, "recvfrom": 45,
	"sendmsg": 46, "recvmsg": 47, "shutdown": 48, "bind": 49,
	"listen": 50, "clone": 56, "fork": 57, "execve": 59, "exit": 60,
	"wait4": 61, "kill": 62, "fcntl": 72, "flock": 73, "fsync": 74,
	"fdatasync": 75, "truncate": 76, "ftruncate": 77, "getdents": 78,
	"getcwd": 79, "chdir": 80, "rename": 82, "mkdir": 83, "rmdir": 84,
	"creat": 85, "link": 86, "unlink": 87, "symlink": 88, "readlink": 89,
	"chmod": 90, "chown": 92, "umask": 95, "gettimeofday": 96,
	"getuid": 102, "getgid": 104, "gettid": 186, "futex": 202,
	"getdents64": 217, "fadvise64": 221, "timer_create": 222,
	"timer_settime": 223, "timer_delete": 226, "clock_gettime": 228,
	"clock_nanosleep": 230, "exit_group": 231, "epoll_wait": 232,
	"epoll_ctl": 233, "tgkill": 234, "openat": 257, "mkdirat": 258,
	"fchownat": 260, "newfstatat": 262, "unlinkat": 263, "renameat": 264,
	"linkat": 265, "symlinkat": 266, "readlinkat": 267, "fchmodat": 268,
	"faccessat": 269, "ppoll": 271, "sync_file_range": 277,
	"fallocate": 285, "accept4": 288, "eventfd2": 290, "epoll_create1": 291,
	"dup3": 292, "pipe2": 293, "preadv": 295, "pwritev": 296,
	"sendmmsg": 307, "renameat2": 316, "copy_file_range": 326,
	"preadv2": 327, "pwritev2": 328, "statx": 332, "clone3": 435,
	"openat2": 437, "faccessat2": 439, "epoll_pwait2": 441,
}

// syscallNames is the reverse of syscallNumbers.
var syscallNames = func() map[int]string {
	m := make(map[int]string, len(syscallNumbers))
	for name, nr := range syscallNumbers {
		m[nr] = name
	}
	return m
}()

// SyscallNumber resolves a syscall name (or decimal number) for this
// architecture.
func SyscallNumber(name string) (int, error) {
	if nr, ok := syscallNumbers[name]; ok {
		return nr, nil
	}
	if nr, err := strconv.Atoi(name); err == nil && nr >= 0 {
		return nr, nil
	}
	return 0, errors.WrapWithDetail(errors.ErrUnknownSyscall, errors.ErrInvalidPlan, "syscall", name)
}

// SyscallName returns the name for a syscall number, or its decimal form
// when unknown.
func SyscallName(nr int) string {
	if name, ok := syscallNames[nr]; ok {
		return name
	}
	return strconv.Itoa(nr)
}

// errnoByName covers the errnos fault plans inject.
var errnoByName = map[string]unix.Errno{
	"EPERM": unix.EPERM, "ENOENT": unix.ENOENT, "ESRCH": unix.ESRCH,
	"EINTR": unix.EINTR, "EIO": unix.EIO, "ENXIO": unix.ENXIO,
	"EBADF": unix.EBADF, "EAGAIN": unix.EAGAIN, "ENOMEM": unix.ENOMEM,
	"EACCES": unix.EACCES, "EFAULT": unix.EFAULT, "EBUSY": unix.EBUSY,
	"EEXIST": unix.EEXIST, "ENODEV": unix.ENODEV, "ENOTDIR": unix.ENOTDIR,
	"EISDIR": unix.EISDIR, "EINVAL": unix.EINVAL, "ENFILE": unix.ENFILE,
	"EMFILE": unix.EMFILE, "EFBIG": unix.EFBIG, "ENOSPC": unix.ENOSPC,
	"EROFS": unix.EROFS, "EPIPE": unix.EPIPE, "ENAMETOOLONG": unix.ENAMETOOLONG,
	"ENOSYS": unix.ENOSYS, "ELOOP": unix.ELOOP, "EOVERFLOW": unix.EOVERFLOW,
	"ENOTCONN": unix.ENOTCONN, "ETIMEDOUT": unix.ETIMEDOUT,
	"ECONNRESET": unix.ECONNRESET, "ECONNREFUSED": unix.ECONNREFUSED,
	"ECONNABORTED": unix.ECONNABORTED, "ENETUNREACH": unix.ENETUNREACH,
	"EHOSTUNREACH": unix.EHOSTUNREACH, "EDQUOT": unix.EDQUOT,
	"ESTALE": unix.ESTALE,
}

// ErrnoByName resolves an errno name like "EIO".
func ErrnoByName(name string) (unix.Errno, error) {
	if e, ok := errnoByName[name]; ok {
		return e, nil
	}
	return 0, errors.WrapWithDetail(errors.ErrUnknownErrno, errors.ErrInvalidPlan, "errno", name)
}
