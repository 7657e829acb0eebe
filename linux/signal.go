package linux

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"sysfail-go/errors"
)

// Signal constants, from <asm/signal.h> and glibc.
const (
	// SIGSYS is raised by the kernel for every dispatched syscall.
	SIGSYS = 31

	// SIGRTMIN is the first real-time signal available to applications
	// (glibc reserves 32 and 33 for its own use).
	SIGRTMIN = 34

	// SIG_BLOCK, SIG_UNBLOCK and SIG_SETMASK are the rt_sigprocmask
	// "how" values.
	SIG_BLOCK   = 0
	SIG_UNBLOCK = 1
	SIG_SETMASK = 2

	// sigaction flags.
	SA_SIGINFO  = 0x00000004
	SA_RESTORER = 0x04000000
	SA_RESTART  = 0x10000000
	SA_NODEFER  = 0x40000000
)

// kernelSigaction is struct sigaction as rt_sigaction(2) expects it on
// amd64: handler, flags, restorer, then the 64-bit signal mask.
type kernelSigaction struct {
	handler  uintptr
	flags    uint64
	restorer uintptr
	mask     Sigset
}

// Sigset is the kernel's 64-bit signal set. Bit (sig - 1) covers sig.
type Sigset uint64

// Has reports whether sig is a member of the set.
//
//go:nosplit
func (s Sigset) Has(sig int) bool {
	return s&(1<<(uint(sig)-1)) != 0
}

// Without returns the set with sig removed.
//
//go:nosplit
func (s Sigset) Without(sig int) Sigset {
	return s &^ (1 << (uint(sig) - 1))
}

// Sigaction installs handler for sig with SA_SIGINFO | SA_NODEFER |
// SA_RESTORER and an empty mask. handler and restorer are entry-point
// addresses of assembly trampolines: the handler receives the three
// SA_SIGINFO arguments in the C calling convention, and the restorer issues
// rt_sigreturn for the (normally unused) ordinary return path.
//
// SA_NODEFER keeps SIGSYS unblocked while its own handler runs; the exempt
// text range prevents recursion in the common case, and a nested trap must
// still dispatch rather than deadlock.
func Sigaction(sig int, handler, restorer uintptr) error {
	act := kernelSigaction{
		handler:  handler,
		flags:    SA_SIGINFO | SA_NODEFER | SA_RESTORER,
		restorer: restorer,
	}
	_, _, errno := unix.RawSyscall6(unix.SYS_RT_SIGACTION,
		uintptr(sig),
		uintptr(unsafe.Pointer(&act)),
		0,
		unsafe.Sizeof(act.mask), 0, 0)
	if errno != 0 {
		return errors.Wrap(errno, errors.ErrSigaction, "rt_sigaction")
	}
	return nil
}

// SiginfoValue extracts the sigval payload from a raw siginfo_t. For
// timer-delivered signals this is the pointer registered in
// sigevent.sigev_value. The union member sits at byte 24 on amd64:
// si_signo(4) si_errno(4) si_code(4) pad(4) si_tid(4) si_overrun(4).
//
//go:nosplit
func SiginfoValue(info unsafe.Pointer) uintptr {
	return *(*uintptr)(unsafe.Pointer(uintptr(info) + 24))
}

// Tgkill directs sig at one thread of this process.
func Tgkill(tid int, sig int) error {
	return unix.Tgkill(unix.Getpid(), tid, unix.Signal(sig))
}
