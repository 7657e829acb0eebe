// Package linux provides the raw kernel interfaces behind syscall fault
// injection: Syscall User Dispatch control, the self text-range lookup,
// signal handler installation, POSIX timers, and the saved-register view of
// a trapped thread.
//
// Everything here is Linux/amd64 specific.
package linux

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"sysfail-go/errors"
)

// Syscall User Dispatch constants, from <linux/prctl.h>.
const (
	PR_SET_SYSCALL_USER_DISPATCH = 59

	PR_SYS_DISPATCH_OFF = 0
	PR_SYS_DISPATCH_ON  = 1

	// Values for the dispatch-control byte the kernel consults on every
	// syscall of an armed thread.
	SYSCALL_DISPATCH_FILTER_ALLOW = 0
	SYSCALL_DISPATCH_FILTER_BLOCK = 1
)

// SetDispatch arms or disarms Syscall User Dispatch for the calling thread.
//
// When on is true, text is registered as the exempt range and flag as the
// dispatch-control byte: every syscall instruction outside [text.Start,
// text.Start+text.Length) traps SIGSYS while *flag holds
// SYSCALL_DISPATCH_FILTER_BLOCK. When on is false the remaining arguments
// are ignored and dispatch is switched off.
//
// The kernel applies this to the calling thread only; callers that arm on
// behalf of another thread must make that thread issue the call itself.
func SetDispatch(on bool, text TextRange, flag *byte) error {
	if !on {
		_, _, errno := unix.RawSyscall6(unix.SYS_PRCTL,
			PR_SET_SYSCALL_USER_DISPATCH, PR_SYS_DISPATCH_OFF, 0, 0, 0, 0)
		if errno != 0 {
			return errors.Wrap(errno, errors.ErrDisarm, "prctl")
		}
		return nil
	}

	_, _, errno := unix.RawSyscall6(unix.SYS_PRCTL,
		PR_SET_SYSCALL_USER_DISPATCH, PR_SYS_DISPATCH_ON,
		text.Start, text.Length, uintptr(unsafe.Pointer(flag)), 0)
	if errno != 0 {
		return errors.Wrap(errno, errors.ErrArm, "prctl")
	}
	return nil
}

// setDispatchRaw is the nosplit flavour used from signal handlers: no error
// allocation, just the errno.
//
//go:nosplit
func setDispatchRaw(on uintptr, start, length uintptr, flag *byte) unix.Errno {
	_, _, errno := unix.RawSyscall6(unix.SYS_PRCTL,
		PR_SET_SYSCALL_USER_DISPATCH, on,
		start, length, uintptr(unsafe.Pointer(flag)), 0)
	return errno
}

// ArmRaw re-enables dispatch for the calling thread from async-signal
// context. Returns the raw errno (0 on success).
//
//go:nosplit
func ArmRaw(text TextRange, flag *byte) unix.Errno {
	return setDispatchRaw(PR_SYS_DISPATCH_ON, text.Start, text.Length, flag)
}

// DisarmRaw disables dispatch for the calling thread from async-signal
// context. Returns the raw errno (0 on success).
//
//go:nosplit
func DisarmRaw() unix.Errno {
	return setDispatchRaw(PR_SYS_DISPATCH_OFF, 0, 0, nil)
}

// DispatchSupported probes whether the running kernel understands
// PR_SET_SYSCALL_USER_DISPATCH. Switching dispatch off is a no-op on
// kernels that support it and EINVAL on those that do not.
func DispatchSupported() bool {
	_, _, errno := unix.RawSyscall6(unix.SYS_PRCTL,
		PR_SET_SYSCALL_USER_DISPATCH, PR_SYS_DISPATCH_OFF, 0, 0, 0, 0)
	return errno == 0
}
