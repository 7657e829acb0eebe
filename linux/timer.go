package linux

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// POSIX timer constants, from <linux/time.h> and <asm-generic/siginfo.h>.
const (
	CLOCK_THREAD_CPUTIME_ID = 3

	SIGEV_SIGNAL = 0
)

// sigevent is the kernel's struct sigevent: value, signo, notify, then
// padding up to the fixed 64-byte ABI size.
type sigevent struct {
	value  uintptr
	signo  int32
	notify int32
	pad    [48]byte
}

// itimerspec is struct itimerspec: interval then initial expiry.
type itimerspec struct {
	interval unix.Timespec
	value    unix.Timespec
}

// rearmWindow is how long a momentarily-disabled thread runs natively
// before the re-arm signal fires.
const rearmWindow = 10 * 1000 // 10us, in nanoseconds

// TimerID is a kernel POSIX timer handle.
type TimerID uintptr

// OneShotRearmTimer creates and arms a one-shot CLOCK_THREAD_CPUTIME_ID
// timer that delivers sig to this process after 10 microseconds of thread
// CPU time, carrying the address of *id as its sigval so the signal
// handler can delete the timer. The timer id is written into *id, which
// must be stable storage (the per-thread state record).
//
// Called from async-signal context on the trapping thread; returns the raw
// errno instead of allocating an error.
//
//go:nosplit
func OneShotRearmTimer(id *TimerID, sig int) unix.Errno {
	sev := sigevent{
		value:  uintptr(unsafe.Pointer(id)),
		signo:  int32(sig),
		notify: SIGEV_SIGNAL,
	}
	_, _, errno := unix.RawSyscall(unix.SYS_TIMER_CREATE,
		CLOCK_THREAD_CPUTIME_ID,
		uintptr(unsafe.Pointer(&sev)),
		uintptr(unsafe.Pointer(id)))
	if errno != 0 {
		return errno
	}

	its := itimerspec{
		value: unix.Timespec{Sec: 0, Nsec: rearmWindow},
	}
	_, _, errno = unix.RawSyscall6(unix.SYS_TIMER_SETTIME,
		uintptr(*id), 0,
		uintptr(unsafe.Pointer(&its)), 0, 0, 0)
	if errno != 0 {
		deleteTimer(*id)
		return errno
	}
	return 0
}

// DeleteTimer disposes of a one-shot timer after it has fired.
//
//go:nosplit
func DeleteTimer(id TimerID) unix.Errno {
	return deleteTimer(id)
}

//go:nosplit
func deleteTimer(id TimerID) unix.Errno {
	_, _, errno := unix.RawSyscall(unix.SYS_TIMER_DELETE, uintptr(id), 0, 0)
	return errno
}

// Nanosleep suspends the calling thread for d nanoseconds via a direct
// syscall, safe for use inside the SIGSYS handler (the library text is
// exempt from dispatch).
//
//go:nosplit
func Nanosleep(d int64) {
	ts := unix.Timespec{
		Sec:  d / 1e9,
		Nsec: d % 1e9,
	}
	unix.RawSyscall(unix.SYS_NANOSLEEP, uintptr(unsafe.Pointer(&ts)), 0, 0)
}
