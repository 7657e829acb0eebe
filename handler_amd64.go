//go:build amd64

package sysfail

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"sysfail-go/linux"
)

// Signals used by the arming machinery, above the runtime-reserved
// real-time range.
const (
	// sigRearm re-enables dispatch after a momentary-disable window.
	sigRearm = linux.SIGRTMIN
	// sigArm asks a thread to arm itself; dispatch state is per thread
	// and only the thread itself can change it.
	sigArm = linux.SIGRTMIN + 4
)

// Assembly trampolines (sigtramp_amd64.s). The kernel enters them with the
// C signal ABI; they re-stage the arguments and call the Go handlers
// below. addrOf* return their entry points for sigaction registration.
func sigsysTramp()
func rearmTramp()
func armTramp()
func sigreturnStub()

func addrOfSigsysTramp() uintptr
func addrOfRearmTramp() uintptr
func addrOfArmTramp() uintptr
func addrOfSigreturnStub() uintptr

// rawGettid avoids the libc-style wrappers; safe in signal context.
//
//go:nosplit
func rawGettid() int {
	tid, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	return int(tid)
}

// forwardSyscall executes the trapped syscall with the six argument
// registers and the number taken from the saved context, and writes the
// raw kernel result back into the return register. The call originates
// from our own text, which is exempt from dispatch, so it cannot recurse.
//
//go:nosplit
func forwardSyscall(g *linux.Gregs) {
	r1, _, errno := unix.RawSyscall6(
		uintptr(g[linux.REG_RAX]),
		uintptr(g[linux.REG_RDI]),
		uintptr(g[linux.REG_RSI]),
		uintptr(g[linux.REG_RDX]),
		uintptr(g[linux.REG_R10]),
		uintptr(g[linux.REG_R8]),
		uintptr(g[linux.REG_R9]))
	if errno != 0 {
		g.SetRet(uint64(-int64(errno)))
	} else {
		g.SetRet(uint64(r1))
	}
}

// sigsysGo runs on the trapping thread for every dispatched syscall, in
// async-signal context: no allocation, no locks, no logging. Anything
// unexpected forwards the syscall unchanged. It leaves through
// linux.Restore, which resumes the interrupted thread from the (possibly
// mutated) register snapshot.
//
//go:nosplit
func sigsysGo(sig int32, info, ucontext unsafe.Pointer) {
	g := linux.ContextGregs(ucontext)
	s := sessionPtr.Load()
	if s == nil {
		forwardSyscall(g)
		linux.Restore(g)
		return
	}

	nr := g.Syscall()
	st := s.threads.lookup(rawGettid())

	// The libc clone3 wrapper diverges between the parent and child return
	// paths in a way that does not survive a forged return. Open a
	// momentary native window, step back onto the SYSCALL instruction and
	// resume: the retry executes natively and the timer re-arms us.
	if nr == unix.SYS_CLONE3 {
		s.disableMomentarily(st)
		g.RewindSyscall()
		linux.Restore(g)
		return
	}

	// libc blocks every signal around thread teardown. Letting SIGSYS be
	// masked would wedge dispatch on this thread, so the forwarded call
	// gets a copy of the set with SIGSYS cleared.
	var maskedSet uint64
	if nr == unix.SYS_RT_SIGPROCMASK && st != nil {
		how := g.Arg(0)
		setAddr := uintptr(g.Arg(1))
		if setAddr != 0 && (how == linux.SIG_BLOCK || how == linux.SIG_SETMASK) {
			set := *(*linux.Sigset)(unsafe.Pointer(setAddr))
			if set.Has(linux.SIGSYS) {
				st.scratch = set.Without(linux.SIGSYS)
				maskedSet = uint64(setAddr)
				g[linux.REG_RSI] = uint64(uintptr(unsafe.Pointer(&st.scratch)))
			}
		}
	}

	if nr == unix.SYS_EXIT {
		forwardSyscall(g)
	} else {
		s.failMaybe(nr, g, st)
	}

	if maskedSet != 0 {
		g[linux.REG_RSI] = maskedSet
	}
	linux.Restore(g)
}

// failMaybe applies the plan to one trapped syscall: maybe delay, maybe
// fail with a sampled errno, otherwise forward.
//
//go:nosplit
func (s *Session) failMaybe(nr int, g *linux.Gregs, st *thdState) {
	o := s.plan.outcomeFor(nr)
	if o == nil || st == nil || !o.eligibleFor(g) {
		forwardSyscall(g)
		return
	}

	if o.delayP > 0 && st.random() < o.delayP {
		linux.Nanosleep(int64(st.random() * float64(o.maxDelayNs)))
	}

	if o.failP > 0 && st.random() < o.failP {
		e := o.pickErrno(st.random())
		// Kernel convention: -errno in the return register, syscall not
		// executed.
		g.SetRet(uint64(-int64(e)))
		return
	}

	forwardSyscall(g)
}

// disableMomentarily opens a short native window for the current thread:
// dispatch off now, re-armed by a one-shot thread-CPU timer signal about
// ten microseconds later.
//
//go:nosplit
func (s *Session) disableMomentarily(st *thdState) {
	linux.DisarmRaw()
	if st == nil {
		return
	}
	if errno := linux.OneShotRearmTimer(&st.timer, sigRearm); errno != 0 {
		// No timer, no window: re-arm right away rather than leave the
		// thread running native indefinitely.
		linux.ArmRaw(s.text, &st.on)
	}
}

// rearmGo handles the momentary-disable timer signal: dispose of the
// timer, switch dispatch back on, resume.
//
//go:nosplit
func rearmGo(sig int32, info, ucontext unsafe.Pointer) {
	if p := linux.SiginfoValue(info); p != 0 {
		linux.DeleteTimer(*(*linux.TimerID)(unsafe.Pointer(p)))
	}

	s := sessionPtr.Load()
	if s == nil {
		return // plain return takes the rt_sigreturn path
	}
	if st := s.threads.lookup(rawGettid()); st != nil {
		linux.ArmRaw(s.text, &st.on)
	}
	linux.Restore(linux.ContextGregs(ucontext))
}

// armGo handles the cross-thread arm request: the signaled thread arms
// itself against its own state record.
//
//go:nosplit
func armGo(sig int32, info, ucontext unsafe.Pointer) {
	s := sessionPtr.Load()
	if s == nil {
		return
	}
	if st := s.threads.lookup(rawGettid()); st != nil {
		linux.ArmRaw(s.text, &st.on)
	}
	linux.Restore(linux.ContextGregs(ucontext))
}
