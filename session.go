// Package sysfail injects faults into the syscalls of a running process.
//
// A Session arms threads with the kernel's Syscall User Dispatch facility
// so that every syscall they issue traps into a SIGSYS handler. The
// handler consults the session's plan and either delays the call, fails it
// with a sampled errno, or forwards it untouched. The process under test
// needs no source changes: link the library, install a plan, run the
// workload, close the session.
//
//	p, _ := plan.New(map[int]plan.Outcome{
//		0: { // read
//			Fail:         plan.P(0.33),
//			ErrorWeights: map[unix.Errno]float64{unix.EIO: 1},
//		},
//	}, plan.SelectAll, plan.ProcPoll{})
//
//	s, err := sysfail.NewSession(p)
//	...
//	defer s.Close()
//
// Linux on x86-64 only.
package sysfail

import (
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"sysfail-go/errors"
	"sysfail-go/linux"
	"sysfail-go/logging"
	"sysfail-go/monitor"
	"sysfail-go/plan"
)

// Session is the lifecycle owner of an active fault-injection setup: the
// runtime plan, the exempt text range, the thread state table and the
// thread monitor. At most one session exists per process.
type Session struct {
	plan    *activePlan
	text    linux.TextRange
	threads thdTable
	mon     *monitor.Monitor
	log     *slog.Logger
	closed  atomic.Bool
}

// sessionPtr is the handler's view of the world. It is swapped atomically:
// nil means every trap forwards. Close flips all dispatch bytes to ALLOW
// before clearing it, so in-flight handlers always see a live plan.
var sessionPtr atomic.Pointer[Session]

// NewSession validates the plan, installs the signal handlers, arms the
// calling thread (subject to the plan's selector) and starts thread
// discovery. The calling goroutine is pinned to its OS thread for the life
// of the session; dispatch state belongs to threads, not goroutines.
//
// Fails with ErrSessionExists if a session is already active.
func NewSession(p plan.Plan) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if !linux.DispatchSupported() {
		return nil, errors.ErrDispatchUnsupported
	}

	text, err := linux.SelfText()
	if err != nil {
		return nil, err
	}

	s := &Session{
		plan: newActivePlan(p),
		text: text,
		log:  logging.WithOperation(logging.Default(), "session"),
	}

	if !sessionPtr.CompareAndSwap(nil, s) {
		return nil, errors.ErrSessionActive
	}

	if err := installHandlers(); err != nil {
		sessionPtr.CompareAndSwap(s, nil)
		return nil, err
	}

	runtime.LockOSThread()
	if err := s.armThread(unix.Gettid()); err != nil {
		s.abort()
		return nil, err
	}

	discovery := p.Discovery
	if discovery == nil {
		discovery = plan.ProcPoll{}
	}
	mon, err := monitor.New(discovery, s.onThreadEvent)
	if err != nil {
		s.abort()
		return nil, err
	}
	s.mon = mon

	s.log.Debug("session started",
		"text_start", s.text.Start,
		"text_length", s.text.Length,
		"outcomes", len(s.plan.outcomes))
	return s, nil
}

// installHandlers registers the SIGSYS trap handler plus the arm and
// re-arm helpers. They stay installed for the life of the process and act
// as no-ops while no session is live.
func installHandlers() error {
	restorer := addrOfSigreturnStub()
	if err := linux.Sigaction(linux.SIGSYS, addrOfSigsysTramp(), restorer); err != nil {
		return err
	}
	if err := linux.Sigaction(sigRearm, addrOfRearmTramp(), restorer); err != nil {
		return err
	}
	return linux.Sigaction(sigArm, addrOfArmTramp(), restorer)
}

// abort rolls back a half-constructed session.
func (s *Session) abort() {
	s.closed.Store(true)
	s.threads.each(func(_ int, st *thdState) {
		st.on = linux.SYSCALL_DISPATCH_FILTER_ALLOW
	})
	linux.SetDispatch(false, linux.TextRange{}, nil)
	sessionPtr.CompareAndSwap(s, nil)
}

// onThreadEvent is the monitor callback: new threads are armed subject to
// the selector, dead ones are forgotten.
func (s *Session) onThreadEvent(tid int, ev monitor.Event) {
	if s.closed.Load() {
		return
	}
	switch ev {
	case monitor.Terminated:
		s.threads.remove(tid)
	default:
		if err := s.armThread(tid); err != nil {
			// The thread may have exited between the scan and the arm;
			// the next scan reports it Terminated.
			s.log.Warn("arm failed", "tid", tid, "event", ev.String(), "error", err)
		}
	}
}

// armThread subjects tid to the plan. The calling thread arms itself with
// prctl directly; any other thread is signaled to arm itself, since the
// kernel scopes dispatch state to the calling thread.
func (s *Session) armThread(tid int) error {
	if s.closed.Load() {
		return errors.ErrSessionClosed
	}
	if !s.plan.selects(tid) {
		return nil
	}

	st := s.threads.insertOrGet(tid)

	if tid == unix.Gettid() {
		// Arm with the byte at ALLOW, then flip to BLOCK: the prctl and
		// anything libc does on the way out must not trap.
		st.on = linux.SYSCALL_DISPATCH_FILTER_ALLOW
		if err := linux.SetDispatch(true, s.text, &st.on); err != nil {
			return errors.WrapWithTid(err, errors.ErrArm, "arm", tid)
		}
		st.on = linux.SYSCALL_DISPATCH_FILTER_BLOCK
		return nil
	}

	st.on = linux.SYSCALL_DISPATCH_FILTER_BLOCK
	if err := linux.Tgkill(tid, sigArm); err != nil {
		return errors.WrapWithTid(err, errors.ErrArm, "arm", tid)
	}
	return nil
}

// disarmThread releases tid from the plan. Flipping the byte to ALLOW
// suspends interception on the thread's very next syscall; the prctl is
// issued too when the caller is the target.
func (s *Session) disarmThread(tid int) error {
	st := s.threads.lookup(tid)
	if st == nil {
		return nil
	}
	st.on = linux.SYSCALL_DISPATCH_FILTER_ALLOW

	if tid == unix.Gettid() {
		if err := linux.SetDispatch(false, linux.TextRange{}, nil); err != nil {
			return errors.WrapWithTid(err, errors.ErrDisarm, "disarm", tid)
		}
	}
	return nil
}

// Add arms the calling thread, pinning its goroutine to the OS thread.
func (s *Session) Add() error {
	runtime.LockOSThread()
	return s.armThread(unix.Gettid())
}

// AddThread arms the named thread.
func (s *Session) AddThread(tid int) error {
	return s.armThread(tid)
}

// Remove disarms the calling thread. Other threads stay armed.
func (s *Session) Remove() error {
	if s.closed.Load() {
		return errors.ErrSessionClosed
	}
	return s.disarmThread(unix.Gettid())
}

// RemoveThread disarms the named thread.
func (s *Session) RemoveThread(tid int) error {
	if s.closed.Load() {
		return errors.ErrSessionClosed
	}
	return s.disarmThread(tid)
}

// DiscoverThreads forces a thread scan now instead of waiting for the next
// poll tick.
func (s *Session) DiscoverThreads() {
	s.mon.Rescan()
}

// Close tears the session down: every dispatch byte flips to ALLOW first,
// which stops interception on each thread's next syscall even before the
// per-thread prctl state is gone; then the monitor stops and the session
// handle is released. Signal handlers stay installed and become no-ops.
// Safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.threads.each(func(_ int, st *thdState) {
		st.on = linux.SYSCALL_DISPATCH_FILTER_ALLOW
	})

	if s.mon != nil {
		s.mon.Stop()
	}
	linux.SetDispatch(false, linux.TextRange{}, nil)
	sessionPtr.CompareAndSwap(s, nil)

	s.log.Debug("session closed")
	return nil
}
