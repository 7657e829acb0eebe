// Package monitor discovers the threads of this process by scanning the
// kernel's per-process task directory.
//
// Inotify does not fire for /proc, so discovery polls: a background
// goroutine locked to its own OS thread rescans /proc/self/task on a fixed
// interval and reports thread arrivals and departures to a handler.
// Netlink process-event notifications would be cheaper and lower latency;
// the poll stays until that lands.
package monitor

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"sysfail-go/errors"
	"sysfail-go/logging"
	"sysfail-go/plan"
)

// taskDir is the kernel's listing of this process's task ids.
const taskDir = "/proc/self/task"

// Event classifies a discovered thread.
type Event int

const (
	// Self is the monitor's own polling thread, reported once at startup.
	Self Event = iota
	// Existing is a thread already alive at the first scan.
	Existing
	// Spawned is a thread that appeared after the first scan.
	Spawned
	// Terminated is a thread that disappeared between scans.
	Terminated
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case Self:
		return "self"
	case Existing:
		return "existing"
	case Spawned:
		return "spawned"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handler receives one call per thread event. It runs on the polling
// thread (or the Rescan caller) with the monitor lock held; keep it short.
type Handler func(tid int, ev Event)

// Monitor watches the task directory and reports thread churn.
type Monitor struct {
	dir     string
	handler Handler
	log     *slog.Logger

	mu    sync.Mutex
	known map[int]uint64 // tid -> generation last seen
	gen   uint64         // bumped by every scan

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New builds a monitor and performs the initial discovery. With a
// plan.ProcPoll strategy the background poller is started and New returns
// only after its first scan completed; with plan.None a single synchronous
// scan runs and further discovery is up to Rescan.
func New(strategy plan.Discovery, handler Handler) (*Monitor, error) {
	if _, err := os.Stat(taskDir); err != nil {
		return nil, errors.WrapWithDetail(errors.ErrNoTaskDir, errors.ErrMonitor, "monitor", taskDir)
	}

	m := &Monitor{
		dir:     taskDir,
		handler: handler,
		log:     logging.WithOperation(logging.Default(), "monitor"),
		known:   make(map[int]uint64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	switch s := strategy.(type) {
	case plan.ProcPoll:
		ready := make(chan struct{})
		go m.poll(s.Itvl(), ready)
		<-ready
	default:
		close(m.done)
		m.mu.Lock()
		m.scanLocked()
		m.mu.Unlock()
	}
	return m, nil
}

// poll is the background driver: one scan per wake-up until Stop.
func (m *Monitor) poll(interval time.Duration, ready chan<- struct{}) {
	defer close(m.done)

	// The poller needs a stable kernel tid: it reports itself so the
	// session can decide whether to arm it, and it must recognize its own
	// entry in every scan.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	self := unix.Gettid()
	m.mu.Lock()
	m.known[self] = m.gen
	m.handler(self, Self)
	m.scanLocked()
	m.mu.Unlock()
	close(ready)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.mu.Lock()
			m.scanLocked()
			m.mu.Unlock()
		}
	}
}

// scanLocked walks the task directory once. Threads not seen before are
// reported as Existing (first scan) or Spawned; threads whose generation
// was not refreshed are reported as Terminated and forgotten. A tid that
// vanishes between the directory read and any later use is not an error;
// it simply shows up as Terminated on the next pass.
func (m *Monitor) scanLocked() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		// Transient scan trouble is survivable; the next tick retries.
		m.log.Warn("task directory scan failed", "error", err)
		return
	}

	m.gen++
	first := m.gen == 1

	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if _, ok := m.known[tid]; !ok {
			if first {
				m.handler(tid, Existing)
			} else {
				m.handler(tid, Spawned)
			}
		}
		m.known[tid] = m.gen
	}

	for tid, g := range m.known {
		if g < m.gen {
			m.handler(tid, Terminated)
			delete(m.known, tid)
		}
	}
}

// Rescan forces a scan on the caller, regardless of strategy.
func (m *Monitor) Rescan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanLocked()
}

// Stop halts the poller and waits for it to exit. Safe to call more than
// once, and a no-op for plan.None monitors.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}
