package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"sysfail-go/logging"
	"sysfail-go/plan"
)

func TestEvent_String(t *testing.T) {
	tests := []struct {
		ev       Event
		expected string
	}{
		{Self, "self"},
		{Existing, "existing"},
		{Spawned, "spawned"},
		{Terminated, "terminated"},
		{Event(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.expected {
			t.Errorf("Event(%d).String() = %q, want %q", tt.ev, got, tt.expected)
		}
	}
}

// recorder collects events in order, safely across goroutines.
type recorder struct {
	mu     sync.Mutex
	events map[Event][]int
}

func newRecorder() *recorder {
	return &recorder{events: make(map[Event][]int)}
}

func (r *recorder) handle(tid int, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev] = append(r.events[ev], tid)
}

func (r *recorder) tids(ev Event) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.events[ev]...)
}

// fakeMonitor builds a monitor over a synthetic task directory.
func fakeMonitor(t *testing.T, dir string, r *recorder) *Monitor {
	t.Helper()
	return &Monitor{
		dir:     dir,
		handler: r.handle,
		log:     logging.Default(),
		known:   make(map[int]uint64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func addTask(t *testing.T, dir string, tid string) {
	t.Helper()
	if err := os.Mkdir(filepath.Join(dir, tid), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestScan_FirstScanReportsExisting(t *testing.T) {
	dir := t.TempDir()
	addTask(t, dir, "101")
	addTask(t, dir, "102")

	r := newRecorder()
	m := fakeMonitor(t, dir, r)
	m.Rescan()

	existing := r.tids(Existing)
	if len(existing) != 2 {
		t.Fatalf("Existing = %v, want two tids", existing)
	}
	if len(r.tids(Spawned)) != 0 || len(r.tids(Terminated)) != 0 {
		t.Errorf("unexpected events: %v", r.events)
	}
}

func TestScan_SpawnAndTerminate(t *testing.T) {
	dir := t.TempDir()
	addTask(t, dir, "101")

	r := newRecorder()
	m := fakeMonitor(t, dir, r)
	m.Rescan()

	// 103 appears, 101 goes away.
	addTask(t, dir, "103")
	if err := os.Remove(filepath.Join(dir, "101")); err != nil {
		t.Fatal(err)
	}
	m.Rescan()

	if got := r.tids(Spawned); len(got) != 1 || got[0] != 103 {
		t.Errorf("Spawned = %v, want [103]", got)
	}
	if got := r.tids(Terminated); len(got) != 1 || got[0] != 101 {
		t.Errorf("Terminated = %v, want [101]", got)
	}

	// A stable set produces no further events.
	before := len(r.tids(Spawned)) + len(r.tids(Terminated))
	m.Rescan()
	after := len(r.tids(Spawned)) + len(r.tids(Terminated))
	if before != after {
		t.Error("idle rescan should emit nothing")
	}
}

func TestScan_ReappearingTid(t *testing.T) {
	dir := t.TempDir()
	addTask(t, dir, "101")

	r := newRecorder()
	m := fakeMonitor(t, dir, r)
	m.Rescan()

	if err := os.Remove(filepath.Join(dir, "101")); err != nil {
		t.Fatal(err)
	}
	m.Rescan()
	addTask(t, dir, "101")
	m.Rescan()

	if got := r.tids(Terminated); len(got) != 1 {
		t.Errorf("Terminated = %v, want one event", got)
	}
	if got := r.tids(Spawned); len(got) != 1 || got[0] != 101 {
		t.Errorf("Spawned = %v, want [101] after reappearance", got)
	}
}

func TestScan_IgnoresNonNumericEntries(t *testing.T) {
	dir := t.TempDir()
	addTask(t, dir, "101")
	addTask(t, dir, "bogus")

	r := newRecorder()
	m := fakeMonitor(t, dir, r)
	m.Rescan()

	if got := r.tids(Existing); len(got) != 1 || got[0] != 101 {
		t.Errorf("Existing = %v, want [101]", got)
	}
}

func TestScan_MissingDirSurvives(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")

	r := newRecorder()
	m := fakeMonitor(t, dir, r)
	m.Rescan() // must not panic; logged and skipped

	if m.gen != 0 {
		t.Errorf("gen = %d, want 0 after failed scan", m.gen)
	}
}

func TestNew_NoneScansOnce(t *testing.T) {
	r := newRecorder()
	m, err := New(plan.None{}, r.handle)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer m.Stop()

	self := unix.Gettid()
	found := false
	for _, tid := range r.tids(Existing) {
		if tid == self {
			found = true
		}
	}
	if !found {
		t.Errorf("Existing = %v, does not include caller tid %d", r.tids(Existing), self)
	}
}

func TestNew_ProcPollReportsSelfAndExisting(t *testing.T) {
	r := newRecorder()
	m, err := New(plan.ProcPoll{Interval: 5 * time.Millisecond}, r.handle)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// New returns only after the first scan, so events are already there.
	if got := r.tids(Self); len(got) != 1 {
		t.Errorf("Self = %v, want exactly one", got)
	}
	if len(r.tids(Existing)) == 0 {
		t.Error("expected at least one Existing thread")
	}

	m.Stop()
	m.Stop() // idempotent
}

func TestStop_None(t *testing.T) {
	r := newRecorder()
	m, err := New(plan.None{}, r.handle)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	m.Stop() // no poller; must not hang
}
