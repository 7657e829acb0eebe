package sysfail

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"sysfail-go/linux"
)

// thdState is the per-thread record. Its address must stay stable for the
// life of the thread: the kernel holds a pointer to the dispatch-control
// byte, and the SIGSYS handler reads the rest in async-signal context.
type thdState struct {
	// on is the dispatch-control byte registered with the kernel:
	// SYSCALL_DISPATCH_FILTER_BLOCK traps syscalls, _ALLOW passes them
	// through without re-arming.
	on byte

	// rng is xorshift64 state, seeded once when the record is created.
	// The handler draws from it with plain arithmetic only.
	rng uint64

	// scratch holds the rewritten signal set while an rt_sigprocmask that
	// would block SIGSYS is forwarded.
	scratch linux.Sigset

	// timer is the momentary-disable one-shot; its address rides in the
	// re-arm signal's sigval.
	timer linux.TimerID
}

// random returns the next uniform draw in [0, 1).
//
//go:nosplit
func (t *thdState) random() float64 {
	x := t.rng
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	t.rng = x
	return float64(x>>11) / (1 << 53)
}

// thdBuckets must be a power of two.
const thdBuckets = 256

// thdNode is an immutable chain link; chains are rebuilt, never mutated,
// so readers can walk them without synchronization.
type thdNode struct {
	tid  int
	st   *thdState
	next *thdNode
}

// thdTable maps tid to thread state. Writers (session and monitor
// callbacks) serialize on mu and publish whole chains with atomic stores;
// the SIGSYS handler only reads, lock-free. A removed tid may remain
// visible to a concurrent reader for one traversal, which is harmless:
// removal implies the thread issues no further intercepted syscalls.
type thdTable struct {
	mu      sync.Mutex
	buckets [thdBuckets]atomic.Pointer[thdNode]
}

//go:nosplit
func bucketOf(tid int) uint32 {
	return (uint32(tid) * 0x9e3779b1) % thdBuckets
}

// lookup returns the state for tid, or nil. Async-signal-safe.
//
//go:nosplit
func (t *thdTable) lookup(tid int) *thdState {
	for n := t.buckets[bucketOf(tid)].Load(); n != nil; n = n.next {
		if n.tid == tid {
			return n.st
		}
	}
	return nil
}

// insertOrGet returns tid's state, creating and seeding a record on first
// sight. Not for signal context.
func (t *thdTable) insertOrGet(tid int) *thdState {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[bucketOf(tid)]
	for n := b.Load(); n != nil; n = n.next {
		if n.tid == tid {
			return n.st
		}
	}

	st := &thdState{
		on:  linux.SYSCALL_DISPATCH_FILTER_ALLOW,
		rng: rand.Uint64() | 1,
	}
	b.Store(&thdNode{tid: tid, st: st, next: b.Load()})
	return st
}

// remove drops tid's record. The caller guarantees the thread issues no
// further intercepted syscalls.
func (t *thdTable) remove(tid int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[bucketOf(tid)]
	var head *thdNode
	found := false
	for n := b.Load(); n != nil; n = n.next {
		if n.tid == tid {
			found = true
			continue
		}
		head = &thdNode{tid: n.tid, st: n.st, next: head}
	}
	if found {
		b.Store(head)
	}
}

// each calls fn for every record. Writers are locked out meanwhile.
func (t *thdTable) each(fn func(tid int, st *thdState)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.buckets {
		for n := t.buckets[i].Load(); n != nil; n = n.next {
			fn(n.tid, n.st)
		}
	}
}
