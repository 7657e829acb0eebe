package sysfail

import (
	"golang.org/x/sys/unix"

	"sysfail-go/linux"
	"sysfail-go/plan"
)

// errEdge is one step of a precomputed cumulative error distribution.
type errEdge struct {
	cum   float64
	errno unix.Errno
}

// activeOutcome is the runtime form of a plan.Outcome: probabilities
// flattened to scalars and the errno choice reduced to a lower-bound walk
// over cumulative weights, so the SIGSYS handler samples without
// allocating or sorting.
type activeOutcome struct {
	failP      float64
	delayP     float64
	maxDelayNs int64
	edges      []errEdge
	total      float64
	eligible   plan.Predicate
}

func newActiveOutcome(o plan.Outcome) *activeOutcome {
	a := &activeOutcome{
		failP:      o.Fail.P,
		delayP:     o.Delay.P,
		maxDelayNs: o.MaxDelay.Nanoseconds(),
		eligible:   o.Eligible,
	}

	// Ascending errno order keeps the distribution deterministic for a
	// given weight map.
	for _, e := range o.Errnos() {
		a.total += o.ErrorWeights[e]
		a.edges = append(a.edges, errEdge{cum: a.total, errno: e})
	}
	return a
}

// pickErrno maps a uniform draw u in [0, 1) onto the distribution: the
// smallest edge whose cumulative weight covers u scaled by the total.
//
//go:nosplit
func (a *activeOutcome) pickErrno(u float64) unix.Errno {
	threshold := u * a.total
	for i := range a.edges {
		if a.edges[i].cum >= threshold {
			return a.edges[i].errno
		}
	}
	// Floating point can leave threshold a hair above the last edge.
	return a.edges[len(a.edges)-1].errno
}

// activePlan is the session's runtime plan. Immutable after construction;
// the handler reads it concurrently without synchronization.
type activePlan struct {
	outcomes map[int]*activeOutcome
	selector plan.Selector
}

func newActivePlan(p plan.Plan) *activePlan {
	a := &activePlan{
		outcomes: make(map[int]*activeOutcome, len(p.Outcomes)),
		selector: p.Selector,
	}
	for nr, o := range p.Outcomes {
		a.outcomes[nr] = newActiveOutcome(o)
	}
	return a
}

// outcomeFor returns the outcome for a syscall, or nil. Async-signal-safe:
// a map read with no concurrent writers.
//
//go:nosplit
func (a *activePlan) outcomeFor(nr int) *activeOutcome {
	return a.outcomes[nr]
}

// selects reports whether tid is subject to injection.
func (a *activePlan) selects(tid int) bool {
	return a.selector != nil && a.selector(tid)
}

// eligibleFor reports whether the outcome applies to this register
// snapshot.
//
//go:nosplit
func (a *activeOutcome) eligibleFor(g *linux.Gregs) bool {
	return a.eligible == nil || a.eligible(g)
}
