// Package plan defines the user-facing description of desired fault
// injection: which syscalls misbehave, how often, with which errnos and
// delays, and which threads are subject to it. A Plan is immutable once
// built; the session derives its own runtime form at start.
package plan

import (
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"sysfail-go/errors"
	"sysfail-go/linux"
)

// Probability is the chance an effect fires, plus an advisory bias for
// whether it applies before (0) or after (1) the syscall executes.
type Probability struct {
	// P is the chance in [0, 1] that the effect fires.
	P float64

	// AfterBias in [0, 1] advises when the effect applies: 0 before the
	// syscall runs, 1 after.
	AfterBias float64
}

// NewProbability validates p and afterBias and returns the pair.
func NewProbability(p, afterBias float64) (Probability, error) {
	if p < 0 || p > 1 {
		return Probability{}, errors.ErrProbabilityRange
	}
	if afterBias < 0 || afterBias > 1 {
		return Probability{}, errors.ErrBiasRange
	}
	return Probability{P: p, AfterBias: afterBias}, nil
}

// P returns a validated before-biased probability and panics on a value
// outside [0, 1]. Intended for literal plans in tests and tools.
func P(p float64) Probability {
	pr, err := NewProbability(p, 0)
	if err != nil {
		panic(err)
	}
	return pr
}

// Predicate gates an outcome on the trapped thread's register snapshot.
// It runs inside the SIGSYS handler: implementations must not allocate,
// lock, or call into the runtime.
type Predicate func(*linux.Gregs) bool

// Outcome describes the treatment of one syscall.
type Outcome struct {
	// Fail is the chance the syscall fails with an injected errno.
	Fail Probability

	// Delay is the chance the syscall is delayed before executing.
	Delay Probability

	// MaxDelay bounds the injected delay; the actual delay is uniform in
	// [0, MaxDelay].
	MaxDelay time.Duration

	// ErrorWeights maps errno to a non-negative weight. When a failure
	// fires, an errno is drawn with probability proportional to its
	// weight. Must be non-empty if Fail.P > 0.
	ErrorWeights map[unix.Errno]float64

	// Eligible, when non-nil, must return true for the outcome to apply;
	// otherwise the syscall is forwarded unchanged.
	Eligible Predicate
}

// Validate checks the outcome's internal consistency.
func (o *Outcome) Validate() error {
	if _, err := NewProbability(o.Fail.P, o.Fail.AfterBias); err != nil {
		return err
	}
	if _, err := NewProbability(o.Delay.P, o.Delay.AfterBias); err != nil {
		return err
	}
	if o.MaxDelay < 0 {
		return errors.New(errors.ErrInvalidPlan, "outcome", "max delay must be non-negative")
	}
	if o.Fail.P > 0 && len(o.ErrorWeights) == 0 {
		return errors.ErrNoErrorWeights
	}
	for _, w := range o.ErrorWeights {
		if w < 0 {
			return errors.ErrNegativeWeight
		}
	}
	return nil
}

// Errnos returns the outcome's errnos in ascending order, the order the
// cumulative distribution is built in.
func (o *Outcome) Errnos() []unix.Errno {
	errnos := make([]unix.Errno, 0, len(o.ErrorWeights))
	for e := range o.ErrorWeights {
		errnos = append(errnos, e)
	}
	sort.Slice(errnos, func(i, j int) bool { return errnos[i] < errnos[j] })
	return errnos
}

// Selector decides which threads are subject to injection.
type Selector func(tid int) bool

// SelectAll subjects every thread to the plan.
func SelectAll(int) bool { return true }

// Plan maps syscall numbers to outcomes and names the threads they apply
// to. The zero value is an empty plan: nothing is intercepted beyond the
// dispatch round trip.
type Plan struct {
	// Outcomes maps syscall number to its treatment.
	Outcomes map[int]Outcome

	// Selector gates injection per thread id, the session's creator
	// included. Nil selects no threads.
	Selector Selector

	// Discovery is the thread-discovery strategy.
	Discovery Discovery
}

// New builds a validated plan.
func New(outcomes map[int]Outcome, selector Selector, discovery Discovery) (Plan, error) {
	p := Plan{Outcomes: outcomes, Selector: selector, Discovery: discovery}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate checks every outcome.
func (p *Plan) Validate() error {
	for nr, o := range p.Outcomes {
		if err := o.Validate(); err != nil {
			return errors.WrapWithDetail(err, errors.ErrInvalidPlan, "plan", SyscallName(nr))
		}
	}
	return nil
}

// Selects reports whether the plan subjects tid to injection.
func (p *Plan) Selects(tid int) bool {
	return p.Selector != nil && p.Selector(tid)
}
