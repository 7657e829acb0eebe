// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Plan construction errors.
var (
	// ErrProbabilityRange indicates a probability outside [0, 1].
	ErrProbabilityRange = &FaultError{
		Kind:   ErrInvalidProbability,
		Detail: "probability must be in [0, 1]",
	}

	// ErrBiasRange indicates an after-bias outside [0, 1].
	ErrBiasRange = &FaultError{
		Kind:   ErrInvalidProbability,
		Detail: "after-bias must be in [0, 1]",
	}

	// ErrNoErrorWeights indicates a failing outcome with no errnos to pick.
	ErrNoErrorWeights = &FaultError{
		Kind:   ErrInvalidPlan,
		Detail: "fail probability > 0 requires non-empty error weights",
	}

	// ErrNegativeWeight indicates a negative errno weight.
	ErrNegativeWeight = &FaultError{
		Kind:   ErrInvalidPlan,
		Detail: "error weights must be non-negative",
	}

	// ErrUnknownSyscall indicates a syscall name with no number on this
	// architecture.
	ErrUnknownSyscall = &FaultError{
		Kind:   ErrInvalidPlan,
		Detail: "unknown syscall name",
	}

	// ErrUnknownErrno indicates an errno name that could not be resolved.
	ErrUnknownErrno = &FaultError{
		Kind:   ErrInvalidPlan,
		Detail: "unknown errno name",
	}
)

// Session lifecycle errors.
var (
	// ErrSessionActive indicates a second session was constructed while one
	// is alive.
	ErrSessionActive = &FaultError{
		Kind:   ErrSessionExists,
		Detail: "a session is already active in this process",
	}

	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = &FaultError{
		Kind:   ErrInternal,
		Detail: "session is closed",
	}
)

// Kernel plumbing errors.
var (
	// ErrNoTextMapping indicates the executable self mapping was not found.
	ErrNoTextMapping = &FaultError{
		Kind:   ErrMapUnavailable,
		Detail: "no executable self mapping in /proc/self/maps",
	}

	// ErrDispatchUnsupported indicates the kernel lacks syscall user
	// dispatch.
	ErrDispatchUnsupported = &FaultError{
		Kind:   ErrArm,
		Detail: "kernel does not support syscall user dispatch",
	}

	// ErrNoTaskDir indicates the per-process task directory is missing.
	ErrNoTaskDir = &FaultError{
		Kind:   ErrMonitor,
		Detail: "task directory not found",
	}
)
