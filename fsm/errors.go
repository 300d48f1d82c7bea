package fsm

import (
	"errors"
	"fmt"

	"github.com/fsmkit/fsmkit/policy"
)

// Predefined error types. Everything recoverable is returned, never
// panicked; the only panic the package tolerates is converted into the
// poisoned state at the critical-section boundary.
var (
	// ErrInvalidTransition indicates that the policy rejects the requested
	// transition from the current state. Recoverable; the caller decides
	// whether to retry or abort.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrHookFailed indicates that an exit hook returned an error. The
	// transition was aborted and the state is unchanged.
	ErrHookFailed = errors.New("lifecycle hook failed")
	// ErrContention indicates that the lock-free strategy exhausted its
	// bounded retries. Recoverable; the caller may retry.
	ErrContention = errors.New("contention retries exhausted")
	// ErrTimeout indicates that the bounded wait for the state lock expired.
	ErrTimeout = errors.New("timed out waiting for state lock")
	// ErrReentrant indicates that a lifecycle hook called back into the same
	// machine. A programming error; callers should treat it as fatal.
	ErrReentrant = errors.New("reentrant transition from lifecycle hook")
	// ErrPoisoned indicates that the machine detected corruption after a
	// panic and refuses all further operations. Terminal for this instance;
	// discard it and construct a new one.
	ErrPoisoned = errors.New("machine is poisoned")

	// ErrNilPolicy indicates that no policy was supplied at construction.
	ErrNilPolicy = errors.New("policy is required")
	// ErrUnknownInitialState indicates that the initial state is not a
	// policy key.
	ErrUnknownInitialState = errors.New("initial state not declared in policy")
	// ErrUnknownHookState indicates a hook registered for an undeclared state.
	ErrUnknownHookState = errors.New("hook registered for state not declared in policy")
)

// Hook phases, used in errors, logs and metrics.
const (
	PhaseEnter = "enter"
	PhaseExit  = "exit"
)

// TransitionError wraps an error with the attempted transition.
type TransitionError struct {
	From policy.State
	To   policy.State
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// HookError wraps an error with the hook that produced it.
type HookError struct {
	State policy.State
	Phase string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook for state %s: %v", e.Phase, e.State, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// wrapTransitionError wraps an error with transition context.
func wrapTransitionError(from, to policy.State, err error) error {
	if err == nil {
		return nil
	}

	return &TransitionError{
		From: from,
		To:   to,
		Err:  err,
	}
}

// wrapHookError wraps a hook failure, chaining to ErrHookFailed so callers
// can match the class with errors.Is.
func wrapHookError(state policy.State, phase string, err error) error {
	if err == nil {
		return nil
	}

	return &HookError{
		State: state,
		Phase: phase,
		Err:   fmt.Errorf("%w: %w", ErrHookFailed, err),
	}
}
