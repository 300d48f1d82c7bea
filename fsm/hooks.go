package fsm

import (
	"context"
	"fmt"

	"github.com/fsmkit/fsmkit/policy"
)

// HookFunc is a side-effecting callback invoked around a committed
// transition. Hooks receive the context of the transition attempt; they must
// use that context for any nested calls so reentrancy can be detected, and
// they must not call back into the owning machine.
type HookFunc func(ctx context.Context, s policy.State) error

// Hook pairs the enter and exit callbacks for one state. Either side may be
// nil. Each side is invoked at most once per transition: OnExit on the old
// state before commit, OnEnter on the new state after commit.
type Hook struct {
	OnEnter HookFunc
	OnExit  HookFunc
}

// Hooks maps states to their lifecycle callbacks. The table is owned by the
// machine and read-only after construction.
//
// Reentrancy detection relies on the context handed to the hook. A hook that
// calls back into its own machine with that context gets ErrReentrant; a hook
// that swaps in a fresh context bypasses detection and deadlocks on the state
// lock.
type Hooks map[policy.State]Hook

// validate rejects hooks registered for states the policy does not declare.
func (h Hooks) validate(p *policy.Policy) error {
	for s := range h {
		if !p.Contains(s) {
			return fmt.Errorf("%w: %s", ErrUnknownHookState, s)
		}
	}

	return nil
}

// enter runs the OnEnter hook for a state, if any.
func (h Hooks) enter(ctx context.Context, s policy.State) error {
	hook, ok := h[s]
	if !ok || hook.OnEnter == nil {
		return nil
	}

	return hook.OnEnter(ctx, s)
}

// exit runs the OnExit hook for a state, if any.
func (h Hooks) exit(ctx context.Context, s policy.State) error {
	hook, ok := h[s]
	if !ok || hook.OnExit == nil {
		return nil
	}

	return hook.OnExit(ctx, s)
}
