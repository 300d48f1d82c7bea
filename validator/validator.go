// Package validator checks a transition policy for structural problems that
// the policy builder cannot see because they depend on the chosen initial
// state, like states that can never be reached or flows that can never end.
package validator

import (
	"fmt"

	"github.com/fsmkit/fsmkit/policy"
)

// Issue codes.
const (
	CodeInitialNotFound     = "INITIAL_NOT_FOUND"
	CodeUnreachableState    = "UNREACHABLE_STATE"
	CodeNoTerminalReachable = "NO_TERMINAL_REACHABLE"
	CodeNoTerminalStates    = "NO_TERMINAL_STATES"
)

// Issue is one finding about a policy.
type Issue struct {
	Code    string
	Message string
	State   policy.State
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// Result holds the findings of one validation run. Errors make the policy
// unusable with the given initial state; warnings are suspicious but legal.
type Result struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// Validate inspects the policy as a graph rooted at the initial state.
//
// Errors:
//   - the initial state is not part of the policy
//
// Warnings:
//   - states that no path from the initial state can reach
//   - the policy has no terminal states at all, so every flow runs forever
//   - no terminal state is reachable from the initial state
func Validate(p *policy.Policy, initial policy.State) Result {
	result := Result{Valid: true}

	if p == nil || !p.Contains(initial) {
		result.Valid = false
		result.Errors = append(result.Errors, Issue{
			Code:    CodeInitialNotFound,
			Message: fmt.Sprintf("initial state %q is not part of the policy", initial),
			State:   initial,
		})

		return result
	}

	reachable := p.Reachable(initial)

	for _, s := range p.States() {
		if _, ok := reachable[s]; !ok {
			result.Warnings = append(result.Warnings, Issue{
				Code:    CodeUnreachableState,
				Message: fmt.Sprintf("state %q cannot be reached from %q", s, initial),
				State:   s,
			})
		}
	}

	terminals := p.TerminalStates()
	if len(terminals) == 0 {
		result.Warnings = append(result.Warnings, Issue{
			Code:    CodeNoTerminalStates,
			Message: "policy has no terminal states",
		})

		return result
	}

	terminalReachable := false

	for _, t := range terminals {
		if _, ok := reachable[t]; ok {
			terminalReachable = true

			break
		}
	}

	if !terminalReachable {
		result.Warnings = append(result.Warnings, Issue{
			Code:    CodeNoTerminalReachable,
			Message: fmt.Sprintf("no terminal state is reachable from %q", initial),
			State:   initial,
		})
	}

	return result
}
