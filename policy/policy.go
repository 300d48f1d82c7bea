// Package policy defines immutable transition tables for finite-state
// machines. A Policy is built once, validated, and then shared read-only
// across any number of machines.
package policy

import (
	"fmt"
	"sort"

	"github.com/fsmkit/fsmkit/errors"
)

// State identifies a single state in a machine. States carry identity only;
// owning objects attach their own payload (an order amount, a connection
// handle) next to the machine, never inside it.
type State string

// Policy is an immutable mapping from each state to the set of states it may
// transition to. A state with an empty destination set is terminal. Policies
// are safe for concurrent use once built; no mutation methods exist.
type Policy struct {
	allowed map[State]map[State]struct{}
}

// Allowed reports whether the policy permits a transition from one state to
// another. Unknown states are never allowed anything.
func (p *Policy) Allowed(from, to State) bool {
	destinations, ok := p.allowed[from]
	if !ok {
		return false
	}

	_, ok = destinations[to]

	return ok
}

// IsTerminal reports whether the state has no outgoing transitions.
// Unknown states are not terminal; they are simply not part of the policy.
func (p *Policy) IsTerminal(s State) bool {
	destinations, ok := p.allowed[s]

	return ok && len(destinations) == 0
}

// Contains reports whether the state is declared in the policy.
func (p *Policy) Contains(s State) bool {
	_, ok := p.allowed[s]

	return ok
}

// States returns every declared state in sorted order.
func (p *Policy) States() []State {
	states := make([]State, 0, len(p.allowed))
	for s := range p.allowed {
		states = append(states, s)
	}

	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })

	return states
}

// Destinations returns the allowed destinations of a state in sorted order.
// Unknown states yield nil.
func (p *Policy) Destinations(from State) []State {
	set, ok := p.allowed[from]
	if !ok {
		return nil
	}

	destinations := make([]State, 0, len(set))
	for s := range set {
		destinations = append(destinations, s)
	}

	sort.Slice(destinations, func(i, j int) bool { return destinations[i] < destinations[j] })

	return destinations
}

// TerminalStates returns every terminal state in sorted order.
func (p *Policy) TerminalStates() []State {
	var terminals []State

	for _, s := range p.States() {
		if p.IsTerminal(s) {
			terminals = append(terminals, s)
		}
	}

	return terminals
}

// Reachable returns the set of states reachable from the given state,
// including the state itself. Used by the validator and visualizer; the core
// never walks the graph at transition time.
func (p *Policy) Reachable(from State) map[State]bool {
	reachable := map[State]bool{from: true}

	// Simple BFS
	queue := []State{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for destination := range p.allowed[current] {
			if !reachable[destination] {
				reachable[destination] = true
				queue = append(queue, destination)
			}
		}
	}

	return reachable
}

// Len returns the number of declared states.
func (p *Policy) Len() int {
	return len(p.allowed)
}

// Builder accumulates state declarations and produces a validated Policy.
// It is not safe for concurrent use; build the policy up front and share
// the result instead.
type Builder struct {
	order  []State
	states map[State][]State
}

// NewBuilder creates an empty policy builder.
func NewBuilder() *Builder {
	return &Builder{
		order:  []State{},
		states: map[State][]State{},
	}
}

// AddState declares a state and its allowed destinations. Declaring a state
// with no destinations marks it terminal. Declaring the same state twice is
// a configuration error reported by Build.
func (b *Builder) AddState(s State, destinations ...State) *Builder {
	// Every declaration is remembered, duplicates included, so Build can
	// report them.
	b.order = append(b.order, s)
	b.states[s] = append(b.states[s], destinations...)

	return b
}

// Build validates the accumulated declarations and returns the immutable
// Policy. All configuration defects are reported together.
func (b *Builder) Build() (*Policy, error) {
	var errs errors.Collection

	if len(b.order) == 0 {
		return nil, ErrEmptyPolicy
	}

	seen := map[State]bool{}

	for _, s := range b.order {
		if s == "" {
			errs.Add(ErrStateNameRequired)

			continue
		}

		if seen[s] {
			errs.Add(fmt.Errorf("%w: %s", ErrDuplicateState, s))
		}

		seen[s] = true
	}

	allowed := make(map[State]map[State]struct{}, len(b.states))
	for s, destinations := range b.states {
		set := make(map[State]struct{}, len(destinations))

		for _, d := range destinations {
			if _, declared := b.states[d]; !declared {
				errs.Add(fmt.Errorf("%w: %s -> %s", ErrUnknownDestination, s, d))

				continue
			}

			set[d] = struct{}{}
		}

		allowed[s] = set
	}

	if errs.HasError() {
		return nil, errs.GetError()
	}

	return &Policy{allowed: allowed}, nil
}
