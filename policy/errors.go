package policy

import "errors"

// Configuration errors. All are fatal at construction time; a policy either
// builds cleanly or not at all.
var (
	// ErrEmptyPolicy indicates that a policy declares no states.
	ErrEmptyPolicy = errors.New("policy must declare at least one state")
	// ErrStateNameRequired indicates that a state name is empty.
	ErrStateNameRequired = errors.New("state name is required")
	// ErrDuplicateState indicates that a state was declared more than once.
	ErrDuplicateState = errors.New("duplicate state")
	// ErrUnknownDestination indicates a transition to an undeclared state.
	ErrUnknownDestination = errors.New("transition destination not declared")
	// ErrDefinitionNameRequired indicates that a policy definition has no name.
	ErrDefinitionNameRequired = errors.New("definition name is required")
)
