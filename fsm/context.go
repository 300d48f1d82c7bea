package fsm

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// actorKey carries the caller identity recorded in audit records.
	actorKey contextKey = "fsm_actor"
	// transitionKey marks a context as belonging to an in-progress
	// transition of a specific machine. Hooks receive such a context; if it
	// flows back into the same machine, the call is reentrant.
	transitionKey contextKey = "fsm_in_transition"

	// unknownActor is recorded when the caller did not identify itself.
	unknownActor = "unknown"
)

// WithActor labels the context with the identity of the caller, typically a
// worker or session name. Audit records attribute transitions to it.
func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor label from the context, or "unknown".
func ActorFrom(ctx context.Context) string {
	if ctx == nil {
		return unknownActor
	}

	actor, ok := ctx.Value(actorKey).(string)
	if !ok || actor == "" {
		return unknownActor
	}

	return actor
}

// markInTransition tags the context with the machine currently holding the
// critical section. Hook callbacks receive the tagged context.
func markInTransition(ctx context.Context, machineID string) context.Context {
	return context.WithValue(ctx, transitionKey, machineID)
}

// isReentrant reports whether the context was tagged by an in-progress
// transition of the given machine.
func isReentrant(ctx context.Context, machineID string) bool {
	if ctx == nil {
		return false
	}

	id, ok := ctx.Value(transitionKey).(string)

	return ok && id == machineID
}
