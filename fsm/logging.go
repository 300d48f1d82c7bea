package fsm

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsmkit/fsmkit/policy"
)

// Logger provides logging hooks for machine operation.
type Logger interface {
	TransitionApplied(ctx context.Context, from, to policy.State, seq uint64, duration time.Duration)
	TransitionRejected(ctx context.Context, from, to policy.State, err error)
	HookFailed(ctx context.Context, state policy.State, phase string, err error)
	MachinePoisoned(ctx context.Context, reason error)
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger *slog.Logger
	name   string
}

// NewDefaultLogger creates a logger on slog.Default for the named machine.
func NewDefaultLogger(name string) *DefaultLogger {
	return NewSlogLogger(slog.Default(), name)
}

// NewSlogLogger creates a logger on the given slog.Logger for the named
// machine.
func NewSlogLogger(logger *slog.Logger, name string) *DefaultLogger {
	return &DefaultLogger{
		logger: logger,
		name:   name,
	}
}

func (l *DefaultLogger) TransitionApplied(
	ctx context.Context, from, to policy.State, seq uint64, duration time.Duration,
) {
	l.logger.InfoContext(ctx, "Transition applied",
		"machine", l.name,
		"from", string(from),
		"to", string(to),
		"seq", seq,
		"duration_ms", duration.Milliseconds(),
		"actor", ActorFrom(ctx),
	)
}

func (l *DefaultLogger) TransitionRejected(ctx context.Context, from, to policy.State, err error) {
	l.logger.WarnContext(ctx, "Transition rejected",
		"machine", l.name,
		"from", string(from),
		"to", string(to),
		"actor", ActorFrom(ctx),
		"error", err,
	)
}

func (l *DefaultLogger) HookFailed(ctx context.Context, state policy.State, phase string, err error) {
	l.logger.ErrorContext(ctx, "Lifecycle hook failed",
		"machine", l.name,
		"state", string(state),
		"phase", phase,
		"error", err,
	)
}

func (l *DefaultLogger) MachinePoisoned(ctx context.Context, reason error) {
	l.logger.ErrorContext(ctx, "Machine poisoned",
		"machine", l.name,
		"error", reason,
	)
}
