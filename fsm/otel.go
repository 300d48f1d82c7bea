package fsm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fsmkit/fsmkit/policy"
)

// startTransitionSpan creates a span for one transition attempt.
// Uses the global tracer; exporter setup belongs to the embedding process.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller (factory pattern)
func startTransitionSpan(
	ctx context.Context, name, machineID string, target policy.State,
) (context.Context, trace.Span) {
	tracer := otel.Tracer("fsm")
	ctx, span := tracer.Start(ctx, "fsm.transition")
	span.SetAttributes(
		attribute.String("machine", name),
		attribute.String("machine_id", machineID),
		attribute.String("target", string(target)),
		attribute.String("actor", ActorFrom(ctx)),
	)

	return ctx, span
}

// endTransitionSpan records the outcome and closes the span.
func endTransitionSpan(span trace.Span, from policy.State, err error) {
	span.SetAttributes(attribute.String("from", string(from)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "committed")
	}

	span.End()
}
