package fsm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/fsmkit/fsmkit/audit"
	"github.com/fsmkit/fsmkit/policy"
)

// AtomicMachine is the lock-free strategy: the current state lives in a CAS
// cell and transitions never block. It supports no lifecycle hooks; use the
// guarded Machine when side effects must ride along with a transition.
//
// Audit records are appended in CAS-commit order, but sequence numbers are
// only guaranteed to form some total order consistent with the CAS wins,
// not a gap-free series aligned with wall-clock commit order.
type AtomicMachine struct {
	id        string
	name      string
	policy    *policy.Policy
	log       *audit.Log
	logger    Logger
	collector Collector

	current    *atomic.String
	seq        *atomic.Uint64
	maxRetries int
}

// NewAtomic creates a lock-free machine governed by the policy, starting at
// the initial state.
func NewAtomic(p *policy.Policy, initial policy.State, opts ...Option) (*AtomicMachine, error) {
	if p == nil {
		return nil, ErrNilPolicy
	}

	if !p.Contains(initial) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInitialState, initial)
	}

	options := applyOptions(opts)

	return &AtomicMachine{
		id:         uuid.NewString(),
		name:       options.name,
		policy:     p,
		log:        audit.NewLog(options.auditOpts...),
		logger:     options.logger,
		collector:  options.collector,
		current:    atomic.NewString(string(initial)),
		seq:        atomic.NewUint64(0),
		maxRetries: options.maxRetries,
	}, nil
}

// ID returns the unique instance id.
func (m *AtomicMachine) ID() string {
	return m.id
}

// Name returns the machine name used in metrics and logs.
func (m *AtomicMachine) Name() string {
	return m.name
}

// Policy returns the shared transition policy.
func (m *AtomicMachine) Policy() *policy.Policy {
	return m.policy
}

// Snapshot returns the current state. Always a value that was valid at some
// commit point; never a torn read.
func (m *AtomicMachine) Snapshot() policy.State {
	return policy.State(m.current.Load())
}

// History returns a point-in-time copy of the audit log.
func (m *AtomicMachine) History() []audit.Record {
	return m.log.History()
}

// TryTransition attempts to CAS the machine into the target state.
//
// A policy rejection is a logical failure, not a race: it fails immediately
// without retrying. A lost CAS means another goroutine committed first; the
// attempt is re-validated against the new current state before retrying, up
// to the configured retry bound, after which ErrContention is returned.
func (m *AtomicMachine) TryTransition(ctx context.Context, target policy.State) (policy.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := startTransitionSpan(ctx, sanitizeMachine(m.name), m.id, target)
	start := time.Now()

	var from policy.State

	for attempt := 0; ; attempt++ {
		from = policy.State(m.current.Load())

		if !m.policy.Allowed(from, target) {
			return "", m.fail(ctx, span, from, target, start,
				wrapTransitionError(from, target, ErrInvalidTransition))
		}

		if m.current.CompareAndSwap(string(from), string(target)) {
			break
		}

		// Lost the CAS: state moved underneath us. The stale read is
		// discarded, never trusted.
		if attempt >= m.maxRetries {
			return "", m.fail(ctx, span, from, target, start,
				wrapTransitionError(from, target, ErrContention))
		}
	}

	seq := m.seq.Inc()

	m.log.Append(audit.Record{
		From:  from,
		To:    target,
		Seq:   seq,
		At:    time.Now(),
		Actor: ActorFrom(ctx),
	})

	duration := time.Since(start)

	transitionsTotal.WithLabelValues(
		sanitizeMachine(m.name), string(from), string(target), outcomeSuccess,
	).Inc()
	transitionDuration.WithLabelValues(sanitizeMachine(m.name), outcomeSuccess).Observe(duration.Seconds())

	if m.logger != nil {
		m.logger.TransitionApplied(ctx, from, target, seq, duration)
	}

	endTransitionSpan(span, from, nil)

	return target, nil
}

// fail records a failed attempt, closes the span, and returns its error.
func (m *AtomicMachine) fail(
	ctx context.Context,
	span trace.Span,
	from, target policy.State,
	start time.Time,
	err error,
) error {
	rejectionsTotal.WithLabelValues(sanitizeMachine(m.name), rejectionReason(err)).Inc()
	transitionsTotal.WithLabelValues(
		sanitizeMachine(m.name), string(from), string(target), outcomeError,
	).Inc()
	transitionDuration.WithLabelValues(
		sanitizeMachine(m.name), outcomeError,
	).Observe(time.Since(start).Seconds())

	if m.logger != nil {
		m.logger.TransitionRejected(ctx, from, target, err)
	}

	endTransitionSpan(span, from, err)

	if m.collector != nil {
		func() {
			defer func() {
				_ = recover()
			}()

			m.collector(err)
		}()
	}

	return err
}
