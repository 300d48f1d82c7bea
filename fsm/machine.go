package fsm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/fsmkit/fsmkit/assert"
	"github.com/fsmkit/fsmkit/audit"
	"github.com/fsmkit/fsmkit/policy"
)

// Machine is the guarded finite-state machine: one current state protected
// by a single lock, a shared read-only policy, lifecycle hooks, and an audit
// log. Reading the state and validating+committing a transition are
// indivisible with respect to every other goroutine; no observer can ever
// see a mid-transition value, which is what closes the check-then-act race.
//
// A Machine is owned by exactly one domain object (an order, a connection,
// a door). Machines are never process-wide singletons; sharing one requires
// an explicit hand-off by the owner.
type Machine struct {
	id        string
	name      string
	policy    *policy.Policy
	hooks     Hooks
	log       *audit.Log
	logger    Logger
	collector Collector

	// sem is the cell lock: a one-token channel, so acquisition can honor
	// contexts and bounded waits. The fields below it are guarded by sem.
	sem     chan struct{}
	current policy.State
	seq     uint64

	poisoned     atomic.Bool
	poisonReason atomic.Error
}

// New creates a machine governed by the policy, starting at the initial
// state. The hooks table may be nil. The initial state is assumed, not
// entered: no enter hook runs at construction.
func New(p *policy.Policy, initial policy.State, hooks Hooks, opts ...Option) (*Machine, error) {
	if p == nil {
		return nil, ErrNilPolicy
	}

	if !p.Contains(initial) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInitialState, initial)
	}

	if hooks == nil {
		hooks = Hooks{}
	}

	err := hooks.validate(p)
	if err != nil {
		return nil, err
	}

	options := applyOptions(opts)

	m := &Machine{
		id:        uuid.NewString(),
		name:      options.name,
		policy:    p,
		hooks:     hooks,
		log:       audit.NewLog(options.auditOpts...),
		logger:    options.logger,
		collector: options.collector,
		sem:       make(chan struct{}, 1),
		current:   initial,
	}
	m.sem <- struct{}{}

	return m, nil
}

// ID returns the unique instance id, used to correlate logs and spans.
func (m *Machine) ID() string {
	return m.id
}

// Name returns the machine name used in metrics and logs.
func (m *Machine) Name() string {
	return m.name
}

// Policy returns the shared transition policy.
func (m *Machine) Policy() *policy.Policy {
	return m.policy
}

// Poisoned reports whether the machine has entered its terminal poisoned
// state.
func (m *Machine) Poisoned() bool {
	return m.poisoned.Load()
}

// TryTransition attempts to move the machine to the target state, blocking
// until the cell lock is available or ctx is done. On success it returns the
// new state; on failure the state is unchanged unless the error is
// ErrPoisoned.
func (m *Machine) TryTransition(ctx context.Context, target policy.State) (policy.State, error) {
	return m.transition(ctx, target, nil)
}

// TryTransitionTimeout is TryTransition with a bounded wait for the cell
// lock. An expired wait yields ErrTimeout and the transition is not
// attempted.
func (m *Machine) TryTransitionTimeout(
	ctx context.Context, target policy.State, d time.Duration,
) (policy.State, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	return m.transition(ctx, target, timer.C)
}

// Snapshot returns the current state under the same lock discipline as
// transitions, so a caller combining Snapshot with TryTransition never acts
// on a torn value.
func (m *Machine) Snapshot(ctx context.Context) (policy.State, error) {
	return m.snapshot(ctx, nil)
}

// SnapshotTimeout is Snapshot with a bounded wait for the cell lock.
func (m *Machine) SnapshotTimeout(ctx context.Context, d time.Duration) (policy.State, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	return m.snapshot(ctx, timer.C)
}

// History returns a point-in-time copy of the audit log. The audit log has
// its own synchronization; reading history never contends with the cell
// lock.
func (m *Machine) History() []audit.Record {
	return m.log.History()
}

func (m *Machine) transition(
	ctx context.Context, target policy.State, deadline <-chan time.Time,
) (policy.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if m.poisoned.Load() {
		return "", m.poisonedErr()
	}

	if isReentrant(ctx, m.id) {
		err := fmt.Errorf("%w: target %s", ErrReentrant, target)
		m.reject(ctx, "", target, err)

		return "", err
	}

	ctx, span := startTransitionSpan(ctx, sanitizeMachine(m.name), m.id, target)
	start := time.Now()

	err := m.acquire(ctx, deadline)
	if err != nil {
		m.reject(ctx, "", target, err)
		endTransitionSpan(span, "", err)
		m.notifyCollector(err)

		return "", err
	}

	from, seq, enterErr, err := m.locked(ctx, target)

	duration := time.Since(start)
	outcome := outcomeSuccess

	if err != nil {
		outcome = outcomeError

		m.reject(ctx, from, target, err)
	} else {
		transitionsTotal.WithLabelValues(
			sanitizeMachine(m.name), string(from), string(target), outcomeSuccess,
		).Inc()

		if m.logger != nil {
			m.logger.TransitionApplied(ctx, from, target, seq, duration)
		}
	}

	transitionDuration.WithLabelValues(sanitizeMachine(m.name), outcome).Observe(duration.Seconds())
	endTransitionSpan(span, from, err)
	m.notifyCollector(err)
	m.notifyCollector(enterErr)

	if err != nil {
		return "", err
	}

	return target, nil
}

// locked runs the critical section: validate, exit hook, commit, enter hook,
// audit append. A panic anywhere inside is converted into the poisoned state
// at this boundary; it never escapes to the caller as a raw panic.
func (m *Machine) locked(
	ctx context.Context, target policy.State,
) (from policy.State, seq uint64, enterErr, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.poison(ctx, fmt.Errorf("panic in critical section: %v", r))

			err = m.poisonedErr()
		}

		m.release()
	}()

	// A waiter may have acquired the lock after another goroutine poisoned
	// the machine; refuse before touching anything.
	if m.poisoned.Load() {
		return "", 0, nil, m.poisonedErr()
	}

	from = m.current

	if !m.policy.Allowed(from, target) {
		return from, 0, nil, wrapTransitionError(from, target, ErrInvalidTransition)
	}

	hookCtx := markInTransition(ctx, m.id)

	// Exit hook failure aborts the transition; the state is untouched.
	hookErr := m.runHook(hookCtx, PhaseExit, from)
	if hookErr != nil {
		if m.logger != nil {
			m.logger.HookFailed(ctx, from, PhaseExit, hookErr)
		}

		return from, 0, nil, wrapHookError(from, PhaseExit, hookErr)
	}

	// Commit point. From here the transition is final: no rollback.
	m.current = target
	m.seq++

	assert.True(m.policy.Contains(m.current), "current state %s left the policy", m.current)

	// Commit-then-notify: an enter hook failure is reported but the state
	// stays committed.
	hookErr = m.runHook(hookCtx, PhaseEnter, target)
	if hookErr != nil {
		if m.logger != nil {
			m.logger.HookFailed(ctx, target, PhaseEnter, hookErr)
		}

		enterErr = wrapHookError(target, PhaseEnter, hookErr)
	}

	m.log.Append(audit.Record{
		From:  from,
		To:    target,
		Seq:   m.seq,
		At:    time.Now(),
		Actor: ActorFrom(ctx),
	})

	return from, m.seq, enterErr, nil
}

func (m *Machine) snapshot(ctx context.Context, deadline <-chan time.Time) (policy.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if m.poisoned.Load() {
		return "", m.poisonedErr()
	}

	// A hook asking for a snapshot of its own machine would deadlock on the
	// cell lock; refuse it the same way a nested transition is refused.
	if isReentrant(ctx, m.id) {
		return "", ErrReentrant
	}

	err := m.acquire(ctx, deadline)
	if err != nil {
		return "", err
	}

	current := m.current
	m.release()

	return current, nil
}

// acquire takes the cell lock, honoring context cancellation and the
// optional bounded-wait deadline. Both map to ErrTimeout: the wait window
// closed before the lock was available.
func (m *Machine) acquire(ctx context.Context, deadline <-chan time.Time) error {
	select {
	case <-m.sem:
		return nil
	default:
	}

	select {
	case <-m.sem:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	case <-deadline:
		return ErrTimeout
	}
}

func (m *Machine) release() {
	m.sem <- struct{}{}
}

// runHook dispatches one lifecycle hook and records its duration.
func (m *Machine) runHook(ctx context.Context, phase string, s policy.State) error {
	start := time.Now()

	var err error

	switch phase {
	case PhaseExit:
		err = m.hooks.exit(ctx, s)
	case PhaseEnter:
		err = m.hooks.enter(ctx, s)
	}

	hookDuration.WithLabelValues(sanitizeMachine(m.name), phase).Observe(time.Since(start).Seconds())

	return err
}

// poison flips the machine into its terminal state. First writer wins; the
// reason is preserved for every later error.
func (m *Machine) poison(ctx context.Context, reason error) {
	if !m.poisoned.CompareAndSwap(false, true) {
		return
	}

	m.poisonReason.Store(reason)
	poisonedTotal.WithLabelValues(sanitizeMachine(m.name)).Inc()

	if m.logger != nil {
		m.logger.MachinePoisoned(ctx, reason)
	}
}

func (m *Machine) poisonedErr() error {
	if reason := m.poisonReason.Load(); reason != nil {
		return fmt.Errorf("%w: %w", ErrPoisoned, reason)
	}

	return ErrPoisoned
}

// reject records a failed attempt in metrics and logs.
func (m *Machine) reject(ctx context.Context, from, to policy.State, err error) {
	rejectionsTotal.WithLabelValues(sanitizeMachine(m.name), rejectionReason(err)).Inc()
	transitionsTotal.WithLabelValues(
		sanitizeMachine(m.name), string(from), string(to), outcomeError,
	).Inc()

	if m.logger != nil {
		m.logger.TransitionRejected(ctx, from, to, err)
	}
}

// notifyCollector forwards a failure to the injected collector inside a
// best-effort boundary. Called only after the lock is released.
func (m *Machine) notifyCollector(err error) {
	if m.collector == nil || err == nil {
		return
	}

	defer func() {
		_ = recover()
	}()

	m.collector(err)
}
