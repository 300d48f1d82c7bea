package fsm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsmkit/fsmkit/audit"
	"github.com/fsmkit/fsmkit/fsm"
	"github.com/fsmkit/fsmkit/policy"
)

func testLogger(t *testing.T, name string) fsm.Logger {
	t.Helper()

	return fsm.NewSlogLogger(slogt.New(t), name)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	order := policy.Order()

	_, err := fsm.New(nil, policy.OrderCreated, nil)
	require.ErrorIs(t, err, fsm.ErrNilPolicy)

	_, err = fsm.New(order, "warehouse", nil)
	require.ErrorIs(t, err, fsm.ErrUnknownInitialState)

	_, err = fsm.New(order, policy.OrderCreated, fsm.Hooks{
		"warehouse": {},
	})
	require.ErrorIs(t, err, fsm.ErrUnknownHookState)

	m, err := fsm.New(order, policy.OrderCreated, nil, fsm.WithName("order"))
	require.NoError(t, err)
	require.NotEmpty(t, m.ID())
	require.Equal(t, "order", m.Name())
	require.Same(t, order, m.Policy())
}

func TestOrderLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	m, err := fsm.New(policy.Order(), policy.OrderCreated, nil,
		fsm.WithName("order"),
		fsm.WithLogger(testLogger(t, "order")),
	)
	require.NoError(t, err)

	for _, target := range []policy.State{
		policy.OrderPaid, policy.OrderShipped, policy.OrderDelivered,
	} {
		state, err := m.TryTransition(ctx, target)
		require.NoError(t, err)
		require.Equal(t, target, state)
	}

	// Delivered is terminal; every further attempt is rejected and the
	// state does not move.
	_, err = m.TryTransition(ctx, policy.OrderCancelled)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)

	var transitionErr *fsm.TransitionError

	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, policy.OrderDelivered, transitionErr.From)
	assert.Equal(t, policy.OrderCancelled, transitionErr.To)

	state, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, policy.OrderDelivered, state)
}

func TestHookOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var calls []string

	record := func(phase string) fsm.HookFunc {
		return func(_ context.Context, s policy.State) error {
			calls = append(calls, phase+":"+string(s))

			return nil
		}
	}

	m, err := fsm.New(policy.Order(), policy.OrderCreated, fsm.Hooks{
		policy.OrderCreated: {OnExit: record("exit")},
		policy.OrderPaid:    {OnEnter: record("enter")},
	})
	require.NoError(t, err)

	_, err = m.TryTransition(ctx, policy.OrderPaid)
	require.NoError(t, err)

	// Exit on the old state fires before enter on the new one.
	assert.Equal(t, []string{"exit:created", "enter:paid"}, calls)
}

func TestExitHookFailureAborts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("drawer is stuck")

	m, err := fsm.New(policy.Door(), policy.DoorLocked, fsm.Hooks{
		policy.DoorLocked: {
			OnExit: func(context.Context, policy.State) error {
				return boom
			},
		},
	})
	require.NoError(t, err)

	_, err = m.TryTransition(ctx, policy.DoorUnlocked)
	require.ErrorIs(t, err, fsm.ErrHookFailed)
	require.ErrorIs(t, err, boom)

	var hookErr *fsm.HookError

	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, policy.DoorLocked, hookErr.State)
	assert.Equal(t, fsm.PhaseExit, hookErr.Phase)

	// The transition was aborted before the commit point.
	state, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, policy.DoorLocked, state)
	assert.Empty(t, m.History())
}

func TestEnterHookFailureStillCommits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("welcome email bounced")

	var (
		mu        sync.Mutex
		collected []error
	)

	m, err := fsm.New(policy.Order(), policy.OrderCreated, fsm.Hooks{
		policy.OrderPaid: {
			OnEnter: func(context.Context, policy.State) error {
				return boom
			},
		},
	},
		fsm.WithLogger(testLogger(t, "order")),
		fsm.WithCollector(func(err error) {
			mu.Lock()
			defer mu.Unlock()

			collected = append(collected, err)
		}),
	)
	require.NoError(t, err)

	// The commit already happened when the enter hook runs, so the caller
	// still gets the new state. The failure surfaces via the collector.
	state, err := m.TryTransition(ctx, policy.OrderPaid)
	require.NoError(t, err)
	require.Equal(t, policy.OrderPaid, state)

	require.Len(t, m.History(), 1)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, collected, 1)
	require.ErrorIs(t, collected[0], fsm.ErrHookFailed)
	require.ErrorIs(t, collected[0], boom)
}

func TestRefundHookFiresAtMostOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var (
		mu      sync.Mutex
		refunds int
	)

	m, err := fsm.New(policy.Order(), policy.OrderCreated, fsm.Hooks{
		policy.OrderCancelled: {
			OnEnter: func(context.Context, policy.State) error {
				mu.Lock()
				defer mu.Unlock()

				refunds++

				return nil
			},
		},
	}, fsm.WithName("order"))
	require.NoError(t, err)

	_, err = m.TryTransition(ctx, policy.OrderPaid)
	require.NoError(t, err)

	// Several callers notice the order should be cancelled at the same
	// time. Only one transition commits, so only one refund is issued.
	var wg sync.WaitGroup

	gate := make(chan struct{})
	errorCount := 0

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-gate

			if _, err := m.TryTransition(ctx, policy.OrderCancelled); err != nil {
				mu.Lock()
				defer mu.Unlock()

				errorCount++
			}
		}()
	}

	close(gate)
	wg.Wait()

	assert.Equal(t, 1, refunds)
	assert.Equal(t, 7, errorCount)

	state, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, policy.OrderCancelled, state)
}

func TestReentrantHookRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var (
		m       *fsm.Machine
		hookErr error
	)

	m, err := fsm.New(policy.Order(), policy.OrderCreated, fsm.Hooks{
		policy.OrderPaid: {
			OnEnter: func(ctx context.Context, _ policy.State) error {
				// Calling back into the owning machine from a hook must
				// fail fast instead of deadlocking on the state lock.
				_, hookErr = m.TryTransition(ctx, policy.OrderShipped)

				return nil
			},
		},
	})
	require.NoError(t, err)

	state, err := m.TryTransition(ctx, policy.OrderPaid)
	require.NoError(t, err)
	require.Equal(t, policy.OrderPaid, state)

	require.ErrorIs(t, hookErr, fsm.ErrReentrant)
}

func TestReentrantSnapshotRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var (
		m       *fsm.Machine
		hookErr error
	)

	m, err := fsm.New(policy.Order(), policy.OrderCreated, fsm.Hooks{
		policy.OrderCreated: {
			OnExit: func(ctx context.Context, _ policy.State) error {
				_, hookErr = m.Snapshot(ctx)

				return nil
			},
		},
	})
	require.NoError(t, err)

	_, err = m.TryTransition(ctx, policy.OrderPaid)
	require.NoError(t, err)

	require.ErrorIs(t, hookErr, fsm.ErrReentrant)
}

func TestPanickingHookPoisons(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	m, err := fsm.New(policy.Door(), policy.DoorLocked, fsm.Hooks{
		policy.DoorUnlocked: {
			OnEnter: func(context.Context, policy.State) error {
				panic("hinge snapped")
			},
		},
	}, fsm.WithLogger(testLogger(t, "door")))
	require.NoError(t, err)

	_, err = m.TryTransition(ctx, policy.DoorUnlocked)
	require.ErrorIs(t, err, fsm.ErrPoisoned)
	require.True(t, m.Poisoned())

	// Every later operation is refused with the original reason attached.
	_, err = m.TryTransition(ctx, policy.DoorLocked)
	require.ErrorIs(t, err, fsm.ErrPoisoned)
	require.ErrorContains(t, err, "hinge snapped")

	_, err = m.Snapshot(ctx)
	require.ErrorIs(t, err, fsm.ErrPoisoned)
}

func TestTransitionTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})

	m, err := fsm.New(policy.Door(), policy.DoorLocked, fsm.Hooks{
		policy.DoorLocked: {
			OnExit: func(context.Context, policy.State) error {
				close(entered)
				<-release

				return nil
			},
		},
	})
	require.NoError(t, err)

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, err := m.TryTransition(ctx, policy.DoorUnlocked)
		assert.NoError(t, err)
	}()

	<-entered

	// The lock is held inside the blocked hook; a bounded wait gives up
	// without attempting the transition.
	_, err = m.TryTransitionTimeout(ctx, policy.DoorUnlocked, 20*time.Millisecond)
	require.ErrorIs(t, err, fsm.ErrTimeout)

	_, err = m.SnapshotTimeout(ctx, 20*time.Millisecond)
	require.ErrorIs(t, err, fsm.ErrTimeout)

	close(release)
	<-done

	state, err := m.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, policy.DoorUnlocked, state)
}

func TestTransitionContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})

	m, err := fsm.New(policy.Door(), policy.DoorLocked, fsm.Hooks{
		policy.DoorLocked: {
			OnExit: func(context.Context, policy.State) error {
				close(entered)
				<-release

				return nil
			},
		},
	})
	require.NoError(t, err)

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, err := m.TryTransition(context.Background(), policy.DoorUnlocked)
		assert.NoError(t, err)
	}()

	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.TryTransition(ctx, policy.DoorUnlocked)
	require.ErrorIs(t, err, fsm.ErrTimeout)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}

func TestHistoryRecordsActorAndSequence(t *testing.T) {
	t.Parallel()

	ctx := fsm.WithActor(context.Background(), "billing-worker")

	m, err := fsm.New(policy.Order(), policy.OrderCreated, nil)
	require.NoError(t, err)

	_, err = m.TryTransition(ctx, policy.OrderPaid)
	require.NoError(t, err)

	_, err = m.TryTransition(context.Background(), policy.OrderShipped)
	require.NoError(t, err)

	// A rejected attempt leaves no trace in the history.
	_, err = m.TryTransition(ctx, policy.OrderPaid)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)

	history := m.History()
	require.Len(t, history, 2)

	assert.Equal(t, policy.OrderCreated, history[0].From)
	assert.Equal(t, policy.OrderPaid, history[0].To)
	assert.Equal(t, uint64(1), history[0].Seq)
	assert.Equal(t, "billing-worker", history[0].Actor)
	assert.False(t, history[0].At.IsZero())

	assert.Equal(t, uint64(2), history[1].Seq)
	assert.Equal(t, "unknown", history[1].Actor)
}

func TestAuditCapacityAndSink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sunk := make(chan audit.Record, 8)

	m, err := fsm.New(policy.Connection(), policy.ConnDisconnected, nil,
		fsm.WithAuditCapacity(2),
		fsm.WithAuditSink(func(rec audit.Record) {
			sunk <- rec
		}),
	)
	require.NoError(t, err)

	cycle := []policy.State{
		policy.ConnConnecting, policy.ConnConnected, policy.ConnDisconnecting,
	}

	for _, target := range cycle {
		_, err := m.TryTransition(ctx, target)
		require.NoError(t, err)
	}

	// The bounded log keeps only the newest records.
	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, policy.ConnConnected, history[0].To)
	assert.Equal(t, policy.ConnDisconnecting, history[1].To)

	// Every record still reaches the sink, eviction or not. Delivery is
	// fire-and-forget, so only the count is guaranteed.
	for range cycle {
		select {
		case <-sunk:
		case <-time.After(time.Second):
			t.Fatal("sink record not delivered")
		}
	}
}
