package fsm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsmkit/fsmkit/fsm"
	"github.com/fsmkit/fsmkit/fsmtest"
	"github.com/fsmkit/fsmkit/policy"
)

func TestNewAtomicValidation(t *testing.T) {
	t.Parallel()

	_, err := fsm.NewAtomic(nil, policy.ConnDisconnected)
	require.ErrorIs(t, err, fsm.ErrNilPolicy)

	_, err = fsm.NewAtomic(policy.Connection(), "hibernating")
	require.ErrorIs(t, err, fsm.ErrUnknownInitialState)

	m, err := fsm.NewAtomic(policy.Connection(), policy.ConnDisconnected,
		fsm.WithName("conn"))
	require.NoError(t, err)
	require.NotEmpty(t, m.ID())
	require.Equal(t, "conn", m.Name())
	require.Equal(t, policy.ConnDisconnected, m.Snapshot())
}

func TestAtomicConnectionCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	m, err := fsm.NewAtomic(policy.Connection(), policy.ConnDisconnected,
		fsm.WithName("conn"),
		fsm.WithLogger(testLogger(t, "conn")),
	)
	require.NoError(t, err)

	cycle := []policy.State{
		policy.ConnConnecting, policy.ConnConnected,
		policy.ConnDisconnecting, policy.ConnDisconnected,
	}

	for _, target := range cycle {
		state, err := m.TryTransition(ctx, target)
		require.NoError(t, err)
		require.Equal(t, target, state)
		require.Equal(t, target, m.Snapshot())
	}

	history := m.History()
	require.Len(t, history, len(cycle))
	fsmtest.RequireSequential(t, history)
	fsmtest.RequireConforms(t, m.Policy(), history)
}

func TestAtomicInvalidTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var collected []error

	m, err := fsm.NewAtomic(policy.Connection(), policy.ConnDisconnected,
		fsm.WithCollector(func(err error) {
			collected = append(collected, err)
		}),
	)
	require.NoError(t, err)

	// Skipping the connecting phase is not an edge.
	_, err = m.TryTransition(ctx, policy.ConnConnected)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)

	var transitionErr *fsm.TransitionError

	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, policy.ConnDisconnected, transitionErr.From)
	assert.Equal(t, policy.ConnConnected, transitionErr.To)

	// The failed attempt leaves no trace except in the collector.
	assert.Equal(t, policy.ConnDisconnected, m.Snapshot())
	assert.Empty(t, m.History())
	require.Len(t, collected, 1)
	require.ErrorIs(t, collected[0], fsm.ErrInvalidTransition)
}

func TestAtomicRacersExactlyOneWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	m, err := fsm.NewAtomic(policy.Connection(), policy.ConnDisconnected)
	require.NoError(t, err)

	// Everyone CASes disconnected -> connecting. One CAS wins; the losers
	// re-read connecting, from which connecting is not an edge, so they
	// fail with a policy rejection rather than a contention error.
	outcome := fsmtest.RaceTransition(ctx, m, policy.ConnConnecting, 16)

	require.Equal(t, 1, outcome.Wins)
	require.Len(t, outcome.Errors, 15)

	for _, err := range outcome.Errors {
		require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	}

	require.Equal(t, policy.ConnConnecting, m.Snapshot())
	require.Len(t, m.History(), 1)
}

func TestAtomicActorRecorded(t *testing.T) {
	t.Parallel()

	ctx := fsm.WithActor(context.Background(), "dialer")

	m, err := fsm.NewAtomic(policy.Connection(), policy.ConnDisconnected)
	require.NoError(t, err)

	_, err = m.TryTransition(ctx, policy.ConnConnecting)
	require.NoError(t, err)

	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, "dialer", history[0].Actor)
	assert.Equal(t, uint64(1), history[0].Seq)
}
