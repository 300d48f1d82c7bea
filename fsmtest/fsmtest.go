// Package fsmtest provides helpers for exercising state machines under
// concurrency in tests: a race harness that releases many transition attempts
// at once, and assertions over audit histories.
package fsmtest

import (
	"context"
	"sync"
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/stretchr/testify/require"

	"github.com/fsmkit/fsmkit/audit"
	"github.com/fsmkit/fsmkit/policy"
)

// Transitioner is the part of a machine the harness drives. Both the guarded
// and the lock-free machines satisfy it.
type Transitioner interface {
	TryTransition(ctx context.Context, target policy.State) (policy.State, error)
}

// Outcome summarizes one race: how many attempts committed and the errors
// returned by the attempts that did not.
type Outcome struct {
	Wins   int
	Errors []error
}

// Race launches n goroutines that all call fn, released together by a start
// gate so the attempts overlap as much as the scheduler allows. It returns
// once every attempt has finished.
func Race(ctx context.Context, n int, fn func(ctx context.Context) error) Outcome {
	gate := make(chan struct{})
	pool := pond.NewPool(n)

	var (
		mu      sync.Mutex
		outcome Outcome
	)

	for i := 0; i < n; i++ {
		pool.Submit(func() {
			<-gate

			err := fn(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				outcome.Errors = append(outcome.Errors, err)
			} else {
				outcome.Wins++
			}
		})
	}

	close(gate)
	pool.StopAndWait()

	return outcome
}

// RaceTransition races n concurrent attempts to move the machine to target.
func RaceTransition(ctx context.Context, m Transitioner, target policy.State, n int) Outcome {
	return Race(ctx, n, func(ctx context.Context) error {
		_, err := m.TryTransition(ctx, target)

		return err
	})
}

// RequireSequential asserts that the history is gap-free: sequence numbers
// ascend by one and every record starts where the previous one ended.
// Self-loops are legal; a policy may declare a state as its own destination.
func RequireSequential(t *testing.T, records []audit.Record) {
	t.Helper()

	for i := range records {
		if i == 0 {
			continue
		}

		rec := records[i]
		prev := records[i-1]
		require.Equal(t, prev.Seq+1, rec.Seq, "sequence gap at record %d", i)
		require.Equal(t, prev.To, rec.From, "record %d does not chain from record %d", i, i-1)
	}
}

// RequireConforms asserts that every recorded transition is an edge the
// policy allows.
func RequireConforms(t *testing.T, p *policy.Policy, records []audit.Record) {
	t.Helper()

	for i, rec := range records {
		require.True(t, p.Allowed(rec.From, rec.To),
			"record %d: %s -> %s is not a policy edge", i, rec.From, rec.To)
	}
}
