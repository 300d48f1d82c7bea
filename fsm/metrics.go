package fsm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric outcome constants.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metric definitions with appropriate labels.
var (
	// transitionsTotal tracks transition attempts by machine, edge, and outcome.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_transitions_total",
		Help: "Total number of transition attempts by machine, from_state, to_state, and outcome",
	}, []string{"machine", "from_state", "to_state", "outcome"})

	// rejectionsTotal tracks failed attempts by rejection reason.
	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_rejections_total",
		Help: "Total number of rejected transition attempts by machine and reason",
	}, []string{"machine", "reason"})

	// transitionDuration tracks time spent inside the critical section.
	transitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsm_transition_duration_seconds",
		Help:    "Duration of transition attempts by machine and outcome",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"machine", "outcome"})

	// hookDuration tracks individual lifecycle hook execution time.
	hookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsm_hook_duration_seconds",
		Help:    "Duration of lifecycle hook execution by machine and phase",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
	}, []string{"machine", "phase"})

	// poisonedTotal counts machines that entered the poisoned state.
	poisonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_poisoned_total",
		Help: "Total number of machines poisoned by a panic in the critical section",
	}, []string{"machine"})
)

// sanitizeMachine keeps the machine label well-defined for unnamed machines.
func sanitizeMachine(name string) string {
	if name == "" {
		return "unknown"
	}

	return name
}

// rejectionReason maps an error to a bounded metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrHookFailed):
		return "hook_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrReentrant):
		return "reentrant"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrPoisoned):
		return "poisoned"
	default:
		return "other"
	}
}
