// Package audit keeps an ordered record of applied state transitions.
// A Log is owned by exactly one machine; it is never shared across machines.
package audit

import (
	"sync"
	"time"

	"github.com/fsmkit/fsmkit/policy"
)

// Record is one applied transition. Records are immutable after append.
type Record struct {
	From  policy.State
	To    policy.State
	Seq   uint64
	At    time.Time
	Actor string
}

// Sink receives records forwarded from a Log. Sinks are best-effort: they run
// outside the machine's critical section and a panicking sink is swallowed.
type Sink func(Record)

// Log is an append-only, optionally capacity-bounded transition log.
// Insertion order is commit order. Safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	records  []Record
	capacity int // 0 means unbounded
	sink     Sink
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity bounds the log to at most n records. When full, the oldest
// record is evicted first. A capacity of 0 means unbounded.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithSink forwards every appended record to the sink, fire-and-forget.
func WithSink(sink Sink) Option {
	return func(l *Log) {
		l.sink = sink
	}
}

// NewLog creates an empty log.
func NewLog(opts ...Option) *Log {
	l := &Log{}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Append adds a record to the log, evicting the oldest record if the log is
// at capacity. The configured sink, if any, is notified asynchronously so it
// can never block the caller.
func (l *Log) Append(rec Record) {
	l.mu.Lock()

	if l.capacity > 0 && len(l.records) == l.capacity {
		// FIFO eviction. Copying down keeps the backing array from
		// pinning evicted records.
		copy(l.records, l.records[1:])
		l.records = l.records[:l.capacity-1]
	}

	l.records = append(l.records, rec)
	sink := l.sink

	l.mu.Unlock()

	if sink != nil {
		go forward(sink, rec)
	}
}

// forward invokes the sink inside an error-swallowing boundary. A sink that
// panics must not take the core down with it.
func forward(sink Sink, rec Record) {
	defer func() {
		_ = recover()
	}()

	sink(rec)
}

// History returns a point-in-time copy of the log. The returned slice is
// independent of the log: it never reflects later appends or evictions.
func (l *Log) History() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := make([]Record, len(l.records))
	copy(history, l.records)

	return history
}

// Len returns the current number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.records)
}

// TruncateTo evicts the oldest records until at most max remain.
// A non-positive max clears the log.
func (l *Log) TruncateTo(max int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if max <= 0 {
		l.records = nil

		return
	}

	if excess := len(l.records) - max; excess > 0 {
		copy(l.records, l.records[excess:])
		l.records = l.records[:max]
	}
}
