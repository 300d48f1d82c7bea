package fsm

import "github.com/fsmkit/fsmkit/audit"

// defaultMaxRetries bounds the lock-free CAS loop.
const defaultMaxRetries = 8

// Collector is notified of failed transition attempts, for error-rate
// dashboards. Collectors are best-effort: they run outside the critical
// section and a panicking collector is swallowed.
type Collector func(err error)

// Option configures a Machine or AtomicMachine.
type Option func(*machineOptions)

type machineOptions struct {
	name       string
	logger     Logger
	collector  Collector
	auditOpts  []audit.Option
	maxRetries int
}

func applyOptions(opts []Option) machineOptions {
	options := machineOptions{
		maxRetries: defaultMaxRetries,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return options
}

// WithName sets the machine name used as the metric and log label.
// Unnamed machines show up as "unknown".
func WithName(name string) Option {
	return func(o *machineOptions) {
		o.name = name
	}
}

// WithLogger sets the logger for machine operation. Without it the machine
// is silent.
func WithLogger(logger Logger) Option {
	return func(o *machineOptions) {
		o.logger = logger
	}
}

// WithCollector injects a best-effort failure collector.
func WithCollector(collector Collector) Option {
	return func(o *machineOptions) {
		o.collector = collector
	}
}

// WithAuditCapacity bounds the audit log to at most n records, evicting the
// oldest first. Default is unbounded.
func WithAuditCapacity(n int) Option {
	return func(o *machineOptions) {
		o.auditOpts = append(o.auditOpts, audit.WithCapacity(n))
	}
}

// WithAuditSink forwards every audit record to the sink, fire-and-forget,
// outside the critical section.
func WithAuditSink(sink audit.Sink) Option {
	return func(o *machineOptions) {
		o.auditOpts = append(o.auditOpts, audit.WithSink(sink))
	}
}

// WithMaxRetries bounds the CAS retry loop of the lock-free strategy.
// Ignored by the guarded strategy.
func WithMaxRetries(n int) Option {
	return func(o *machineOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}
