package guard

import (
	"log/slog"
	"time"
)

// DefaultPermits is the number of operations allowed to run concurrently.
const DefaultPermits = 5

// Option configures a Guard.
type Option func(*Guard)

// WithPermits sets the permit capacity. Values below one are ignored.
func WithPermits(n int) Option {
	return func(g *Guard) {
		if n >= 1 {
			g.capacity = n
		}
	}
}

// WithLogger sets the logger used for lifecycle events and failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics records permit usage and operation outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithAcquireTimeout bounds how long an operation waits for a permit.
// Zero (the default) waits without limit. Close always waits without limit.
func WithAcquireTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.acquireTimeout = d
		}
	}
}

// WithCancellableAcquire makes operations stop waiting for a permit when
// their context is done. By default the wait ignores cancellation.
func WithCancellableAcquire() Option {
	return func(g *Guard) {
		g.cancellable = true
	}
}

// WithCloseErrorHandler receives failures raised while Close commits and
// closes the writer. Close itself never returns them.
func WithCloseErrorHandler(fn func(step string, err error)) Option {
	return func(g *Guard) {
		g.onCloseError = fn
	}
}
