// Package testutil provides helpers shared by package, integration and e2e
// tests: condition polling and dataset archive fixtures.
package testutil

import (
	"testing"
	"time"
)

type waitOptions struct {
	timeout  time.Duration
	interval time.Duration
}

// WaitOption adjusts WaitFor.
type WaitOption func(*waitOptions)

// WithTimeout sets how long to poll before giving up (default 30s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.timeout = d }
}

// WithInterval sets the pause between polls (default 50ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.interval = d }
}

// WaitFor polls cond until it holds or the timeout passes, and reports
// whether it held. cond is always evaluated at least once.
func WaitFor(tb testing.TB, cond func() bool, opts ...WaitOption) bool {
	tb.Helper()

	o := waitOptions{timeout: 30 * time.Second, interval: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	deadline := time.NewTimer(o.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(o.interval)
	defer tick.Stop()

	for {
		if cond() {
			return true
		}
		select {
		case <-deadline.C:
			return cond()
		case <-tick.C:
		}
	}
}

// MustWaitFor is WaitFor that fails the test on timeout.
func MustWaitFor(tb testing.TB, cond func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, cond, opts...) {
		tb.Fatal("Condition not met before timeout")
	}
}
