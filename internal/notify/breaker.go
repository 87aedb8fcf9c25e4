package notify

import (
	"errors"
	"sync"
	"time"
)

// ErrSuppressed is returned while the callback endpoint is considered down.
var ErrSuppressed = errors.New("callback suppressed after repeated failures")

type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

func (s breakerState) String() string {
	switch s {
	case closed:
		return "closed"
	case open:
		return "open"
	default:
		return "half-open"
	}
}

// breaker stops calling the endpoint after threshold consecutive failures and
// lets one probe through once cooldown has passed.
type breaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
	now         func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: max(threshold, 1), cooldown: cooldown, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == open {
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = halfOpen
	}
	return true
}

// record updates the state with the outcome of an allowed call and reports
// whether the state changed.
func (b *breaker) record(err error) (breakerState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	if err == nil {
		b.failures = 0
		b.state = closed
		return b.state, prev != b.state
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == halfOpen || b.failures >= b.threshold {
		b.state = open
	}
	return b.state, prev != b.state
}
