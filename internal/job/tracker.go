package job

import (
	"sync"
	"time"
)

// maxTransitions bounds the transition history kept for the status view.
const maxTransitions = 64

// Transition is one state change of the coordinator.
type Transition struct {
	JobID string    `json:"jobId"`
	Seq   uint64    `json:"seq"`
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	State       State        `json:"state"`
	CurrentJob  *Info        `json:"currentJob,omitempty"`
	LastResult  *Result      `json:"lastResult,omitempty"`
	Succeeded   int64        `json:"succeeded"`
	Failed      int64        `json:"failed"`
	Transitions []Transition `json:"transitions"`
}

// Tracker records coordinator state for observers. It is safe for
// concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	state       State
	current     *Info
	last        *Result
	succeeded   int64
	failed      int64
	transitions []Transition
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{state: StateIdle}
}

// Begin marks info as the current job.
func (t *Tracker) Begin(info Info) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &info
}

// Enter records a state change of the current job.
func (t *Tracker) Enter(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enter(state)
}

func (t *Tracker) enter(state State) {
	t.state = state
	tr := Transition{State: state, At: time.Now()}
	if t.current != nil {
		tr.JobID = t.current.ID
		tr.Seq = t.current.Seq
	}
	t.transitions = append(t.transitions, tr)
	if len(t.transitions) > maxTransitions {
		t.transitions = t.transitions[len(t.transitions)-maxTransitions:]
	}
}

// Finish records the terminal result, passing through StateFailed on
// failure, and returns to idle.
func (t *Tracker) Finish(res Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if res.Succeeded() {
		t.succeeded++
	} else {
		t.failed++
		t.enter(StateFailed)
	}
	t.enter(StateIdle)
	t.current = nil
	t.last = &res
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Snapshot returns a copy of the tracked state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		State:       t.state,
		Succeeded:   t.succeeded,
		Failed:      t.failed,
		Transitions: append([]Transition(nil), t.transitions...),
	}
	if t.current != nil {
		current := *t.current
		s.CurrentJob = &current
	}
	if t.last != nil {
		last := *t.last
		s.LastResult = &last
	}
	return s
}
