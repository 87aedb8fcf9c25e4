// Package job runs training jobs: one trigger at a time through download,
// training, validation, upload and completion publishing.
package job

import (
	"time"
)

// State is the coordinator state. Exactly one job is outside StateIdle at a
// time.
type State string

// Coordinator states, in pipeline order.
const (
	StateIdle        State = "idle"
	StateDownloading State = "downloading"
	StateTraining    State = "training"
	StateValidating  State = "validating"
	StateUploading   State = "uploading"
	StatePublishing  State = "publishing"
	StateFailed      State = "failed"
)

// Artifact names the trainer must produce in its output directory.
const (
	ModelFile = "nulog_model_latest.pt"
	VocabFile = "vocab.txt"
)

// Job outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ArtifactBundle holds the local paths of a validated model and vocabulary.
type ArtifactBundle struct {
	ModelPath string
	VocabPath string
}

// Info identifies the running job.
type Info struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"startedAt"`
}

// Result is the terminal outcome of one job.
type Result struct {
	Info
	Outcome     string    `json:"outcome"`
	FailedStage State     `json:"failedStage,omitempty"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finishedAt"`

	Err error `json:"-"`
}

// Succeeded reports whether the job published its completion event.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// Duration is the wall time from dequeue to terminal state.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
