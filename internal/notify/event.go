// Package notify delivers job outcomes to an HTTP callback as CloudEvents.
package notify

import (
	"time"

	"modeltrain/internal/job"
)

// Event types for terminal job results.
const (
	TypeCompleted = "trainer.job.completed"
	TypeFailed    = "trainer.job.failed"
)

const eventSource = "modeltrain/coordinator"

// Event is a CloudEvents 1.0 envelope in structured JSON mode.
type Event struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            Outcome   `json:"data"`
}

// Outcome is the event payload.
type Outcome struct {
	JobID       string    `json:"jobId"`
	Seq         uint64    `json:"seq"`
	Source      string    `json:"source"`
	State       job.State `json:"state"`
	FailedStage job.State `json:"failedStage,omitempty"`
	Error       string    `json:"error,omitempty"`
	Bucket      string    `json:"bucket,omitempty"`
	DurationMs  int64     `json:"durationMs"`
}

// NewEvent builds the event for res. bucket is reported only on success.
func NewEvent(res job.Result, bucket string) *Event {
	e := &Event{
		SpecVersion:     "1.0",
		Type:            TypeCompleted,
		Source:          eventSource,
		Subject:         res.ID,
		ID:              res.ID,
		Time:            res.FinishedAt.UTC(),
		DataContentType: "application/json",
		Data: Outcome{
			JobID:      res.ID,
			Seq:        res.Seq,
			Source:     res.Source,
			State:      job.StateIdle,
			DurationMs: res.Duration().Milliseconds(),
		},
	}
	if res.Succeeded() {
		e.Data.Bucket = bucket
		return e
	}
	e.Type = TypeFailed
	e.Data.State = job.StateFailed
	e.Data.FailedStage = res.FailedStage
	e.Data.Error = res.Error
	return e
}
