// Package events publishes job lifecycle changes to other services.
package events

import (
	"context"
	"time"

	"cartoonify/internal/domain"
)

// Type names a lifecycle edge.
type Type string

const (
	JobSubmitted  Type = "job.submitted"
	JobProcessing Type = "job.processing"
	JobCompleted  Type = "job.completed"
	JobFailed     Type = "job.failed"
)

// Event is the payload sent for every job state change.
type Event struct {
	Type           Type             `json:"type"`
	JobID          string           `json:"job_id"`
	Status         domain.JobStatus `json:"status"`
	ResultRef      string           `json:"result_ref,omitempty"`
	FaceConfidence *float64         `json:"face_confidence,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	At             time.Time        `json:"at"`
}

// ForJob builds the event describing job's current status.
func ForJob(job *domain.Job) Event {
	ev := Event{
		JobID:          job.ID,
		Status:         job.Status,
		ResultRef:      job.ResultRef,
		FaceConfidence: job.FaceConfidence,
		ErrorMessage:   job.ErrorMessage,
		At:             job.UpdatedAt,
	}
	switch job.Status {
	case domain.JobStatusPending:
		ev.Type = JobSubmitted
	case domain.JobStatusProcessing:
		ev.Type = JobProcessing
	case domain.JobStatusCompleted:
		ev.Type = JobCompleted
	case domain.JobStatusFailed:
		ev.Type = JobFailed
	}
	return ev
}

// Publisher delivers events. Publish failures are reported to the caller but
// never change job state.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                          { return nil }
