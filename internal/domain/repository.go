package domain

import (
	"context"
	"time"
)

// JobRepository persists job records. Transition methods are conditional on
// the current status: they fail with ErrInvalidState when the stored job is
// not in the expected source state and with ErrNotFound when it is missing.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	// List returns every job, newest created first.
	List(ctx context.Context) ([]*Job, error)
	// ClaimPending atomically moves a pending job to processing and returns it.
	ClaimPending(ctx context.Context, jobID string, at time.Time) (*Job, error)
	// Complete moves a processing job to completed, setting the result and
	// confidence and clearing any error message.
	Complete(ctx context.Context, jobID, resultRef string, confidence float64, at time.Time) error
	// Fail moves a processing job to failed with message.
	Fail(ctx context.Context, jobID, message string, at time.Time) error
	// FailProcessing fails every job still processing and returns how many
	// were changed. Used at startup for runs lost with the previous process.
	FailProcessing(ctx context.Context, message string, at time.Time) (int, error)
}
