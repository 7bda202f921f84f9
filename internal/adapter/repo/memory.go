package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"cartoonify/internal/domain"
)

// JobRepositoryMemory keeps jobs in process memory. Used by tests and the
// local CLI; state is lost on exit.
type JobRepositoryMemory struct {
	mu   sync.Mutex
	jobs map[string]*memoryJob
	seq  int64
}

type memoryJob struct {
	job *domain.Job
	seq int64
}

// NewJobRepositoryMemory returns an empty repository.
func NewJobRepositoryMemory() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]*memoryJob)}
}

func (r *JobRepositoryMemory) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.Errorf(domain.ErrPersistence, "repo.Create", "job %s already exists", job.ID)
	}
	r.seq++
	r.jobs[job.ID] = &memoryJob{job: job.Clone(), seq: r.seq}
	return nil
}

func (r *JobRepositoryMemory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.NotFoundJob("repo.Get", jobID)
	}
	return m.job.Clone(), nil
}

func (r *JobRepositoryMemory) List(ctx context.Context) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	rows := make([]*memoryJob, 0, len(r.jobs))
	for _, m := range r.jobs {
		rows = append(rows, m)
	}
	r.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]*domain.Job, len(rows))
	for i, m := range rows {
		out[i] = m.job.Clone()
	}
	return out, nil
}

func (r *JobRepositoryMemory) ClaimPending(ctx context.Context, jobID string, at time.Time) (*domain.Job, error) {
	var claimed *domain.Job
	err := r.transition(ctx, "repo.ClaimPending", jobID, domain.JobStatusPending, func(j *domain.Job) {
		j.Status = domain.JobStatusProcessing
		j.UpdatedAt = at
		claimed = j.Clone()
	})
	return claimed, err
}

func (r *JobRepositoryMemory) Complete(ctx context.Context, jobID, resultRef string, confidence float64, at time.Time) error {
	return r.transition(ctx, "repo.Complete", jobID, domain.JobStatusProcessing, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.ResultRef = resultRef
		j.FaceConfidence = &confidence
		j.ErrorMessage = ""
		j.UpdatedAt = at
	})
}

func (r *JobRepositoryMemory) Fail(ctx context.Context, jobID, message string, at time.Time) error {
	return r.transition(ctx, "repo.Fail", jobID, domain.JobStatusProcessing, func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.ErrorMessage = message
		j.UpdatedAt = at
	})
}

func (r *JobRepositoryMemory) FailProcessing(ctx context.Context, message string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.jobs {
		if m.job.Status == domain.JobStatusProcessing {
			m.job.Status = domain.JobStatusFailed
			m.job.ErrorMessage = message
			m.job.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

// transition applies mutate under the lock when the job is in from.
func (r *JobRepositoryMemory) transition(ctx context.Context, op, jobID string, from domain.JobStatus, mutate func(*domain.Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.jobs[jobID]
	if !ok {
		return domain.NotFoundJob(op, jobID)
	}
	if m.job.Status != from {
		return domain.InvalidJobState(op, m.job.Status)
	}
	mutate(m.job)
	return nil
}
