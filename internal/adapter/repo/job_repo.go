package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cartoonify/internal/domain"
	"cartoonify/internal/sqlinline"
)

// PGExecutor is the subset of *pgxpool.Pool the repository uses.
type PGExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PGExecutor = (*pgxpool.Pool)(nil)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool PGExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool PGExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// EnsureSchema creates the jobs table and indexes when missing.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, sqlinline.QEnsureJobSchema); err != nil {
		return domain.Wrap(domain.ErrPersistence, "repo.EnsureSchema", err, "create schema")
	}
	return nil
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.pool.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.PhotoRef,
		job.TemplateRef,
		job.ResultRef,
		string(job.Status),
		job.FaceConfidence,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Errorf(domain.ErrPersistence, "repo.Create", "job %s already exists", job.ID)
		}
		return domain.Wrap(domain.ErrPersistence, "repo.Create", err, "insert job %s", job.ID)
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, sqlinline.QSelectJobByID, jobID)
	job, err := scanPGJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundJob("repo.Get", jobID)
		}
		return nil, domain.Wrap(domain.ErrPersistence, "repo.Get", err, "load job %s", jobID)
	}
	return job, nil
}

// List returns every job, newest first.
func (r *JobRepositoryPG) List(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, sqlinline.QListJobs)
	if err != nil {
		return nil, domain.Wrap(domain.ErrPersistence, "repo.List", err, "query jobs")
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, domain.Wrap(domain.ErrPersistence, "repo.List", err, "scan job")
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrPersistence, "repo.List", err, "iterate jobs")
	}
	return out, nil
}

// ClaimPending moves a pending job to processing in a single statement so
// concurrent triggers cannot both win.
func (r *JobRepositoryPG) ClaimPending(ctx context.Context, jobID string, at time.Time) (*domain.Job, error) {
	job, err := scanPGJob(r.pool.QueryRow(ctx, sqlinline.QClaimPendingJob, jobID, at))
	if err == nil {
		return job, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainMiss(ctx, "repo.ClaimPending", jobID)
	}
	return nil, domain.Wrap(domain.ErrPersistence, "repo.ClaimPending", err, "claim job %s", jobID)
}

// Complete records a successful run.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, resultRef string, confidence float64, at time.Time) error {
	return r.conditional(ctx, "repo.Complete", jobID, sqlinline.QCompleteJob, jobID, resultRef, confidence, at)
}

// Fail records a failed run.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, message string, at time.Time) error {
	return r.conditional(ctx, "repo.Fail", jobID, sqlinline.QFailJob, jobID, message, at)
}

// FailProcessing fails every job left processing.
func (r *JobRepositoryPG) FailProcessing(ctx context.Context, message string, at time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, sqlinline.QFailProcessingJobs, message, at)
	if err != nil {
		return 0, domain.Wrap(domain.ErrPersistence, "repo.FailProcessing", err, "update jobs")
	}
	return int(tag.RowsAffected()), nil
}

func (r *JobRepositoryPG) conditional(ctx context.Context, op, jobID, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return domain.Wrap(domain.ErrPersistence, op, err, "update job %s", jobID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainMiss(ctx, op, jobID)
}

// explainMiss turns a guarded update that matched nothing into NotFound or
// InvalidState.
func (r *JobRepositoryPG) explainMiss(ctx context.Context, op, jobID string) error {
	var status string
	err := r.pool.QueryRow(ctx, sqlinline.QSelectJobStatus, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFoundJob(op, jobID)
		}
		return domain.Wrap(domain.ErrPersistence, op, err, "load job %s", jobID)
	}
	return domain.InvalidJobState(op, domain.JobStatus(status))
}

func scanPGJob(row pgx.Row) (*domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	if err := row.Scan(
		&job.ID,
		&job.PhotoRef,
		&job.TemplateRef,
		&job.ResultRef,
		&status,
		&job.FaceConfidence,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	st, err := domain.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = st
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}
