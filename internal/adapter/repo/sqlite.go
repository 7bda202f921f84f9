package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"cartoonify/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	photo_ref TEXT NOT NULL,
	template_ref TEXT NOT NULL DEFAULT '',
	result_ref TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
	face_confidence REAL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

const sqliteColumns = `id, photo_ref, template_ref, result_ref, status, face_confidence, error_message, created_at, updated_at`

// JobRepositorySQLite implements domain.JobRepository on an embedded SQLite
// database. Timestamps are stored as Unix nanoseconds.
type JobRepositorySQLite struct {
	db *sql.DB
}

// NewJobRepositorySQLite opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
func NewJobRepositorySQLite(path string) (*JobRepositorySQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &JobRepositorySQLite{db: db}, nil
}

// Close releases the database handle.
func (r *JobRepositorySQLite) Close() error {
	return r.db.Close()
}

func (r *JobRepositorySQLite) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (`+sqliteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.PhotoRef, job.TemplateRef, job.ResultRef, string(job.Status),
		job.FaceConfidence, job.ErrorMessage, job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return domain.Wrap(domain.ErrPersistence, "repo.Create", err, "insert job %s", job.ID)
	}
	return nil
}

func (r *JobRepositorySQLite) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM jobs WHERE id = ?`, jobID)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundJob("repo.Get", jobID)
		}
		return nil, domain.Wrap(domain.ErrPersistence, "repo.Get", err, "load job %s", jobID)
	}
	return job, nil
}

func (r *JobRepositorySQLite) List(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM jobs ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, domain.Wrap(domain.ErrPersistence, "repo.List", err, "query jobs")
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
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

func (r *JobRepositorySQLite) ClaimPending(ctx context.Context, jobID string, at time.Time) (*domain.Job, error) {
	const op = "repo.ClaimPending"
	if err := r.conditional(ctx, op, jobID,
		`UPDATE jobs SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`,
		at.UnixNano(), jobID,
	); err != nil {
		return nil, err
	}
	return r.Get(ctx, jobID)
}

func (r *JobRepositorySQLite) Complete(ctx context.Context, jobID, resultRef string, confidence float64, at time.Time) error {
	return r.conditional(ctx, "repo.Complete", jobID,
		`UPDATE jobs SET status = 'completed', result_ref = ?, face_confidence = ?, error_message = '', updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		resultRef, confidence, at.UnixNano(), jobID,
	)
}

func (r *JobRepositorySQLite) Fail(ctx context.Context, jobID, message string, at time.Time) error {
	return r.conditional(ctx, "repo.Fail", jobID,
		`UPDATE jobs SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ? AND status = 'processing'`,
		message, at.UnixNano(), jobID,
	)
}

func (r *JobRepositorySQLite) FailProcessing(ctx context.Context, message string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', error_message = ?, updated_at = ? WHERE status = 'processing'`,
		message, at.UnixNano(),
	)
	if err != nil {
		return 0, domain.Wrap(domain.ErrPersistence, "repo.FailProcessing", err, "update jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Wrap(domain.ErrPersistence, "repo.FailProcessing", err, "count updated jobs")
	}
	return int(n), nil
}

// conditional runs a status-guarded update. When no row changed it reports
// whether the job is missing or in another state.
func (r *JobRepositorySQLite) conditional(ctx context.Context, op, jobID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Wrap(domain.ErrPersistence, op, err, "update job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Wrap(domain.ErrPersistence, op, err, "count updated rows")
	}
	if n == 1 {
		return nil
	}
	current, err := r.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundJob(op, jobID)
		}
		return err
	}
	return domain.InvalidJobState(op, current.Status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*domain.Job, error) {
	var (
		job        domain.Job
		status     string
		confidence sql.NullFloat64
		created    int64
		updated    int64
	)
	if err := row.Scan(&job.ID, &job.PhotoRef, &job.TemplateRef, &job.ResultRef, &status,
		&confidence, &job.ErrorMessage, &created, &updated); err != nil {
		return nil, err
	}
	st, err := domain.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = st
	if confidence.Valid {
		v := confidence.Float64
		job.FaceConfidence = &v
	}
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, updated).UTC()
	return &job, nil
}
