// Package jobs owns the job lifecycle: it records submissions, moves jobs
// from pending to processing on trigger and runs the detect and stylize
// pipeline on a bounded worker pool.
package jobs

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cartoonify/internal/domain"
	"cartoonify/internal/events"
	"cartoonify/internal/infra"
	"cartoonify/internal/metrics"
	"cartoonify/internal/raster"
	"cartoonify/internal/stylize"
)

// Detector finds the most prominent face in a photo.
type Detector interface {
	Detect(img *raster.Image) (domain.BoundingBox, error)
}

// Stylizer renders the cartoon version of a photo.
type Stylizer interface {
	Stylize(img *raster.Image, p stylize.Parameters) (*raster.Image, error)
}

// BlobStore resolves opaque artifact references.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RestartMessage is recorded on jobs that were processing when the service
// stopped.
const RestartMessage = "Processing was interrupted by a service restart. Please submit the photo again."

// Options tunes an Orchestrator. Zero values select defaults.
type Options struct {
	Workers     int
	QueueSize   int
	JPEGQuality int
	Params      stylize.Parameters
	Metrics     metrics.Recorder
	Events      events.Publisher
	Logger      *infra.Logger
	Now         func() time.Time
	NewID       func() string
}

// Orchestrator drives jobs through their lifecycle. It is safe for
// concurrent use.
type Orchestrator struct {
	repo     domain.JobRepository
	store    BlobStore
	detector Detector
	stylizer Stylizer
	params   stylize.Parameters
	quality  int
	metrics  metrics.Recorder
	events   events.Publisher
	logger   infra.Logger
	now      func() time.Time
	newID    func() string
	pool     *pool
}

// New starts the worker pool. Call Close to drain it.
func New(repo domain.JobRepository, store BlobStore, detector Detector, stylizer Stylizer, opts Options) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		store:    store,
		detector: detector,
		stylizer: stylizer,
		params:   opts.Params,
		quality:  opts.JPEGQuality,
		metrics:  opts.Metrics,
		events:   opts.Events,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if o.params == (stylize.Parameters{}) {
		o.params = stylize.DefaultParameters()
	}
	if o.quality <= 0 || o.quality > 100 {
		o.quality = raster.DefaultJPEGQuality
	}
	if o.metrics == nil {
		o.metrics = metrics.NoopRecorder{}
	}
	if o.events == nil {
		o.events = events.Noop{}
	}
	if opts.Logger != nil {
		o.logger = opts.Logger.With().Str("component", "jobs").Logger()
	} else {
		o.logger = zerolog.Nop()
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	o.pool = newPool(workers, opts.QueueSize, o.metrics.SetInFlight)
	return o
}

// Upload carries the raw bytes of a submission. Size and type validation
// happen before Submit is called.
type Upload struct {
	Photo    []byte
	Template []byte
}

// Submit stores the uploaded artifacts and creates a pending job.
func (o *Orchestrator) Submit(ctx context.Context, up Upload) (*domain.Job, error) {
	const op = "jobs.Submit"
	if len(up.Photo) == 0 {
		return nil, domain.Errorf(domain.ErrDecode, op, "photo is empty")
	}
	id := o.newID()
	photoRef, err := o.store.Write(ctx, "uploads/"+id+extensionFor(up.Photo), up.Photo)
	if err != nil {
		return nil, persistenceError(op, err, "store photo")
	}
	var templateRef string
	if len(up.Template) > 0 {
		templateRef, err = o.store.Write(ctx, "illustrations/"+id+extensionFor(up.Template), up.Template)
		if err != nil {
			return nil, persistenceError(op, err, "store illustration")
		}
	}
	return o.create(ctx, id, photoRef, templateRef)
}

// SubmitRefs creates a pending job for artifacts that are already stored.
func (o *Orchestrator) SubmitRefs(ctx context.Context, photoRef, templateRef string) (*domain.Job, error) {
	if photoRef == "" {
		return nil, domain.Errorf(domain.ErrDecode, "jobs.SubmitRefs", "photo reference is empty")
	}
	return o.create(ctx, o.newID(), photoRef, templateRef)
}

func (o *Orchestrator) create(ctx context.Context, id, photoRef, templateRef string) (*domain.Job, error) {
	now := o.now()
	job := &domain.Job{
		ID:          id,
		PhotoRef:    photoRef,
		TemplateRef: templateRef,
		Status:      domain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.repo.Create(ctx, job); err != nil {
		return nil, persistenceError("jobs.Submit", err, "create job")
	}
	o.metrics.IncJobsSubmitted()
	o.logger.Info().Str("job_id", id).Bool("template", templateRef != "").Msg("job submitted")
	o.publish(ctx, job)
	return job.Clone(), nil
}

// Trigger moves a pending job to processing and queues its pipeline. The
// returned snapshot is never pending. A missing job fails with ErrNotFound;
// a job in any other state fails with ErrInvalidState.
//
// Trigger waits for room on the worker queue. If ctx ends first the job is
// failed with the context error and that error is returned.
func (o *Orchestrator) Trigger(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.repo.ClaimPending(ctx, jobID, o.now())
	if err != nil {
		return nil, err
	}
	o.logger.Info().Str("job_id", jobID).Msg("job processing")
	o.publish(ctx, job)

	snapshot := job.Clone()
	if err := o.pool.submit(ctx, func() { o.run(job) }); err != nil {
		msg := "could not schedule job: " + err.Error()
		o.fail(context.WithoutCancel(ctx), job, msg, err)
		return nil, domain.Wrap(domain.ErrProcessing, "jobs.Trigger", err, "could not schedule job")
	}
	return snapshot, nil
}

// Get returns a snapshot of the job.
func (o *Orchestrator) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return o.repo.Get(ctx, jobID)
}

// List returns all jobs, newest created first.
func (o *Orchestrator) List(ctx context.Context) ([]*domain.Job, error) {
	return o.repo.List(ctx)
}

// Recover fails jobs left processing by a previous process. Call it once at
// startup before serving triggers.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	n, err := o.repo.FailProcessing(ctx, RestartMessage, o.now())
	if err != nil {
		return 0, persistenceError("jobs.Recover", err, "fail orphaned jobs")
	}
	if n > 0 {
		o.logger.Warn().Int("count", n).Msg("failed jobs orphaned by restart")
	}
	return n, nil
}

// Close stops accepting triggers and waits for queued pipelines to finish.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.pool.close(ctx)
}

func (o *Orchestrator) publish(ctx context.Context, job *domain.Job) {
	ev := events.ForJob(job)
	if err := o.events.Publish(ctx, ev); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Str("event", string(ev.Type)).Msg("publish job event failed")
	}
}

// persistenceError tags untagged repository and store errors.
func persistenceError(op string, err error, msg string) error {
	if domain.KindOf(err) != nil {
		return err
	}
	return domain.Wrap(domain.ErrPersistence, op, err, "%s", msg)
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
