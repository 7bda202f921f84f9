package jobs

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartoonify/internal/adapter/repo"
	"cartoonify/internal/composite"
	"cartoonify/internal/domain"
	"cartoonify/internal/events"
	"cartoonify/internal/facedetect"
	"cartoonify/internal/raster"
	"cartoonify/internal/storage"
	"cartoonify/internal/stylize"
	"cartoonify/internal/testutil"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	repo  *repo.JobRepositoryMemory
	store *storage.FileStore
	orch  *Orchestrator
}

func newFixture(t *testing.T, detector Detector, stylizer Stylizer, opts Options) *fixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	r := repo.NewJobRepositoryMemory()
	if opts.Now == nil {
		opts.Now = (&clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}).Now
	}
	if detector == nil {
		detector = facedetect.Default()
	}
	if stylizer == nil {
		stylizer = stylize.Default()
	}
	o := New(r, store, detector, stylizer, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_ = o.Close(ctx)
	})
	return &fixture{repo: r, store: store, orch: o}
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) *domain.Job {
	t.Helper()
	ctx := context.Background()
	require.Eventually(t, func() bool {
		j, err := o.Get(ctx, id)
		return err == nil && j.Status.Terminal()
	}, 2*time.Minute, 10*time.Millisecond)
	job, err := o.Get(ctx, id)
	require.NoError(t, err)
	return job
}

func grayPhoto(t *testing.T, size int) []byte {
	t.Helper()
	return testutil.PNG(t, testutil.Canvas(t, size, size, [3]uint8{128, 128, 128}))
}

func facePhoto(t *testing.T, size, face int) []byte {
	t.Helper()
	img, _ := testutil.FacePhoto(t, size, size, face)
	return testutil.PNG(t, img)
}

// fakeDetector reports a fixed face and counts calls. When gate is set every
// call waits for it to close.
type fakeDetector struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (d *fakeDetector) Detect(img *raster.Image) (domain.BoundingBox, error) {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return domain.BoundingBox{}, d.err
	}
	return domain.BoundingBox{X: 0, Y: 0, Width: img.Width, Height: img.Height, Confidence: facedetect.Confidence}, nil
}

type stylizerFunc func(*raster.Image, stylize.Parameters) (*raster.Image, error)

func (f stylizerFunc) Stylize(img *raster.Image, p stylize.Parameters) (*raster.Image, error) {
	return f(img, p)
}

var identity = stylizerFunc(func(img *raster.Image, _ stylize.Parameters) (*raster.Image, error) {
	return img.Clone(), nil
})

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types(jobID string) []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, ev := range p.events {
		if ev.JobID == jobID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func TestFaceJobCompletes(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()

	job, err := f.orch.Submit(ctx, Upload{Photo: facePhoto(t, 512, 160)})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.True(t, strings.HasPrefix(job.PhotoRef, "uploads/"+job.ID))

	triggered, err := f.orch.Trigger(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, triggered.Status)

	got, err := f.orch.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.JobStatusPending, got.Status)

	done := waitTerminal(t, f.orch, job.ID)
	require.Equal(t, domain.JobStatusCompleted, done.Status, done.ErrorMessage)
	require.NotNil(t, done.FaceConfidence)
	assert.Equal(t, 0.95, *done.FaceConfidence)
	assert.Equal(t, ResultKey(job.ID), done.ResultRef)
	assert.Empty(t, done.ErrorMessage)

	data, err := f.store.Read(ctx, done.ResultRef)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 512, cfg.Width)
	assert.Equal(t, 512, cfg.Height)
}

func TestJobWithoutFaceFails(t *testing.T) {
	var stylized atomic.Bool
	spy := stylizerFunc(func(img *raster.Image, p stylize.Parameters) (*raster.Image, error) {
		stylized.Store(true)
		return img, nil
	})
	f := newFixture(t, nil, spy, Options{})
	ctx := context.Background()

	job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 512)})
	require.NoError(t, err)
	_, err = f.orch.Trigger(ctx, job.ID)
	require.NoError(t, err)

	done := waitTerminal(t, f.orch, job.ID)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Equal(t, "No face detected in the photo. Please upload a clear photo with a visible face.", done.ErrorMessage)
	assert.Empty(t, done.ResultRef)
	assert.Nil(t, done.FaceConfidence)
	assert.False(t, stylized.Load(), "stylization must not run without a face")
}

func TestConcurrentTriggersScheduleOnce(t *testing.T) {
	det := &fakeDetector{gate: make(chan struct{})}
	f := newFixture(t, det, identity, Options{})
	ctx := context.Background()

	job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		invalid   atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Trigger(ctx, job.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInvalidState):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, 7, invalid.Load())

	close(det.gate)
	done := waitTerminal(t, f.orch, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status, done.ErrorMessage)
	assert.EqualValues(t, 1, det.calls.Load())
}

func TestTriggerRejectsMissingAndTerminalJobs(t *testing.T) {
	f := newFixture(t, &fakeDetector{}, identity, Options{})
	ctx := context.Background()

	_, err := f.orch.Trigger(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
	require.NoError(t, err)
	_, err = f.orch.Trigger(ctx, job.ID)
	require.NoError(t, err)
	waitTerminal(t, f.orch, job.ID)

	_, err = f.orch.Trigger(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.ErrorContains(t, err, "job is already completed")

	_, err = f.orch.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListIsNewestFirstRegardlessOfCompletion(t *testing.T) {
	f := newFixture(t, &fakeDetector{}, identity, Options{Workers: 1})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		_, err := f.orch.Trigger(ctx, ids[i])
		require.NoError(t, err)
		waitTerminal(t, f.orch, ids[i])
	}

	list, err := f.orch.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestPipelineErrorsBecomeFailedJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("stylize error text is kept verbatim", func(t *testing.T) {
		stErr := domain.Errorf(domain.ErrProcessing, "stylize.Run", "image is empty")
		failing := stylizerFunc(func(*raster.Image, stylize.Parameters) (*raster.Image, error) { return nil, stErr })
		f := newFixture(t, &fakeDetector{}, failing, Options{})
		job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
		require.NoError(t, err)
		_, err = f.orch.Trigger(ctx, job.ID)
		require.NoError(t, err)
		done := waitTerminal(t, f.orch, job.ID)
		assert.Equal(t, domain.JobStatusFailed, done.Status)
		assert.Equal(t, stErr.Error(), done.ErrorMessage)
	})

	t.Run("panic", func(t *testing.T) {
		boom := stylizerFunc(func(*raster.Image, stylize.Parameters) (*raster.Image, error) { panic("boom") })
		f := newFixture(t, &fakeDetector{}, boom, Options{})
		job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
		require.NoError(t, err)
		_, err = f.orch.Trigger(ctx, job.ID)
		require.NoError(t, err)
		done := waitTerminal(t, f.orch, job.ID)
		assert.Equal(t, domain.JobStatusFailed, done.Status)
		assert.Equal(t, "internal error: boom", done.ErrorMessage)
	})

	t.Run("undecodable photo", func(t *testing.T) {
		det := &fakeDetector{}
		f := newFixture(t, det, identity, Options{})
		job, err := f.orch.Submit(ctx, Upload{Photo: []byte("definitely not an image")})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(job.PhotoRef, ".bin"))
		_, err = f.orch.Trigger(ctx, job.ID)
		require.NoError(t, err)
		done := waitTerminal(t, f.orch, job.ID)
		assert.Equal(t, domain.JobStatusFailed, done.Status)
		assert.Contains(t, done.ErrorMessage, "could not read image")
		assert.Zero(t, det.calls.Load())
	})

	t.Run("detector error other than no face", func(t *testing.T) {
		det := &fakeDetector{err: domain.Errorf(domain.ErrDecode, "facedetect.Detect", "image is empty")}
		f := newFixture(t, det, identity, Options{})
		job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
		require.NoError(t, err)
		_, err = f.orch.Trigger(ctx, job.ID)
		require.NoError(t, err)
		done := waitTerminal(t, f.orch, job.ID)
		assert.Equal(t, "facedetect.Detect: image is empty", done.ErrorMessage)
	})
}

type failingResults struct {
	BlobStore
}

func (s failingResults) Write(ctx context.Context, key string, data []byte) (string, error) {
	if strings.HasPrefix(key, "results/") {
		return "", errors.New("disk full")
	}
	return s.BlobStore.Write(ctx, key, data)
}

func TestPersistFailureFailsJob(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	r := repo.NewJobRepositoryMemory()
	o := New(r, failingResults{store}, &fakeDetector{}, identity, Options{})
	defer o.Close(context.Background())
	ctx := context.Background()

	job, err := o.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
	require.NoError(t, err)
	_, err = o.Trigger(ctx, job.ID)
	require.NoError(t, err)
	done := waitTerminal(t, o, job.ID)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "disk full")
	assert.Empty(t, done.ResultRef)
}

func TestTriggerGivesUpWhenQueueStaysFull(t *testing.T) {
	det := &fakeDetector{gate: make(chan struct{})}
	f := newFixture(t, det, identity, Options{Workers: 1, QueueSize: 0})
	ctx := context.Background()

	first, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
	require.NoError(t, err)
	second, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
	require.NoError(t, err)

	_, err = f.orch.Trigger(ctx, first.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return det.calls.Load() == 1 }, 5*time.Second, time.Millisecond)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = f.orch.Trigger(short, second.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrProcessing)

	got, err := f.orch.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "could not schedule job")

	close(det.gate)
	assert.Equal(t, domain.JobStatusCompleted, waitTerminal(t, f.orch, first.ID).Status)
}

func TestCloseRejectsNewTriggers(t *testing.T) {
	f := newFixture(t, &fakeDetector{}, identity, Options{})
	ctx := context.Background()
	job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
	require.NoError(t, err)

	require.NoError(t, f.orch.Close(ctx))
	_, err = f.orch.Trigger(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrProcessing)

	got, err := f.orch.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
}

func TestRecoverFailsOrphanedJobs(t *testing.T) {
	f := newFixture(t, &fakeDetector{}, identity, Options{})
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.repo.Create(ctx, &domain.Job{ID: "orphan", PhotoRef: "uploads/x.png", Status: domain.JobStatusPending, CreatedAt: now, UpdatedAt: now}))
	_, err := f.repo.ClaimPending(ctx, "orphan", now)
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(ctx, &domain.Job{ID: "waiting", PhotoRef: "uploads/y.png", Status: domain.JobStatusPending, CreatedAt: now, UpdatedAt: now}))

	n, err := f.orch.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	orphan, err := f.orch.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, orphan.Status)
	assert.Equal(t, RestartMessage, orphan.ErrorMessage)

	waiting, err := f.orch.Get(ctx, "waiting")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, waiting.Status)
}

func TestLifecycleEventsArePublished(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, &fakeDetector{}, identity, Options{Events: pub})
	ctx := context.Background()

	job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16)})
	require.NoError(t, err)
	_, err = f.orch.Trigger(ctx, job.ID)
	require.NoError(t, err)
	waitTerminal(t, f.orch, job.ID)

	require.Eventually(t, func() bool { return len(pub.types(job.ID)) == 3 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []events.Type{events.JobSubmitted, events.JobProcessing, events.JobCompleted}, pub.types(job.ID))
}

func TestSubmitStoresTemplateAndRefs(t *testing.T) {
	f := newFixture(t, &fakeDetector{}, identity, Options{})
	ctx := context.Background()

	job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 16), Template: grayPhoto(t, 8)})
	require.NoError(t, err)
	assert.Equal(t, "illustrations/"+job.ID+".png", job.TemplateRef)
	assert.True(t, f.store.Exists(job.TemplateRef))

	_, err = f.orch.Submit(ctx, Upload{})
	assert.ErrorIs(t, err, domain.ErrDecode)

	ref, err := f.orch.SubmitRefs(ctx, job.PhotoRef, "")
	require.NoError(t, err)
	assert.Equal(t, job.PhotoRef, ref.PhotoRef)
	assert.False(t, ref.HasTemplate())

	_, err = f.orch.SubmitRefs(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestComposerPlacesFaceOnTemplate(t *testing.T) {
	p := stylize.DefaultParameters()
	p.SmoothingPasses = 2
	f := newFixture(t, nil, nil, Options{Params: p})
	ctx := context.Background()

	template := testutil.Canvas(t, 400, 300, [3]uint8{200, 220, 240})
	job, err := f.orch.Submit(ctx, Upload{Photo: facePhoto(t, 320, 160), Template: testutil.PNG(t, template)})
	require.NoError(t, err)

	c := NewComposer(f.orch)
	data, err := c.Compose(ctx, job.ID, composite.Center, 0.5)
	require.NoError(t, err)
	img, err := raster.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Width)
	assert.Equal(t, 300, img.Height)

	plain, err := f.orch.Submit(ctx, Upload{Photo: facePhoto(t, 320, 160)})
	require.NoError(t, err)
	data, err = c.Compose(ctx, plain.ID, composite.Top, 1.0)
	require.NoError(t, err)
	img, err = raster.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderSize, img.Width)
	assert.Equal(t, PlaceholderSize, img.Height)

	unchanged, err := f.orch.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, unchanged.Status)
}

func TestComposerErrors(t *testing.T) {
	f := newFixture(t, nil, identity, Options{})
	ctx := context.Background()
	c := NewComposer(f.orch)

	_, err := c.Compose(ctx, "missing", composite.Center, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, ErrNoFace)

	job, err := f.orch.Submit(ctx, Upload{Photo: grayPhoto(t, 64)})
	require.NoError(t, err)
	_, err = c.Compose(ctx, job.ID, composite.Center, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, err, ErrNoFace)
	assert.ErrorContains(t, err, domain.NoFaceMessage)

	lost, err := f.orch.Submit(ctx, Upload{Photo: facePhoto(t, 320, 90)})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(f.store.BasePath(), lost.PhotoRef)))
	_, err = c.Compose(ctx, lost.ID, composite.Center, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, ErrNoFace)

	face, err := f.orch.Submit(ctx, Upload{Photo: facePhoto(t, 320, 90)})
	require.NoError(t, err)
	_, err = c.Compose(ctx, face.ID, composite.Center, 0)
	assert.ErrorIs(t, err, domain.ErrProcessing)
}

func TestPersistenceErrorKeepsMessageVerbatim(t *testing.T) {
	err := persistenceError("jobs.test", errors.New("disk"), "volume 100% full")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, "jobs.test: volume 100% full: disk", err.Error())

	tagged := domain.Errorf(domain.ErrNotFound, "storage.Open", "gone")
	assert.Same(t, tagged, persistenceError("jobs.test", tagged, "ignored"))
}

func TestExtensionFor(t *testing.T) {
	png := grayPhoto(t, 2)
	jpg, err := raster.JPEGBytes(testutil.Canvas(t, 2, 2, [3]uint8{1, 2, 3}), 90)
	require.NoError(t, err)
	assert.Equal(t, ".png", extensionFor(png))
	assert.Equal(t, ".jpg", extensionFor(jpg))
	assert.Equal(t, ".bin", extensionFor([]byte("hello")))
}
