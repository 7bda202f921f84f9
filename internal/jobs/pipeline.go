package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"cartoonify/internal/domain"
	"cartoonify/internal/infra"
	"cartoonify/internal/metrics"
	"cartoonify/internal/raster"
)

// Pipeline stage names used in logs and metrics.
const (
	StageDecode  = "decode"
	StageDetect  = "detect"
	StageStylize = "stylize"
	StageEncode  = "encode"
	StagePersist = "persist"
)

// ErrNoFace marks a photo in which the detector found no face. Failed jobs
// record domain.NoFaceMessage for it.
var ErrNoFace = errors.New("no face detected")

// ResultKey is the storage key of a job's result image.
func ResultKey(jobID string) string {
	return "results/result_" + jobID + ".jpg"
}

// run is the worker entry point. It never returns an error and never panics:
// every failure ends as a failed transition.
func (o *Orchestrator) run(job *domain.Job) {
	ctx := context.Background()
	start := time.Now()
	log := o.logger.With().Str("job_id", job.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline panicked")
			o.fail(ctx, job, fmt.Sprintf("internal error: %v", r), nil)
		}
		o.metrics.ObserveJobDuration(time.Since(start))
	}()

	resultRef, box, err := o.execute(ctx, job, log)
	if err != nil {
		if errors.Is(err, ErrNoFace) {
			o.fail(ctx, job, domain.NoFaceMessage, err)
			return
		}
		o.fail(ctx, job, err.Error(), err)
		return
	}

	at := o.now()
	if err := o.repo.Complete(ctx, job.ID, resultRef, box.Confidence, at); err != nil {
		log.Error().Err(err).Msg("record completion failed")
		o.fail(ctx, job, err.Error(), err)
		return
	}
	o.metrics.IncJobOutcome(metrics.OutcomeCompleted)
	log.Info().
		Str("status", string(domain.JobStatusCompleted)).
		Str("result_ref", resultRef).
		Float64("face_confidence", box.Confidence).
		Dur("duration", time.Since(start)).
		Msg("job completed")

	done := job.Clone()
	done.Status = domain.JobStatusCompleted
	done.ResultRef = resultRef
	done.FaceConfidence = &box.Confidence
	done.ErrorMessage = ""
	done.UpdatedAt = at
	o.publish(ctx, done)
}

// execute runs decode, detect, stylize, encode and persist in order.
func (o *Orchestrator) execute(ctx context.Context, job *domain.Job, log infra.Logger) (string, domain.BoundingBox, error) {
	var (
		photo *raster.Image
		box   domain.BoundingBox
		out   *raster.Image
		data  []byte
		ref   string
	)
	err := o.stage(log, StageDecode, func() (err error) {
		photo, err = o.load(ctx, job.PhotoRef)
		return err
	})
	if err != nil {
		return "", box, err
	}
	err = o.stage(log, StageDetect, func() (err error) {
		box, err = o.detector.Detect(photo)
		if errors.Is(err, domain.ErrNotFound) {
			return ErrNoFace
		}
		return err
	})
	if err != nil {
		return "", box, err
	}
	err = o.stage(log, StageStylize, func() (err error) {
		out, err = o.stylizer.Stylize(photo, o.params)
		return err
	})
	if err != nil {
		return "", box, err
	}
	err = o.stage(log, StageEncode, func() (err error) {
		data, err = raster.JPEGBytes(out, o.quality)
		return err
	})
	if err != nil {
		return "", box, err
	}
	err = o.stage(log, StagePersist, func() (err error) {
		ref, err = o.store.Write(ctx, ResultKey(job.ID), data)
		return persistenceError("jobs.persist", err, "store result")
	})
	return ref, box, err
}

func (o *Orchestrator) stage(log infra.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	o.metrics.ObserveStageDuration(name, d)
	log.Debug().Str("stage", name).Dur("duration", d).Err(err).Msg("pipeline stage")
	return err
}

// load decodes the artifact at ref. The reader is closed on every path.
func (o *Orchestrator) load(ctx context.Context, ref string) (*raster.Image, error) {
	rc, err := o.store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return raster.DecodeReader(rc)
}

// fail records a failed transition. cause is only logged.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, message string, cause error) {
	at := o.now()
	log := o.logger.With().Str("job_id", job.ID).Logger()
	if err := o.repo.Fail(ctx, job.ID, message, at); err != nil {
		log.Error().Err(err).Str("message", message).Msg("record failure failed")
		return
	}
	outcome := metrics.OutcomeFailed
	if errors.Is(cause, ErrNoFace) {
		outcome = metrics.OutcomeNoFace
	}
	o.metrics.IncJobOutcome(outcome)
	log.Warn().Err(cause).Str("status", string(domain.JobStatusFailed)).Str("error_message", message).Msg("job failed")

	failed := job.Clone()
	failed.Status = domain.JobStatusFailed
	failed.ErrorMessage = message
	failed.UpdatedAt = at
	o.publish(ctx, failed)
}
