package jobs

import (
	"context"
	"errors"

	"cartoonify/internal/composite"
	"cartoonify/internal/domain"
	"cartoonify/internal/raster"
)

// PlaceholderSize is the side of the canvas used when a job has no
// illustration template.
const PlaceholderSize = 800

// Composer inserts a stylized face crop into a job's illustration. It is
// an explicit operation and is never run by the default pipeline.
type Composer struct {
	o       *Orchestrator
	padding float64
}

// NewComposer shares the orchestrator's repository, store and imaging
// components.
func NewComposer(o *Orchestrator) *Composer {
	return &Composer{o: o, padding: composite.DefaultFacePadding}
}

// Compose detects the face in the job's photo, stylizes the padded crop and
// composites it onto the template (or a placeholder) at placement and scale.
// It returns the JPEG-encoded result without changing the job. A photo
// without a face fails with ErrNoFace; missing artifacts fail with
// domain.ErrNotFound alone.
func (c *Composer) Compose(ctx context.Context, jobID string, placement composite.Placement, scale float64) ([]byte, error) {
	const op = "jobs.Compose"
	job, err := c.o.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	log := c.o.logger.With().Str("job_id", jobID).Str("placement", placement.String()).Float64("scale", scale).Logger()

	photo, err := c.o.load(ctx, job.PhotoRef)
	if err != nil {
		return nil, err
	}
	box, err := c.o.detector.Detect(photo)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Wrap(domain.ErrNotFound, op, ErrNoFace, "%s", domain.NoFaceMessage)
		}
		return nil, err
	}
	face, err := composite.CropFace(photo, box, c.padding)
	if err != nil {
		return nil, err
	}
	cartoon, err := c.o.stylizer.Stylize(face, c.o.params)
	if err != nil {
		return nil, err
	}

	var base *raster.Image
	if job.HasTemplate() {
		base, err = c.o.load(ctx, job.TemplateRef)
	} else {
		base, err = raster.Placeholder(PlaceholderSize, PlaceholderSize)
	}
	if err != nil {
		return nil, err
	}

	out, err := composite.Composite(base, cartoon, placement, scale)
	if err != nil {
		return nil, err
	}
	data, err := raster.JPEGBytes(out, c.o.quality)
	if err != nil {
		return nil, err
	}
	log.Info().Int("bytes", len(data)).Msg("face composed")
	return data, nil
}
