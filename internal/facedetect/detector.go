// Package facedetect locates upright frontal faces with a sliding-window
// cascade of Haar-like geometric features evaluated on integral images.
package facedetect

import (
	"math"
	"sync"

	"cartoonify/internal/domain"
	"cartoonify/internal/raster"
)

// Confidence is reported for every detection. The cascade produces no
// probability, so this is a fixed pseudo-confidence and not a score.
const Confidence = 0.95

// MinFaceSize is the smallest face side, in pixels, that is reported.
const MinFaceSize = 30

// ErrNoFace is returned by Detect when no candidate survives grouping.
var ErrNoFace = domain.Errorf(domain.ErrNotFound, "facedetect.Detect", "no face detected")

// Options tunes the multi-scale scan. Zero values select the defaults.
type Options struct {
	Cascade      *Cascade
	MinSize      int     // smallest window side (default 30)
	ScaleFactor  float64 // window growth per scale (default 1.25)
	Step         int     // window stride in pixels (default 2)
	MinNeighbors int     // raw hits required per group (default 3)
	GroupEps     float64 // rectangle similarity tolerance (default 0.2)
}

// Detector is safe for concurrent use; it holds no mutable state.
type Detector struct {
	opts Options
}

// New builds a detector, filling unset options with defaults.
func New(opts Options) *Detector {
	if opts.Cascade == nil {
		opts.Cascade = &FrontalFace
	}
	if opts.MinSize < MinFaceSize {
		opts.MinSize = MinFaceSize
	}
	if opts.ScaleFactor <= 1 {
		opts.ScaleFactor = 1.25
	}
	if opts.Step <= 0 {
		opts.Step = 2
	}
	if opts.MinNeighbors <= 0 {
		opts.MinNeighbors = 3
	}
	if opts.GroupEps <= 0 {
		opts.GroupEps = 0.2
	}
	return &Detector{opts: opts}
}

var defaultDetector = sync.OnceValue(func() *Detector { return New(Options{}) })

// Default returns the process-wide shared detector.
func Default() *Detector {
	return defaultDetector()
}

// Detect returns the largest face in img. Equal areas keep the candidate
// encountered first in scan order.
func (d *Detector) Detect(img *raster.Image) (domain.BoundingBox, error) {
	candidates, err := d.DetectAll(img)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	if len(candidates) == 0 {
		return domain.BoundingBox{}, ErrNoFace
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Area() > best.Area() {
			best = c
		}
	}
	return best, nil
}

// DetectAll returns every grouped candidate in first-encountered order.
func (d *Detector) DetectAll(img *raster.Image) ([]domain.BoundingBox, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, domain.Errorf(domain.ErrDecode, "facedetect.Detect", "image has zero area")
	}
	ii := newIntegral(img.Gray(), img.Width, img.Height)
	hits := d.scan(ii)
	return d.group(hits), nil
}

type window struct {
	x, y, size int
}

func (d *Detector) scan(ii *integral) []window {
	var hits []window
	maxSide := min(ii.w, ii.h)
	for size := d.opts.MinSize; size <= maxSide; {
		for y := 0; y+size <= ii.h; y += d.opts.Step {
			for x := 0; x+size <= ii.w; x += d.opts.Step {
				if d.evaluate(ii, x, y, size) {
					hits = append(hits, window{x: x, y: y, size: size})
				}
			}
		}
		next := int(math.Round(float64(size) * d.opts.ScaleFactor))
		if next <= size {
			next = size + 1
		}
		size = next
	}
	return hits
}

func (d *Detector) evaluate(ii *integral, x, y, size int) bool {
	n := float64(size * size)
	mean := float64(ii.sum(x, y, x+size, y+size)) / n
	variance := float64(ii.sqSum(x, y, x+size, y+size))/n - mean*mean
	if variance <= 0 {
		return false
	}
	std := math.Sqrt(variance)
	c := d.opts.Cascade
	if std < c.MinStdDev {
		return false
	}
	for _, stage := range c.Stages {
		for _, f := range stage.Features {
			diff := ii.regionMean(f.Bright, x, y, size) - ii.regionMean(f.Dark, x, y, size)
			if diff/std < f.Threshold {
				return false
			}
		}
	}
	return true
}

// group merges similar hits with a union-find pass and averages each group
// holding at least MinNeighbors members.
func (d *Detector) group(hits []window) []domain.BoundingBox {
	parent := make([]int, len(hits))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range hits {
		for j := i + 1; j < len(hits); j++ {
			if d.similar(hits[i], hits[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					// Keep the earliest hit as root so group order follows scan order.
					if rj < ri {
						ri, rj = rj, ri
					}
					parent[rj] = ri
				}
			}
		}
	}

	type acc struct {
		x, y, size, count int
	}
	order := []int{}
	groups := map[int]*acc{}
	for i, h := range hits {
		root := find(i)
		g, ok := groups[root]
		if !ok {
			g = &acc{}
			groups[root] = g
			order = append(order, root)
		}
		g.x += h.x
		g.y += h.y
		g.size += h.size
		g.count++
	}

	out := make([]domain.BoundingBox, 0, len(order))
	for _, root := range order {
		g := groups[root]
		if g.count < d.opts.MinNeighbors {
			continue
		}
		side := roundDiv(g.size, g.count)
		if side < MinFaceSize {
			continue
		}
		out = append(out, domain.BoundingBox{
			X:          roundDiv(g.x, g.count),
			Y:          roundDiv(g.y, g.count),
			Width:      side,
			Height:     side,
			Confidence: Confidence,
		})
	}
	return out
}

func (d *Detector) similar(a, b window) bool {
	delta := d.opts.GroupEps * float64(min(a.size, b.size))
	return absf(a.x-b.x) <= delta && absf(a.y-b.y) <= delta &&
		absf(a.x+a.size-b.x-b.size) <= delta && absf(a.y+a.size-b.y-b.size) <= delta
}

func absf(v int) float64 {
	if v < 0 {
		v = -v
	}
	return float64(v)
}

func roundDiv(total, n int) int {
	return (2*total + n) / (2 * n)
}
