// Package stylize turns a photo into a flat-shaded, ink-outlined cartoon.
//
// The filter runs five stages in order, each consuming the previous stage's
// output: repeated bilateral smoothing, an edge mask from a median-blurred
// adaptive threshold, k-means colour quantization, masking the quantized
// colours with the edges, and a final sharpening pass.
//
// K-means starts from random centres, so two runs only produce identical
// pixels when Parameters.Seed is fixed.
package stylize

import (
	"math/rand/v2"
	"sync"

	"github.com/disintegration/imaging"

	"cartoonify/internal/domain"
	"cartoonify/internal/raster"
)

// Stages keeps every intermediate of one run.
type Stages struct {
	Smoothed  *raster.Image // 3 channels
	Edges     *raster.Image // 1 channel, 0 marks an edge
	Quantized *raster.Image // 3 channels
	Inked     *raster.Image // 3 channels
	Final     *raster.Image // same channel count as the input
}

// Stylizer is stateless and safe to share between goroutines.
type Stylizer struct{}

// New returns a Stylizer.
func New() *Stylizer {
	return &Stylizer{}
}

var defaultStylizer = sync.OnceValue(New)

// Default returns the process-wide shared stylizer.
func Default() *Stylizer {
	return defaultStylizer()
}

// Stylize returns the cartoon rendering of img with the same size and
// channel count.
func (s *Stylizer) Stylize(img *raster.Image, p Parameters) (*raster.Image, error) {
	stages, err := s.Run(img, p)
	if err != nil {
		return nil, err
	}
	return stages.Final, nil
}

// Run executes the pipeline and returns all intermediates.
func (s *Stylizer) Run(img *raster.Image, p Parameters) (*Stages, error) {
	const op = "stylize.Run"
	if img == nil || img.Empty() {
		return nil, domain.Errorf(domain.ErrProcessing, op, "image is empty")
	}
	if err := img.Validate(); err != nil {
		return nil, domain.Wrap(domain.ErrProcessing, op, err, "invalid image")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if n := img.Width * img.Height; n < p.ColorLevels {
		return nil, domain.Errorf(domain.ErrProcessing, op, "image of %dx%d is too small for %d color levels", img.Width, img.Height, p.ColorLevels)
	}

	rgb, err := img.RGB()
	if err != nil {
		return nil, err
	}

	st := &Stages{}
	sigmaColor, sigmaSpace := p.sigmas()
	smoothed := rgb
	for i := 0; i < p.SmoothingPasses; i++ {
		smoothed = bilateral(smoothed, p.SmoothingDiameter, sigmaColor, sigmaSpace)
	}
	st.Smoothed = smoothed

	gray := medianBlur(smoothed.Gray(), img.Width, img.Height, p.EdgeBlockSize)
	st.Edges = &raster.Image{
		Width:    img.Width,
		Height:   img.Height,
		Channels: 1,
		Pix:      adaptiveThreshold(gray, img.Width, img.Height, p.EdgeBlockSize, p.EdgeConstant),
	}

	st.Quantized, err = Quantize(smoothed, p, newRand(p.Seed))
	if err != nil {
		return nil, err
	}

	st.Inked = ink(st.Quantized, st.Edges)

	enhanced := st.Inked
	if p.DetailSigma > 0 {
		sharp := imaging.Sharpen(st.Inked.ToNRGBA(), p.DetailSigma)
		if enhanced, err = raster.FromNRGBA(sharp, 3); err != nil {
			return nil, err
		}
	}

	st.Final, err = restoreChannels(enhanced, img)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ink ANDs every colour channel with the edge mask broadcast to 3 channels.
func ink(color, mask *raster.Image) *raster.Image {
	out := &raster.Image{Width: color.Width, Height: color.Height, Channels: 3, Pix: make([]uint8, len(color.Pix))}
	for i, m := range mask.Pix {
		o := i * 3
		out.Pix[o] = color.Pix[o] & m
		out.Pix[o+1] = color.Pix[o+1] & m
		out.Pix[o+2] = color.Pix[o+2] & m
	}
	return out
}

// restoreChannels converts the 3-channel result back to the input layout,
// carrying the original alpha plane through unchanged.
func restoreChannels(rgb, orig *raster.Image) (*raster.Image, error) {
	switch orig.Channels {
	case 3:
		return rgb, nil
	case 1:
		return rgb.WithChannels(1)
	}
	out, err := rgb.WithChannels(4)
	if err != nil {
		return nil, err
	}
	for i := 0; i < orig.Width*orig.Height; i++ {
		out.Pix[i*4+3] = orig.Pix[i*4+3]
	}
	return out, nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
