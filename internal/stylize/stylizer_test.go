package stylize

import (
	"image"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartoonify/internal/domain"
	"cartoonify/internal/raster"
	"cartoonify/internal/testutil"
)

func gradient(t *testing.T, w, h int) *raster.Image {
	t.Helper()
	img, err := raster.New(w, h, 3)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := img.Offset(x, y)
			img.Pix[o] = uint8(x * 255 / w)
			img.Pix[o+1] = uint8(y * 255 / h)
			img.Pix[o+2] = uint8((x + y) * 127 / (w + h))
		}
	}
	return img
}

func distinctColors(img *raster.Image) int {
	seen := map[[3]uint8]struct{}{}
	for i := 0; i < len(img.Pix); i += img.Channels {
		seen[[3]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2]}] = struct{}{}
	}
	return len(seen)
}

func TestStylizeKeepsDimensions(t *testing.T) {
	photo, _ := testutil.FacePhoto(t, 96, 72, 40)
	sizes := []*raster.Image{photo, gradient(t, 33, 17), gradient(t, 3, 3)}
	for _, img := range sizes {
		out, err := Default().Stylize(img, DefaultParameters())
		require.NoError(t, err)
		assert.Equal(t, img.Width, out.Width)
		assert.Equal(t, img.Height, out.Height)
		assert.Equal(t, img.Channels, out.Channels)
		assert.NoError(t, out.Validate())
	}
}

func TestStylizeDoesNotMutateInput(t *testing.T) {
	img := gradient(t, 40, 30)
	before := append([]uint8(nil), img.Pix...)
	_, err := Default().Stylize(img, DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, before, img.Pix)
}

func TestStylizeRejectsDegenerateImages(t *testing.T) {
	one := testutil.Canvas(t, 1, 1, [3]uint8{10, 20, 30})
	_, err := Default().Stylize(one, DefaultParameters())
	assert.ErrorIs(t, err, domain.ErrProcessing)

	_, err = Default().Stylize(&raster.Image{Channels: 3}, DefaultParameters())
	assert.ErrorIs(t, err, domain.ErrProcessing)

	_, err = Default().Stylize(nil, DefaultParameters())
	assert.ErrorIs(t, err, domain.ErrProcessing)
}

func TestStylizeRejectsInvalidParameters(t *testing.T) {
	img := gradient(t, 20, 20)
	cases := map[string]func(*Parameters){
		"negative passes":  func(p *Parameters) { p.SmoothingPasses = -1 },
		"one color level":  func(p *Parameters) { p.ColorLevels = 1 },
		"even block size":  func(p *Parameters) { p.EdgeBlockSize = 8 },
		"tiny block size":  func(p *Parameters) { p.EdgeBlockSize = 1 },
		"zero attempts":    func(p *Parameters) { p.Attempts = 0 },
		"zero iterations":  func(p *Parameters) { p.MaxIterations = 0 },
		"zero diameter":    func(p *Parameters) { p.SmoothingDiameter = 0 },
		"negative epsilon": func(p *Parameters) { p.Epsilon = -1 },
		"sample below k":   func(p *Parameters) { p.SampleLimit = 4 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultParameters()
			mutate(&p)
			_, err := Default().Stylize(img, p)
			assert.ErrorIs(t, err, domain.ErrProcessing)
		})
	}
}

func TestQuantizedStageUsesAtMostKColors(t *testing.T) {
	img := gradient(t, 64, 48)
	for _, k := range []int{2, 5, 9} {
		p := DefaultParameters()
		p.ColorLevels = k
		p.SmoothingPasses = 1
		stages, err := Default().Run(img, p)
		require.NoError(t, err)
		assert.LessOrEqual(t, distinctColors(stages.Quantized), k, "k=%d", k)
	}
}

func TestQuantizeSeparatesDistinctColors(t *testing.T) {
	img := testutil.Canvas(t, 20, 10, [3]uint8{255, 0, 0})
	testutil.FillRect(img, image.Rect(10, 0, 20, 10), [3]uint8{0, 0, 255})
	p := DefaultParameters()
	p.ColorLevels = 2
	out, err := Quantize(img, p, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []uint8{255, 0, 0}, out.Pix[0:3])
	last := out.Offset(19, 9)
	assert.Equal(t, []uint8{0, 0, 255}, out.Pix[last:last+3])
}

func TestQuantizeSampledTrainingCoversEveryPixel(t *testing.T) {
	img := testutil.Canvas(t, 40, 20, [3]uint8{255, 0, 0})
	testutil.FillRect(img, image.Rect(20, 0, 40, 20), [3]uint8{0, 0, 255})
	p := DefaultParameters()
	p.ColorLevels = 2
	for _, limit := range []int{1, 2, 64} {
		p.SampleLimit = limit
		out, err := Quantize(img, p, rand.New(rand.NewPCG(3, 4)))
		require.NoError(t, err, "limit %d", limit)
		assert.Equal(t, len(img.Pix), len(out.Pix))
		assert.LessOrEqual(t, distinctColors(out), 2, "limit %d", limit)
	}
}

func TestSampleIndicesAreDistinct(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for _, m := range []int{1, 10, 100} {
		idx := sampleIndices(100, m, rng)
		require.Len(t, idx, m)
		seen := map[int]bool{}
		for _, i := range idx {
			assert.True(t, i >= 0 && i < 100)
			assert.False(t, seen[i], "index %d drawn twice", i)
			seen[i] = true
		}
	}
}

func TestFixedSeedIsReproducible(t *testing.T) {
	img := gradient(t, 40, 40)
	p := DefaultParameters()
	p.SmoothingPasses = 2
	p.Seed = 42
	a, err := Default().Stylize(img, p)
	require.NoError(t, err)
	b, err := Default().Stylize(img, p)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestEdgesInkQuantizedColors(t *testing.T) {
	img := testutil.Canvas(t, 40, 40, [3]uint8{230, 230, 230})
	testutil.FillRect(img, img.Bounds().Inset(12), [3]uint8{20, 20, 20})
	p := DefaultParameters()
	p.SmoothingPasses = 0
	stages, err := Default().Run(img, p)
	require.NoError(t, err)

	for i, m := range stages.Edges.Pix {
		require.True(t, m == 0 || m == 255, "mask must be binary")
		if m == 0 {
			assert.Equal(t, []uint8{0, 0, 0}, stages.Inked.Pix[i*3:i*3+3])
		} else {
			assert.Equal(t, stages.Quantized.Pix[i*3:i*3+3], stages.Inked.Pix[i*3:i*3+3])
		}
	}
	// Flat regions far from the square are above the local mean minus C.
	assert.Equal(t, uint8(255), stages.Edges.Pix[0])
	// Just inside the dark square the pixel is below its local mean.
	assert.Equal(t, uint8(0), stages.Edges.Pix[20*40+12])
}

func TestStylizeKeepsAlphaAndGray(t *testing.T) {
	rgba, err := gradient(t, 24, 24).WithChannels(4)
	require.NoError(t, err)
	for i := 3; i < len(rgba.Pix); i += 4 {
		rgba.Pix[i] = uint8(i % 256)
	}
	out, err := Default().Stylize(rgba, DefaultParameters())
	require.NoError(t, err)
	require.Equal(t, 4, out.Channels)
	for i := 3; i < len(out.Pix); i += 4 {
		require.Equal(t, rgba.Pix[i], out.Pix[i])
	}

	gray, err := gradient(t, 24, 24).WithChannels(1)
	require.NoError(t, err)
	out, err = Default().Stylize(gray, DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Channels)
	assert.Len(t, out.Pix, 24*24)
}

func TestMedianBlurRemovesSaltNoise(t *testing.T) {
	w, h := 9, 9
	src := make([]uint8, w*h)
	for i := range src {
		src[i] = 100
	}
	src[4*w+4] = 255
	out := medianBlur(src, w, h, 3)
	for i, v := range out {
		require.Equal(t, uint8(100), v, "pixel %d", i)
	}
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, []int{2, 1, 0, 1, 2, 3, 2, 1}, reflectTable(4, 2)[:8])
	assert.Equal(t, 0, reflect101(-5, 1))
	assert.Equal(t, 1, reflect101(-1, 3))
	assert.Equal(t, 1, reflect101(3, 3))
}

func TestLoadParametersFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stylize.yaml")
	require.NoError(t, os.WriteFile(path, []byte("color_levels: 4\nsmoothing_passes: 3\nseed: 7\n"), 0o644))
	p, err := LoadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, 4, p.ColorLevels)
	assert.Equal(t, 3, p.SmoothingPasses)
	assert.Equal(t, uint64(7), p.Seed)
	assert.Equal(t, 9, p.EdgeBlockSize, "unset keys keep defaults")

	require.NoError(t, os.WriteFile(path, []byte("edge_block_size: 4\n"), 0o644))
	_, err = LoadParameters(path)
	assert.ErrorIs(t, err, domain.ErrProcessing)

	p, err = LoadParameters("")
	require.NoError(t, err)
	assert.Equal(t, DefaultParameters(), p)
}
