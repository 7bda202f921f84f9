package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartoonify/internal/domain"
)

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDecode)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestPNGKeepsAlphaChannel(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	src.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Equal(t, 4, img.Channels)
	assert.Len(t, img.Pix, 4*3*4)
	off := img.Offset(1, 1)
	assert.Equal(t, []uint8{10, 20, 30, 128}, img.Pix[off:off+4])
}

func TestOpaqueJPEGDecodesToRGB(t *testing.T) {
	img, err := New(16, 8, 3)
	require.NoError(t, err)
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	data, err := JPEGBytes(img, 90)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Channels)
	assert.Equal(t, 16, decoded.Width)
	assert.Equal(t, 8, decoded.Height)
	assert.NoError(t, decoded.Validate())
}

func TestValidateDetectsLengthMismatch(t *testing.T) {
	img := &Image{Width: 2, Height: 2, Channels: 3, Pix: make([]uint8, 5)}
	assert.ErrorIs(t, img.Validate(), domain.ErrDecode)

	var nilImg *Image
	assert.ErrorIs(t, nilImg.Validate(), domain.ErrDecode)
}

func TestNewRejectsZeroArea(t *testing.T) {
	_, err := New(0, 10, 3)
	assert.ErrorIs(t, err, domain.ErrProcessing)
}

func TestGrayUsesLuma(t *testing.T) {
	img, err := New(3, 1, 3)
	require.NoError(t, err)
	copy(img.Pix, []uint8{255, 0, 0, 0, 255, 0, 255, 255, 255})
	gray := img.Gray()
	assert.InDelta(t, 76, int(gray[0]), 1)
	assert.InDelta(t, 150, int(gray[1]), 1)
	assert.Equal(t, uint8(255), gray[2])
}

func TestWithChannelsAndCropCopy(t *testing.T) {
	img, err := New(4, 4, 1)
	require.NoError(t, err)
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 10)
	}
	rgba, err := img.WithChannels(4)
	require.NoError(t, err)
	off := rgba.Offset(2, 1)
	assert.Equal(t, []uint8{60, 60, 60, 255}, rgba.Pix[off:off+4])

	crop, err := img.Crop(image.Rect(1, 1, 3, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, crop.Width)
	assert.Equal(t, 3, crop.Height)
	assert.Equal(t, uint8(50), crop.Pix[0])

	crop.Pix[0] = 0
	assert.Equal(t, uint8(50), img.Pix[img.Offset(1, 1)], "crop must not alias the source")

	_, err = img.Crop(image.Rect(10, 10, 20, 20))
	assert.ErrorIs(t, err, domain.ErrProcessing)
}

func TestPlaceholderIsDeterministic(t *testing.T) {
	a, err := Placeholder(200, 120)
	require.NoError(t, err)
	b, err := Placeholder(200, 120)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, 3, a.Channels)
	assert.Equal(t, []uint8{0xf0, 0xf0, 0xf0}, a.Pix[0:3])

	dark := 0
	for i := 0; i < len(a.Pix); i += 3 {
		if a.Pix[i] < 0x80 {
			dark++
		}
	}
	assert.Positive(t, dark, "caption should be drawn")
}
