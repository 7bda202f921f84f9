// Package testutil builds synthetic photos for tests across packages.
package testutil

import (
	"image"
	"testing"

	"cartoonify/internal/raster"
)

var (
	Background = [3]uint8{50, 70, 60}
	Skin       = [3]uint8{220, 190, 170}
	EyeColor   = [3]uint8{30, 30, 40}
	MouthColor = [3]uint8{90, 30, 40}
)

// Canvas returns a 3-channel image filled with color.
func Canvas(t testing.TB, w, h int, color [3]uint8) *raster.Image {
	t.Helper()
	img, err := raster.New(w, h, 3)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	for i := 0; i < len(img.Pix); i += 3 {
		copy(img.Pix[i:i+3], color[:])
	}
	return img
}

// FillRect paints r (clipped) with color. The image is modified in place
// and is meant to be called only while a fixture is being built.
func FillRect(img *raster.Image, r image.Rectangle, color [3]uint8) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			o := img.Offset(x, y)
			copy(img.Pix[o:o+3], color[:])
		}
	}
}

// DrawFace paints a frontal face pattern into the square at (x, y) of side
// size: a skin square with two dark eyes and a dark mouth.
func DrawFace(img *raster.Image, x, y, size int) image.Rectangle {
	at := func(fx0, fy0, fx1, fy1 float64) image.Rectangle {
		s := float64(size)
		return image.Rect(x+int(fx0*s), y+int(fy0*s), x+int(fx1*s), y+int(fy1*s))
	}
	FillRect(img, at(0, 0, 1, 1), Skin)
	FillRect(img, at(0.20, 0.26, 0.40, 0.40), EyeColor)
	FillRect(img, at(0.60, 0.26, 0.80, 0.40), EyeColor)
	FillRect(img, at(0.32, 0.70, 0.68, 0.80), MouthColor)
	return image.Rect(x, y, x+size, y+size)
}

// FacePhoto returns a w×h photo with one centered face of side size.
func FacePhoto(t testing.TB, w, h, size int) (*raster.Image, image.Rectangle) {
	t.Helper()
	img := Canvas(t, w, h, Background)
	face := DrawFace(img, (w-size)/2, (h-size)/2, size)
	return img, face
}

// PNG encodes img for upload-style tests.
func PNG(t testing.TB, img *raster.Image) []byte {
	t.Helper()
	data, err := raster.PNGBytes(img)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return data
}
