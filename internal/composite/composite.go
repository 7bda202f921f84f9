// Package composite scales an overlay and alpha-blends it onto a base
// canvas, and crops detected faces out of photos for that purpose.
package composite

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"cartoonify/internal/domain"
	"cartoonify/internal/raster"
)

// DefaultFacePadding is the margin added around a face box on each side,
// as a fraction of the box size.
const DefaultFacePadding = 0.3

// DefaultScale is the overlay scale used when a caller does not pick one.
const DefaultScale = 0.3

// MaxScale is the largest overlay scale callers may request.
const MaxScale = 10.0

// maxGrowth caps the resized overlay at this many times the area of the
// larger input.
const maxGrowth = 4

// Composite resizes overlay by scale, places it on base and returns the
// blended canvas as a 3-channel image. Overlay pixels outside base are
// dropped; only the overlapping region is blended.
func Composite(base, overlay *raster.Image, placement Placement, scale float64) (*raster.Image, error) {
	const op = "composite.Composite"
	if math.IsNaN(scale) || scale <= 0 {
		return nil, domain.Errorf(domain.ErrProcessing, op, "scale must be positive, got %v", scale)
	}
	if base == nil || base.Empty() {
		return nil, domain.Errorf(domain.ErrProcessing, op, "base image is empty")
	}
	if overlay == nil || overlay.Empty() {
		return nil, domain.Errorf(domain.ErrProcessing, op, "overlay image is empty")
	}

	fw, fh := float64(overlay.Width)*scale, float64(overlay.Height)*scale
	limit := float64(max(base.Width*base.Height, overlay.Width*overlay.Height)) * maxGrowth
	if fw*fh > limit {
		return nil, domain.Errorf(domain.ErrProcessing, op, "overlay of %dx%d is too large at scale %v", overlay.Width, overlay.Height, scale)
	}
	w, h := int(fw), int(fh)
	if w <= 0 || h <= 0 {
		return nil, domain.Errorf(domain.ErrProcessing, op, "overlay of %dx%d vanishes at scale %v", overlay.Width, overlay.Height, scale)
	}
	src := overlay.ToNRGBA()
	if w != overlay.Width || h != overlay.Height {
		src = imaging.Resize(src, w, h, imaging.Lanczos)
	}

	canvas := base.ToNRGBA()
	x, y := placement.offset(base.Width, base.Height, w, h)
	target := image.Rect(x, y, x+w, y+h)
	draw.Draw(canvas, target, src, src.Bounds().Min, draw.Over)

	return raster.FromNRGBA(canvas, 3)
}

// CropFace cuts the face box out of img, widened by padding times the box
// size on every side and clamped to the image.
func CropFace(img *raster.Image, box domain.BoundingBox, padding float64) (*raster.Image, error) {
	const op = "composite.CropFace"
	if box.Width <= 0 || box.Height <= 0 {
		return nil, domain.Errorf(domain.ErrProcessing, op, "face box has zero area")
	}
	if padding < 0 {
		return nil, domain.Errorf(domain.ErrProcessing, op, "padding must not be negative, got %v", padding)
	}
	padW := int(float64(box.Width) * padding)
	padH := int(float64(box.Height) * padding)
	r := image.Rect(box.X-padW, box.Y-padH, box.X+box.Width+padW, box.Y+box.Height+padH)
	return img.Crop(r)
}
