package raster

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const placeholderCaption = "Illustration Placeholder"

var (
	placeholderBackground = color.NRGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
	placeholderInk        = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
)

// Placeholder renders the stand-in illustration used when a caller needs a
// template but none was uploaded. The output depends only on the size.
func Placeholder(width, height int) (*Image, error) {
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(placeholderBackground), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: canvas, Src: image.NewUniform(placeholderInk), Face: face}
	textWidth := d.MeasureString(placeholderCaption).Ceil()
	metrics := face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	d.Dot = fixed.P((width-textWidth)/2, (height-textHeight)/2+metrics.Ascent.Ceil())
	d.DrawString(placeholderCaption)

	return FromNRGBA(canvas, 3)
}
