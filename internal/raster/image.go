// Package raster holds decoded images as flat interleaved byte buffers and
// converts them to and from the standard library image types.
//
// An Image is never modified after it is returned by a constructor or
// transformation; every operation in this module allocates a new buffer.
package raster

import (
	"image"
	"image/color"

	"cartoonify/internal/domain"
)

// Image is an interleaved 8-bit raster. Channels is 1 (gray), 3 (RGB) or 4 (RGBA,
// non-premultiplied).
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed image.
func New(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, domain.Errorf(domain.ErrProcessing, "raster.New", "image has zero area (%dx%d)", width, height)
	}
	if !validChannels(channels) {
		return nil, domain.Errorf(domain.ErrProcessing, "raster.New", "unsupported channel count %d", channels)
	}
	return &Image{Width: width, Height: height, Channels: channels, Pix: make([]uint8, width*height*channels)}, nil
}

func validChannels(c int) bool {
	return c == 1 || c == 3 || c == 4
}

// Validate checks the buffer invariant. Failures are decode errors since an
// inconsistent buffer cannot be interpreted as an image.
func (m *Image) Validate() error {
	if m == nil {
		return domain.Errorf(domain.ErrDecode, "raster.Validate", "image is nil")
	}
	if m.Width < 0 || m.Height < 0 || !validChannels(m.Channels) {
		return domain.Errorf(domain.ErrDecode, "raster.Validate", "invalid geometry %dx%dx%d", m.Width, m.Height, m.Channels)
	}
	if len(m.Pix) != m.Width*m.Height*m.Channels {
		return domain.Errorf(domain.ErrDecode, "raster.Validate", "pixel buffer has %d bytes, want %d", len(m.Pix), m.Width*m.Height*m.Channels)
	}
	return nil
}

// Empty reports whether the image has zero area.
func (m *Image) Empty() bool {
	return m == nil || m.Width <= 0 || m.Height <= 0
}

// Bounds returns the image rectangle anchored at the origin.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Offset returns the index of the first channel of pixel (x, y).
func (m *Image) Offset(x, y int) int {
	return (y*m.Width + x) * m.Channels
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	out := *m
	out.Pix = append([]uint8(nil), m.Pix...)
	return &out
}

// HasAlpha reports whether the image carries an alpha channel.
func (m *Image) HasAlpha() bool {
	return m.Channels == 4
}

// Gray returns the BT.601 luma plane.
func (m *Image) Gray() []uint8 {
	n := m.Width * m.Height
	out := make([]uint8, n)
	if m.Channels == 1 {
		copy(out, m.Pix)
		return out
	}
	for i, o := 0, 0; i < n; i, o = i+1, o+m.Channels {
		out[i] = luma(m.Pix[o], m.Pix[o+1], m.Pix[o+2])
	}
	return out
}

func luma(r, g, b uint8) uint8 {
	// Fixed point 0.299, 0.587, 0.114 scaled by 2^14.
	y := (4899*uint32(r) + 9617*uint32(g) + 1868*uint32(b) + 8192) >> 14
	if y > 255 {
		y = 255
	}
	return uint8(y)
}

// WithChannels converts the image to the requested channel count. Gray
// replicates into color, alpha is synthesised opaque or dropped.
func (m *Image) WithChannels(channels int) (*Image, error) {
	if m.Channels == channels {
		return m.Clone(), nil
	}
	out, err := New(m.Width, m.Height, channels)
	if err != nil {
		return nil, err
	}
	n := m.Width * m.Height
	if channels == 1 {
		copy(out.Pix, m.Gray())
		return out, nil
	}
	for i := 0; i < n; i++ {
		src := m.Pix[i*m.Channels : i*m.Channels+m.Channels]
		dst := out.Pix[i*channels : i*channels+channels]
		if m.Channels == 1 {
			dst[0], dst[1], dst[2] = src[0], src[0], src[0]
		} else {
			dst[0], dst[1], dst[2] = src[0], src[1], src[2]
		}
		if channels == 4 {
			dst[3] = 255
			if m.Channels == 4 {
				dst[3] = src[3]
			}
		}
	}
	return out, nil
}

// RGB returns a 3-channel copy.
func (m *Image) RGB() (*Image, error) {
	return m.WithChannels(3)
}

// Crop returns a copy of the pixels inside r, clipped to the image.
func (m *Image) Crop(r image.Rectangle) (*Image, error) {
	r = r.Intersect(m.Bounds())
	if r.Empty() {
		return nil, domain.Errorf(domain.ErrProcessing, "raster.Crop", "crop rectangle is outside the image")
	}
	out, err := New(r.Dx(), r.Dy(), m.Channels)
	if err != nil {
		return nil, err
	}
	rowBytes := r.Dx() * m.Channels
	for y := 0; y < r.Dy(); y++ {
		src := m.Offset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], m.Pix[src:src+rowBytes])
	}
	return out, nil
}

// FromImage copies any image.Image into a raster. Opaque sources produce 3
// channels, gray sources 1, sources with transparency 4.
func FromImage(src image.Image) (*Image, error) {
	if src == nil {
		return nil, domain.Errorf(domain.ErrDecode, "raster.FromImage", "image is nil")
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, domain.Errorf(domain.ErrDecode, "raster.FromImage", "image has zero area")
	}
	channels := 3
	switch s := src.(type) {
	case *image.Gray:
		channels = 1
	case interface{ Opaque() bool }:
		if !s.Opaque() {
			channels = 4
		}
	}
	out, err := New(b.Dx(), b.Dy(), channels)
	if err != nil {
		return nil, err
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			switch channels {
			case 1:
				out.Pix[i] = c.R
			case 3:
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
			default:
				out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = c.R, c.G, c.B, c.A
			}
			i += channels
		}
	}
	return out, nil
}

// ToNRGBA converts the raster into a standard library image.
func (m *Image) ToNRGBA() *image.NRGBA {
	dst := image.NewNRGBA(m.Bounds())
	n := m.Width * m.Height
	for i := 0; i < n; i++ {
		s := m.Pix[i*m.Channels:]
		d := dst.Pix[i*4 : i*4+4]
		switch m.Channels {
		case 1:
			d[0], d[1], d[2], d[3] = s[0], s[0], s[0], 255
		case 3:
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 255
		default:
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], s[3]
		}
	}
	return dst
}

// FromNRGBA copies an NRGBA image keeping the requested channel count.
func FromNRGBA(src *image.NRGBA, channels int) (*Image, error) {
	b := src.Bounds()
	out, err := New(b.Dx(), b.Dy(), channels)
	if err != nil {
		return nil, err
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+4]
			switch channels {
			case 1:
				out.Pix[i] = luma(p[0], p[1], p[2])
			case 3:
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = p[0], p[1], p[2]
			default:
				copy(out.Pix[i:i+4], p)
			}
			i += channels
		}
	}
	return out, nil
}
