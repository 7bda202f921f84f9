package raster

import (
	"bufio"
	"bytes"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"cartoonify/internal/domain"
)

// DefaultJPEGQuality is the quality used for result images.
const DefaultJPEGQuality = 95

// Decode parses JPEG, PNG, GIF, BMP or WebP bytes.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, domain.Errorf(domain.ErrDecode, "raster.Decode", "image data is empty")
	}
	return DecodeReader(bytes.NewReader(data))
}

// DecodeReader parses an encoded image from r.
func DecodeReader(r io.Reader) (*Image, error) {
	img, format, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, domain.Wrap(domain.ErrDecode, "raster.Decode", err, "could not read image")
	}
	out, err := FromImage(img)
	if err != nil {
		return nil, domain.Wrap(domain.ErrDecode, "raster.Decode", err, "could not convert %s image", format)
	}
	return out, nil
}

// EncodeJPEG writes m as baseline JPEG. Alpha is discarded.
func EncodeJPEG(w io.Writer, m *Image, quality int) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Empty() {
		return domain.Errorf(domain.ErrProcessing, "raster.EncodeJPEG", "image has zero area")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var src image.Image
	if m.Channels == 1 {
		src = &image.Gray{Pix: m.Pix, Stride: m.Width, Rect: m.Bounds()}
	} else {
		flat, err := m.WithChannels(3)
		if err != nil {
			return err
		}
		src = flat.ToNRGBA()
	}
	if err := jpeg.Encode(w, src, &jpeg.Options{Quality: quality}); err != nil {
		return domain.Wrap(domain.ErrProcessing, "raster.EncodeJPEG", err, "jpeg encoding failed")
	}
	return nil
}

// EncodePNG writes m losslessly, keeping alpha when present.
func EncodePNG(w io.Writer, m *Image) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Empty() {
		return domain.Errorf(domain.ErrProcessing, "raster.EncodePNG", "image has zero area")
	}
	if err := png.Encode(w, m.ToNRGBA()); err != nil {
		return domain.Wrap(domain.ErrProcessing, "raster.EncodePNG", err, "png encoding failed")
	}
	return nil
}

// JPEGBytes is EncodeJPEG into a fresh buffer.
func JPEGBytes(m *Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, m, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PNGBytes is EncodePNG into a fresh buffer.
func PNGBytes(m *Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
