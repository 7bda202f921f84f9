package stylize

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"cartoonify/internal/raster"
)

type tap struct {
	dx, dy int
	w      float64
}

// bilateral applies one edge-preserving smoothing pass to a 3-channel image.
// Neighbours inside a disc of the given diameter are weighted by spatial
// distance and by the L1 colour difference to the centre pixel.
func bilateral(src *raster.Image, diameter int, sigmaColor, sigmaSpace float64) *raster.Image {
	radius := diameter / 2
	if diameter <= 0 {
		radius = int(math.Round(sigmaSpace * 1.5))
	}
	radius = max(radius, 1)

	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := dx*dx + dy*dy
			if r2 > radius*radius {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, w: math.Exp(float64(r2) * spaceCoeff)})
		}
	}
	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	var colorWeight [3*255 + 1]float64
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	w, h := src.Width, src.Height
	dst := &raster.Image{Width: w, Height: h, Channels: 3, Pix: make([]uint8, len(src.Pix))}
	xIdx := reflectTable(w, radius)
	yIdx := reflectTable(h, radius)

	rowBand := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				c := (y*w + x) * 3
				r0, g0, b0 := int(src.Pix[c]), int(src.Pix[c+1]), int(src.Pix[c+2])
				var sr, sg, sb, sw float64
				for _, t := range taps {
					o := (yIdx[y+t.dy+radius]*w + xIdx[x+t.dx+radius]) * 3
					r, g, b := int(src.Pix[o]), int(src.Pix[o+1]), int(src.Pix[o+2])
					wt := t.w * colorWeight[absInt(r-r0)+absInt(g-g0)+absInt(b-b0)]
					sr += wt * float64(r)
					sg += wt * float64(g)
					sb += wt * float64(b)
					sw += wt
				}
				dst.Pix[c] = clampByte(sr / sw)
				dst.Pix[c+1] = clampByte(sg / sw)
				dst.Pix[c+2] = clampByte(sb / sw)
			}
		}
	}

	var g errgroup.Group
	bands := min(runtime.GOMAXPROCS(0), h)
	per := (h + bands - 1) / bands
	for y0 := 0; y0 < h; y0 += per {
		y1 := min(y0+per, h)
		g.Go(func() error {
			rowBand(y0, y1)
			return nil
		})
	}
	_ = g.Wait()
	return dst
}

// reflectTable maps padded coordinates [-pad, n+pad) to in-range indices
// using reflect-101 borders (the edge pixel is not repeated).
func reflectTable(n, pad int) []int {
	out := make([]int, n+2*pad)
	for i := range out {
		out[i] = reflect101(i-pad, n)
	}
	return out
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
