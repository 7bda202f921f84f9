package facedetect

// integral holds summed-area tables of a gray plane and its squares, padded
// with a zero row and column.
type integral struct {
	w, h  int
	s, sq []int64
}

func newIntegral(gray []uint8, w, h int) *integral {
	stride := w + 1
	ii := &integral{w: w, h: h, s: make([]int64, stride*(h+1)), sq: make([]int64, stride*(h+1))}
	for y := 0; y < h; y++ {
		var rowSum, rowSq int64
		for x := 0; x < w; x++ {
			v := int64(gray[y*w+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			ii.s[i] = ii.s[i-stride] + rowSum
			ii.sq[i] = ii.sq[i-stride] + rowSq
		}
	}
	return ii
}

// sum over [x0,x1) x [y0,y1).
func (ii *integral) sum(x0, y0, x1, y1 int) int64 {
	return rect(ii.s, ii.w+1, x0, y0, x1, y1)
}

func (ii *integral) sqSum(x0, y0, x1, y1 int) int64 {
	return rect(ii.sq, ii.w+1, x0, y0, x1, y1)
}

func rect(t []int64, stride, x0, y0, x1, y1 int) int64 {
	return t[y1*stride+x1] - t[y0*stride+x1] - t[y1*stride+x0] + t[y0*stride+x0]
}

// regionMean maps a fractional region onto the window at (x, y) of side size.
func (ii *integral) regionMean(r Region, x, y, size int) float64 {
	x0 := x + int(r.X0*float64(size))
	y0 := y + int(r.Y0*float64(size))
	x1 := x + int(r.X1*float64(size))
	y1 := y + int(r.Y1*float64(size))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	area := float64((x1 - x0) * (y1 - y0))
	return float64(ii.sum(x0, y0, x1, y1)) / area
}
