package stylize

import "math"

// medianBlur filters a gray plane with a k×k median using a sliding
// histogram per row. Borders replicate the edge pixel.
func medianBlur(src []uint8, w, h, k int) []uint8 {
	dst := make([]uint8, len(src))
	r := k / 2
	target := k*k/2 + 1
	clampX := func(x int) int { return min(max(x, 0), w-1) }
	clampY := func(y int) int { return min(max(y, 0), h-1) }

	var hist [256]int
	for y := 0; y < h; y++ {
		hist = [256]int{}
		for dy := -r; dy <= r; dy++ {
			row := clampY(y+dy) * w
			for dx := -r; dx <= r; dx++ {
				hist[src[row+clampX(dx)]]++
			}
		}
		for x := 0; x < w; x++ {
			if x > 0 {
				out, in := clampX(x-r-1), clampX(x+r)
				for dy := -r; dy <= r; dy++ {
					row := clampY(y+dy) * w
					hist[src[row+out]]--
					hist[src[row+in]]++
				}
			}
			seen := 0
			for v := 0; v < 256; v++ {
				seen += hist[v]
				if seen >= target {
					dst[y*w+x] = uint8(v)
					break
				}
			}
		}
	}
	return dst
}

// adaptiveThreshold binarises with a local mean: a pixel becomes 255 when
// it is brighter than the mean of its k×k neighbourhood minus c, else 0.
func adaptiveThreshold(src []uint8, w, h, k int, c float64) []uint8 {
	stride := w + 1
	sum := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src[y*w+x])
			sum[(y+1)*stride+x+1] = sum[y*stride+x+1] + rowSum
		}
	}
	r := k / 2
	dst := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			total := sum[y1*stride+x1] - sum[y0*stride+x1] - sum[y1*stride+x0] + sum[y0*stride+x0]
			mean := math.Round(float64(total) / float64((x1-x0)*(y1-y0)))
			if float64(src[y*w+x]) > mean-c {
				dst[y*w+x] = 255
			}
		}
	}
	return dst
}
