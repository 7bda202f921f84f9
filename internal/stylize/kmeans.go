package stylize

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"cartoonify/internal/domain"
	"cartoonify/internal/raster"
)

type clustering struct {
	centers     [][]float64
	compactness float64
}

// Quantize reduces a 3-channel image to at most ColorLevels colours with
// k-means clustering and maps every pixel to its nearest centre.
func Quantize(img *raster.Image, p Parameters, rng *rand.Rand) (*raster.Image, error) {
	const op = "stylize.Quantize"
	if img.Channels != 3 {
		return nil, domain.Errorf(domain.ErrProcessing, op, "expected 3 channels, got %d", img.Channels)
	}
	n := img.Width * img.Height
	k := p.ColorLevels
	if n < k {
		return nil, domain.Errorf(domain.ErrProcessing, op, "image has %d pixels, fewer than %d color levels", n, k)
	}

	size := n
	if p.SampleLimit > 0 && p.SampleLimit < n {
		size = max(p.SampleLimit, k)
	}
	// Only the training set is held as float vectors, in one backing array.
	flat := make([]float64, size*3)
	train := make([][]float64, size)
	pixel := func(i, idx int) {
		v := flat[i*3 : i*3+3 : i*3+3]
		o := idx * 3
		v[0], v[1], v[2] = float64(img.Pix[o]), float64(img.Pix[o+1]), float64(img.Pix[o+2])
		train[i] = v
	}
	if size == n {
		for i := 0; i < n; i++ {
			pixel(i, i)
		}
	} else {
		for i, idx := range sampleIndices(n, size, rng) {
			pixel(i, idx)
		}
	}

	var best *clustering
	for attempt := 0; attempt < p.Attempts; attempt++ {
		c := kmeans(train, k, p.MaxIterations, p.Epsilon, rng)
		if best == nil || c.compactness < best.compactness {
			best = c
		}
	}

	palette := make([][3]uint8, k)
	for i, c := range best.centers {
		palette[i] = [3]uint8{clampByte(c[0]), clampByte(c[1]), clampByte(c[2])}
	}
	out := &raster.Image{Width: img.Width, Height: img.Height, Channels: 3, Pix: make([]uint8, len(img.Pix))}
	var px [3]float64
	for o := 0; o < len(img.Pix); o += 3 {
		px[0], px[1], px[2] = float64(img.Pix[o]), float64(img.Pix[o+1]), float64(img.Pix[o+2])
		label, _ := nearest(px[:], best.centers)
		copy(out.Pix[o:o+3], palette[label][:])
	}
	return out, nil
}

// sampleIndices draws m distinct indices from [0, n) using Floyd's
// algorithm, so memory stays proportional to m.
func sampleIndices(n, m int, rng *rand.Rand) []int {
	seen := make(map[int]struct{}, m)
	out := make([]int, 0, m)
	for j := n - m; j < n; j++ {
		t := rng.IntN(j + 1)
		if _, dup := seen[t]; dup {
			t = j
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// kmeans runs one randomly initialised clustering. It stops after maxIter
// updates or once no centre moves further than eps.
func kmeans(data [][]float64, k, maxIter int, eps float64, rng *rand.Rand) *clustering {
	centers := make([][]float64, k)
	for i, idx := range rng.Perm(len(data))[:k] {
		centers[i] = append([]float64(nil), data[idx]...)
	}
	labels := make([]int, len(data))
	sums := make([][]float64, k)
	for i := range sums {
		sums[i] = make([]float64, 3)
	}
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		for i, s := range data {
			labels[i], _ = nearest(s, centers)
		}
		for i := range sums {
			floats.Scale(0, sums[i])
			counts[i] = 0
		}
		for i, s := range data {
			floats.Add(sums[labels[i]], s)
			counts[labels[i]]++
		}
		shift := 0.0
		for i := range centers {
			next := sums[i]
			if counts[i] == 0 {
				next = farthest(data, labels, centers)
			} else {
				floats.Scale(1/float64(counts[i]), next)
			}
			shift = math.Max(shift, floats.Distance(centers[i], next, 2))
			copy(centers[i], next)
		}
		if shift <= eps {
			break
		}
	}

	compactness := 0.0
	for _, s := range data {
		_, d := nearest(s, centers)
		compactness += d
	}
	return &clustering{centers: centers, compactness: compactness}
}

// nearest returns the closest centre and its squared distance.
func nearest(s []float64, centers [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centers {
		d0, d1, d2 := s[0]-c[0], s[1]-c[1], s[2]-c[2]
		if d := d0*d0 + d1*d1 + d2*d2; d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// farthest returns a copy of the sample furthest from its assigned centre,
// used to reseed a cluster that lost all members.
func farthest(data [][]float64, labels []int, centers [][]float64) []float64 {
	idx, far := 0, -1.0
	for i, s := range data {
		if d := floats.Distance(s, centers[labels[i]], 2); d > far {
			idx, far = i, d
		}
	}
	return append([]float64(nil), data[idx]...)
}
