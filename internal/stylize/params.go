package stylize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cartoonify/internal/domain"
)

// Parameters configures the cartoon filter. Zero sigma values are derived
// from SmoothingDiameter.
type Parameters struct {
	SmoothingPasses   int     `yaml:"smoothing_passes"`
	SmoothingDiameter int     `yaml:"smoothing_diameter"`
	SigmaColor        float64 `yaml:"sigma_color"`
	SigmaSpace        float64 `yaml:"sigma_space"`
	ColorLevels       int     `yaml:"color_levels"`
	EdgeBlockSize     int     `yaml:"edge_block_size"`
	EdgeConstant      float64 `yaml:"edge_constant"`
	MaxIterations     int     `yaml:"max_iterations"`
	Epsilon           float64 `yaml:"epsilon"`
	Attempts          int     `yaml:"attempts"`
	// SampleLimit caps the pixels used to train cluster centres; every pixel
	// is still mapped to its nearest centre. Zero trains on all pixels.
	SampleLimit int     `yaml:"sample_limit"`
	DetailSigma float64 `yaml:"detail_sigma"`
	// Seed fixes k-means initialisation. Zero draws a random seed per call.
	Seed uint64 `yaml:"seed"`
}

// DefaultParameters returns the standard cartoon look.
func DefaultParameters() Parameters {
	return Parameters{
		SmoothingPasses:   7,
		SmoothingDiameter: 9,
		SigmaColor:        9,
		SigmaSpace:        7,
		ColorLevels:       9,
		EdgeBlockSize:     9,
		EdgeConstant:      2,
		MaxIterations:     20,
		Epsilon:           0.001,
		Attempts:          10,
		SampleLimit:       16384,
		DetailSigma:       1.0,
	}
}

// LoadParameters reads YAML overrides on top of the defaults. An empty path
// returns the defaults.
func LoadParameters(path string) (Parameters, error) {
	p := DefaultParameters()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read stylize parameters: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse stylize parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Parameters) sigmas() (color, space float64) {
	color, space = p.SigmaColor, p.SigmaSpace
	if color <= 0 {
		color = float64(p.SmoothingDiameter)
	}
	if space <= 0 {
		space = float64(max(p.SmoothingDiameter-2, 1))
	}
	return color, space
}

// Validate reports parameter combinations the filter cannot run with.
func (p Parameters) Validate() error {
	const op = "stylize.Validate"
	switch {
	case p.SmoothingPasses < 0:
		return domain.Errorf(domain.ErrProcessing, op, "smoothing passes must be >= 0, got %d", p.SmoothingPasses)
	case p.SmoothingPasses > 0 && p.SmoothingDiameter < 1:
		return domain.Errorf(domain.ErrProcessing, op, "smoothing diameter must be >= 1, got %d", p.SmoothingDiameter)
	case p.ColorLevels < 2 || p.ColorLevels > 256:
		return domain.Errorf(domain.ErrProcessing, op, "color levels must be within [2, 256], got %d", p.ColorLevels)
	case p.EdgeBlockSize < 3 || p.EdgeBlockSize%2 == 0:
		return domain.Errorf(domain.ErrProcessing, op, "edge block size must be odd and >= 3, got %d", p.EdgeBlockSize)
	case p.MaxIterations < 1:
		return domain.Errorf(domain.ErrProcessing, op, "max iterations must be >= 1, got %d", p.MaxIterations)
	case p.Attempts < 1:
		return domain.Errorf(domain.ErrProcessing, op, "attempts must be >= 1, got %d", p.Attempts)
	case p.Epsilon < 0 || p.SampleLimit < 0:
		return domain.Errorf(domain.ErrProcessing, op, "epsilon and sample limit must be non-negative")
	case p.SampleLimit > 0 && p.SampleLimit < p.ColorLevels:
		return domain.Errorf(domain.ErrProcessing, op, "sample limit %d is below color levels %d", p.SampleLimit, p.ColorLevels)
	}
	return nil
}
