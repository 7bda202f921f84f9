package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cartoonify/internal/adapter/repo"
	"cartoonify/internal/composite"
	"cartoonify/internal/facedetect"
	"cartoonify/internal/infra"
	"cartoonify/internal/jobs"
	"cartoonify/internal/raster"
	"cartoonify/internal/stylize"
)

// Global is shared by every subcommand.
type Global struct {
	Logger zerolog.Logger
	Out    io.Writer
}

type CLI struct {
	Verbose bool `short:"v" help:"Enable debug logging"`

	Detect    DetectCmd    `cmd:"" help:"Print the most prominent face in a photo as JSON"`
	Stylize   StylizeCmd   `cmd:"" help:"Render the cartoon version of a photo"`
	Composite CompositeCmd `cmd:"" help:"Place the stylized face of a photo onto an illustration"`
	Recover   RecoverCmd   `cmd:"" help:"Fail jobs left processing by a stopped service"`
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

type DetectCmd struct {
	Photo string `arg:"" type:"existingfile" help:"Photo to scan"`
}

func (c *DetectCmd) Run(g *Global) error {
	img, err := readImage(c.Photo)
	if err != nil {
		return err
	}
	box, err := facedetect.Default().Detect(img)
	if err != nil {
		return err
	}
	g.Logger.Debug().Int("width", img.Width).Int("height", img.Height).Msg("photo decoded")
	enc := json.NewEncoder(g.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(box)
}

type StylizeCmd struct {
	Photo   string `arg:"" type:"existingfile" help:"Photo to stylize"`
	Output  string `short:"o" required:"" help:"Output file (.jpg or .png)"`
	Params  string `short:"p" type:"existingfile" help:"YAML file with stylization parameters"`
	Stages  string `help:"Directory to write intermediate stages into"`
	Quality int    `default:"95" help:"JPEG quality"`
}

func (c *StylizeCmd) Run(g *Global) error {
	img, err := readImage(c.Photo)
	if err != nil {
		return err
	}
	params, err := loadParams(c.Params)
	if err != nil {
		return err
	}
	start := time.Now()
	stages, err := stylize.Default().Run(img, params)
	if err != nil {
		return err
	}
	g.Logger.Info().Dur("duration", time.Since(start)).Str("output", c.Output).Msg("photo stylized")

	if c.Stages != "" {
		if err := os.MkdirAll(c.Stages, 0o755); err != nil {
			return fmt.Errorf("create stages directory: %w", err)
		}
		for name, stage := range map[string]*raster.Image{
			"1-smoothed":  stages.Smoothed,
			"2-edges":     stages.Edges,
			"3-quantized": stages.Quantized,
			"4-inked":     stages.Inked,
		} {
			if err := writeImage(filepath.Join(c.Stages, name+".png"), stage, c.Quality); err != nil {
				return err
			}
		}
	}
	return writeImage(c.Output, stages.Final, c.Quality)
}

type CompositeCmd struct {
	Photo    string  `arg:"" type:"existingfile" help:"Photo with a face"`
	Template string  `short:"t" type:"existingfile" help:"Illustration to place the face on; a placeholder is used when empty"`
	Output   string  `short:"o" required:"" help:"Output file (.jpg or .png)"`
	Position string  `default:"center" help:"center, top, bottom or x,y"`
	Scale    float64 `default:"0.3" help:"Overlay scale factor"`
	Params   string  `short:"p" type:"existingfile" help:"YAML file with stylization parameters"`
	Quality  int     `default:"95" help:"JPEG quality"`
}

func (c *CompositeCmd) Run(g *Global) error {
	placement, err := composite.ParsePlacement(c.Position)
	if err != nil {
		return err
	}
	photo, err := readImage(c.Photo)
	if err != nil {
		return err
	}
	params, err := loadParams(c.Params)
	if err != nil {
		return err
	}
	box, err := facedetect.Default().Detect(photo)
	if err != nil {
		return err
	}
	face, err := composite.CropFace(photo, box, composite.DefaultFacePadding)
	if err != nil {
		return err
	}
	cartoon, err := stylize.Default().Stylize(face, params)
	if err != nil {
		return err
	}
	var base *raster.Image
	if c.Template != "" {
		base, err = readImage(c.Template)
	} else {
		base, err = raster.Placeholder(jobs.PlaceholderSize, jobs.PlaceholderSize)
	}
	if err != nil {
		return err
	}
	out, err := composite.Composite(base, cartoon, placement, c.Scale)
	if err != nil {
		return err
	}
	g.Logger.Info().
		Str("placement", placement.String()).
		Float64("scale", c.Scale).
		Float64("face_confidence", box.Confidence).
		Msg("face composed")
	return writeImage(c.Output, out, c.Quality)
}

type orphanFailer interface {
	FailProcessing(ctx context.Context, message string, at time.Time) (int, error)
}

type RecoverCmd struct {
	Env string `default:".env" help:"Optional dotenv file with the service configuration"`
}

// Run applies the same startup recovery the API performs, against the
// configured PostgreSQL or SQLite store.
func (c *RecoverCmd) Run(g *Global) error {
	if err := infra.LoadEnvFiles(c.Env); err != nil {
		return err
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var r orphanFailer
	if cfg.UsePostgres() {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		r = repo.NewJobRepository(infra.NewSQLRunner(pool, g.Logger))
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return err
		}
		lite, err := repo.NewJobRepositorySQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer lite.Close()
		r = lite
	}
	n, err := r.FailProcessing(ctx, jobs.RestartMessage, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.Out, "failed %d interrupted job(s)\n", n)
	return err
}

func readImage(path string) (*raster.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return raster.Decode(data)
}

func writeImage(path string, img *raster.Image, quality int) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		data, err = raster.PNGBytes(img)
	case ".jpg", ".jpeg":
		data, err = raster.JPEGBytes(img, quality)
	default:
		return fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func loadParams(path string) (stylize.Parameters, error) {
	if path == "" {
		return stylize.DefaultParameters(), nil
	}
	return stylize.LoadParameters(path)
}
