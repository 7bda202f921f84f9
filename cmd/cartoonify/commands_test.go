package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartoonify/internal/domain"
	"cartoonify/internal/raster"
	"cartoonify/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("cartoonify"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	err = ctx.Run(&Global{Logger: zerolog.Nop(), Out: &out})
	return out.String(), err
}

func writePhoto(t *testing.T, dir string) string {
	t.Helper()
	img, _ := testutil.FacePhoto(t, 200, 200, 80)
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, testutil.PNG(t, img), 0o644))
	return path
}

func readOutput(t *testing.T, path string) *raster.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := raster.Decode(data)
	require.NoError(t, err)
	return img
}

func TestDetectPrintsBox(t *testing.T) {
	photo := writePhoto(t, t.TempDir())

	out, err := run(t, "detect", photo)
	require.NoError(t, err)

	var box domain.BoundingBox
	require.NoError(t, json.Unmarshal([]byte(out), &box))
	assert.True(t, box.Overlaps(domain.BoundingBox{X: 60, Y: 60, Width: 80, Height: 80}), "box %+v", box)
}

func TestDetectUniformPhotoFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flat.png")
	require.NoError(t, os.WriteFile(path, testutil.PNG(t, testutil.Canvas(t, 120, 120, testutil.Background)), 0o644))

	_, err := run(t, "detect", path)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStylizeWritesOutputAndStages(t *testing.T) {
	dir := t.TempDir()
	photo := writePhoto(t, dir)
	out := filepath.Join(dir, "out", "cartoon.jpg")
	stages := filepath.Join(dir, "stages")

	_, err := run(t, "stylize", photo, "-o", out, "--stages", stages)
	require.NoError(t, err)

	img := readOutput(t, out)
	assert.Equal(t, 200, img.Width)
	assert.Equal(t, 200, img.Height)
	for _, name := range []string{"1-smoothed", "2-edges", "3-quantized", "4-inked"} {
		assert.FileExists(t, filepath.Join(stages, name+".png"))
	}
}

func TestStylizeRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	photo := writePhoto(t, dir)

	_, err := run(t, "stylize", photo, "-o", filepath.Join(dir, "out.gif"))
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestCompositeOnPlaceholder(t *testing.T) {
	dir := t.TempDir()
	photo := writePhoto(t, dir)
	out := filepath.Join(dir, "composed.png")

	_, err := run(t, "composite", photo, "-o", out, "--position", "top", "--scale", "0.5")
	require.NoError(t, err)

	img := readOutput(t, out)
	assert.Equal(t, 800, img.Width)
	assert.Equal(t, 800, img.Height)
}

func TestCompositeRejectsBadPosition(t *testing.T) {
	dir := t.TempDir()
	photo := writePhoto(t, dir)

	_, err := run(t, "composite", photo, "-o", filepath.Join(dir, "x.jpg"), "--position", "left")
	assert.Error(t, err)
}

func TestRecoverOnFreshSQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "db", "jobs.db"))

	out, err := run(t, "recover", "--env", filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "failed 0 interrupted job(s)\n", out)
}
