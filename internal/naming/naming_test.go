package naming

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/office-raster/internal/domain"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestPage_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	candidate := filepath.Join(dir, "report_raster.png")
	write(t, candidate, "new")
	write(t, filepath.Join(dir, "report.png"), "old")

	final, err := Page(candidate, dir, "report", "png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.png"), final)
	assert.Equal(t, "new", read(t, final))
	assert.NoFileExists(t, candidate)
}

func TestPage_MissingCandidate(t *testing.T) {
	dir := t.TempDir()
	_, err := Page(filepath.Join(dir, "gone.png"), dir, "report", "png")
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindOutputFailed, de.Kind)
	assert.Equal(t, domain.StateNormalizing, de.Stage)
}

func TestSlides_DenseIndices(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "temp_tiff")
	out := filepath.Dir(staging)

	// Frame 2 (order 2) was skipped; entries arrive out of order.
	entries := []Entry{
		{Order: 4, Path: filepath.Join(staging, "deck.005.png")},
		{Order: 0, Path: filepath.Join(staging, "deck.001.png")},
		{Order: 3, Path: filepath.Join(staging, "deck.004.png")},
		{Order: 1, Path: filepath.Join(staging, "deck.002.png")},
	}
	for _, e := range entries {
		write(t, e.Path, filepath.Base(e.Path))
	}

	finals, err := Slides(entries, out, "png")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "slide_1.png"),
		filepath.Join(out, "slide_2.png"),
		filepath.Join(out, "slide_3.png"),
		filepath.Join(out, "slide_4.png"),
	}, finals)
	assert.Equal(t, "deck.001.png", read(t, finals[0]))
	assert.Equal(t, "deck.002.png", read(t, finals[1]))
	assert.Equal(t, "deck.004.png", read(t, finals[2]))
	assert.Equal(t, "deck.005.png", read(t, finals[3]))
}

func TestSlidePath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "slide_12.jpg"), SlidePath("out", 12, "jpg"))
	assert.Equal(t, filepath.Join("out", "title.jpeg"), PagePath("out", "title", "jpeg"))
}
