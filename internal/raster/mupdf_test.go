package raster

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/office-raster/internal/domain"
)

// letterPDF is a one-page 612x792pt document.
var letterPDF = filepath.Join("testdata", "letter.pdf")

func decodeConfig(t *testing.T, path string) (image.Config, string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg, format
}

func renderLetter(t *testing.T, m *MuPDF, dpi int, format domain.Format) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "letter."+format.Extension())
	require.NoError(t, m.Convert(context.Background(), Request{
		Input:  letterPDF,
		Output: out,
		DPI:    dpi,
		Format: format,
		Kind:   KindPage,
	}))
	return out
}

func TestMuPDF_RendersPNG(t *testing.T) {
	cfg, format := decodeConfig(t, renderLetter(t, &MuPDF{}, 72, domain.FormatPNG))
	assert.Equal(t, "png", format)
	assert.InDelta(t, 612, cfg.Width, 1)
	assert.InDelta(t, 792, cfg.Height, 1)
}

func TestMuPDF_RendersJPEG(t *testing.T) {
	cfg, format := decodeConfig(t, renderLetter(t, &MuPDF{}, 150, domain.FormatJPEG))
	assert.Equal(t, "jpeg", format)
	assert.InDelta(t, 1275, cfg.Width, 1)
	assert.InDelta(t, 1650, cfg.Height, 1)
}

func TestMuPDF_CapsLargeDPI(t *testing.T) {
	for _, dpi := range []int{3000, domain.MaxDPI} {
		cfg, _ := decodeConfig(t, renderLetter(t, &MuPDF{MaxDimension: 600}, dpi, domain.FormatPNG))
		assert.LessOrEqual(t, cfg.Height, 600, "dpi %d", dpi)
		assert.GreaterOrEqual(t, cfg.Height, 590, "dpi %d", dpi)
		assert.InDelta(t, float64(cfg.Height)*612/792, cfg.Width, 2, "dpi %d keeps the aspect ratio", dpi)
	}
}

func TestMuPDF_DefaultCapAtMaxDPI(t *testing.T) {
	if testing.Short() {
		t.Skip("renders a full size page")
	}
	cfg, _ := decodeConfig(t, renderLetter(t, &MuPDF{}, domain.MaxDPI, domain.FormatJPEG))
	assert.LessOrEqual(t, cfg.Height, DefaultMaxDimension)
	assert.Greater(t, cfg.Height, DefaultMaxDimension-100)
}

func TestMuPDF_RenderDPI(t *testing.T) {
	letter := image.Rect(0, 0, 612, 792)
	m := &MuPDF{MaxDimension: 8192}

	assert.Equal(t, 300.0, m.RenderDPI(300, letter))
	capped := m.RenderDPI(domain.MaxDPI, letter)
	assert.InDelta(t, 744.72, capped, 0.01)
	assert.LessOrEqual(t, 792*capped/72, 8192.0)
	assert.Equal(t, capped, m.RenderDPI(domain.MaxDPI, image.Rect(0, 0, 792, 612)), "landscape uses the longer side")
	assert.Equal(t, 600.0, m.RenderDPI(600, image.Rectangle{}))
	assert.Equal(t, capped, (&MuPDF{}).RenderDPI(domain.MaxDPI, letter), "zero cap uses the default")
}

func TestChain_MuPDFAfterToolsFail(t *testing.T) {
	ctx, _ := toolContext(&fakeTools{sipsFails: func(string) bool { return true }, qlmanageFails: true})
	sips := &Sips{PageMaxDimension: 600, FrameMaxDimension: 600}
	chain := NewChain(nil, sips, &QuickLook{Encoder: sips}, &MuPDF{MaxDimension: 600})
	out := filepath.Join(t.TempDir(), "report_raster.png")

	res, err := chain.Convert(ctx, Request{Input: letterPDF, Output: out, DPI: domain.MaxDPI, Format: domain.FormatPNG, Kind: KindPage})
	require.NoError(t, err)
	assert.Equal(t, "mupdf", res.Strategy)
	assert.Len(t, res.Attempts, 3)
	cfg, _ := decodeConfig(t, out)
	assert.LessOrEqual(t, cfg.Height, 600)
}

func TestMuPDF_RejectsUnreadable(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(in, []byte("not a pdf"), 0644))

	m := &MuPDF{}
	assert.True(t, m.Accepts(KindPage))
	assert.False(t, m.Accepts(KindFrame))
	assert.Error(t, m.Convert(context.Background(), Request{Input: in, Output: filepath.Join(dir, "out.png"), DPI: 72, Format: domain.FormatPNG, Kind: KindPage}))
	assert.NoFileExists(t, filepath.Join(dir, "out.png"))
}

func TestFitzGeometry_MeasuresLetter(t *testing.T) {
	length, err := FitzGeometry{}.PageLengthInches(letterPDF)
	require.NoError(t, err)
	assert.InDelta(t, 11.0, length, 0.001)
}

func TestFitzGeometry_Fallback(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	_, err := FitzGeometry{}.PageLengthInches(missing)
	assert.Error(t, err)

	length, err := FitzGeometry{Fallback: 14}.PageLengthInches(missing)
	require.NoError(t, err)
	assert.Equal(t, 14.0, length)
}
