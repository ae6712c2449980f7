package raster

import (
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"

	"github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"

	"github.com/spherical/office-raster/internal/domain"
)

// pointsPerInch is the PDF user space unit.
const pointsPerInch = 72.0

// DefaultMaxDimension caps the longer side of a MuPDF render when
// MaxDimension is zero. It matches the sips page cap.
const DefaultMaxDimension = 8192

// MuPDF renders the first page of a PDF in-process.
type MuPDF struct {
	// MaxDimension caps the longer side of the render in pixels. The render
	// resolution is lowered until the page fits.
	MaxDimension int
	// JPEGQuality is used for JPEG output, 95 when zero.
	JPEGQuality int
}

func (m *MuPDF) Name() string { return "mupdf" }

func (m *MuPDF) Accepts(kind ArtifactKind) bool { return kind == KindPage }

func (m *MuPDF) Convert(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			os.Remove(req.Output)
			err = errors.Errorf("mupdf render aborted: %v", r)
		}
	}()

	doc, err := fitz.New(req.Input)
	if err != nil {
		return errors.Wrap(err, "open document")
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return errors.New("document has no pages")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bounds, err := doc.Bound(0)
	if err != nil {
		return errors.Wrap(err, "read page bounds")
	}
	img, err := doc.ImageDPI(0, m.RenderDPI(req.DPI, bounds))
	if err != nil {
		return errors.Wrap(err, "render page 1")
	}

	if err := m.encode(req.Output, img, req.Format); err != nil {
		return err
	}
	return requireOutput(m.Name(), req.Output)
}

// RenderDPI returns dpi, lowered when needed so that a page with the given
// bounds in points renders no larger than MaxDimension on its longer side.
func (m *MuPDF) RenderDPI(dpi int, bounds image.Rectangle) float64 {
	limit := m.MaxDimension
	if limit <= 0 {
		limit = DefaultMaxDimension
	}
	longer := bounds.Dx()
	if bounds.Dy() > longer {
		longer = bounds.Dy()
	}
	if longer <= 0 {
		return float64(dpi)
	}
	// Two decimals below the exact limit so MuPDF's rounding stays inside it.
	capped := math.Floor(float64(limit)*pointsPerInch/float64(longer)*100) / 100
	if float64(dpi) > capped {
		return capped
	}
	return float64(dpi)
}

func (m *MuPDF) encode(path string, img image.Image, format domain.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output file")
	}

	switch format {
	case domain.FormatJPEG:
		quality := m.JPEGQuality
		if quality == 0 {
			quality = 95
		}
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	default:
		err = png.Encode(f, img)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return errors.Wrapf(err, "encode %s", format)
	}
	return nil
}

// FitzGeometry measures the first page of a PDF with MuPDF. Documents it
// cannot read fall back to Fallback.
type FitzGeometry struct {
	Fallback AssumedPageLength
}

func (g FitzGeometry) PageLengthInches(path string) (float64, error) {
	length, err := measure(path)
	if err != nil {
		if g.Fallback > 0 {
			return float64(g.Fallback), nil
		}
		return 0, err
	}
	return length, nil
}

func measure(path string) (float64, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, errors.Wrap(err, "open document")
	}
	defer doc.Close()

	bounds, err := doc.Bound(0)
	if err != nil {
		return 0, errors.Wrap(err, "read page bounds")
	}
	longer := bounds.Dx()
	if bounds.Dy() > longer {
		longer = bounds.Dy()
	}
	if longer <= 0 {
		return 0, errors.New("page has no extent")
	}
	return float64(longer) / pointsPerInch, nil
}
