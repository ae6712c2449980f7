package raster

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
	"github.com/spherical/office-raster/internal/observability"
)

// PageGeometry reports the length, in inches, of the longer side of a
// document's first page.
type PageGeometry interface {
	PageLengthInches(path string) (float64, error)
}

// AssumedPageLength is a PageGeometry that ignores the document and answers
// a fixed length.
type AssumedPageLength float64

func (a AssumedPageLength) PageLengthInches(string) (float64, error) {
	return float64(a), nil
}

// DefaultPageLength approximates a letter or A4 page.
const DefaultPageLength AssumedPageLength = 11

// QuickLook renders a page document through the QuickLook thumbnail
// generator. Its previews are always PNG; other formats are re-encoded with
// Encoder.
type QuickLook struct {
	Path     string
	Timeout  time.Duration
	Encoder  *Sips
	Geometry PageGeometry
	Logger   *observability.Logger
}

func (q *QuickLook) Name() string { return "qlmanage" }

func (q *QuickLook) Accepts(kind ArtifactKind) bool { return kind == KindPage }

// PixelSize is the preview size requested for req.
func (q *QuickLook) PixelSize(req Request) int {
	geometry := q.Geometry
	if geometry == nil {
		geometry = DefaultPageLength
	}
	length, err := geometry.PageLengthInches(req.Input)
	if err != nil || length <= 0 {
		q.logger().Warn().Err(err).Str("input", req.Input).
			Float64("assumed_inches", float64(DefaultPageLength)).
			Msg("Page geometry unavailable, assuming default page length")
		length = float64(DefaultPageLength)
	}
	if _, assumed := geometry.(AssumedPageLength); assumed {
		q.logger().Debug().Float64("page_length_inches", length).
			Msg("Preview size derived from an assumed page length, actual page size is not measured")
	}
	return int(float64(req.DPI) * length)
}

// Previews returns the paths qlmanage may write the preview of input to
// when asked to write into dir.
func Previews(input, dir string) []string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return []string{
		filepath.Join(dir, base+".png"),
		filepath.Join(dir, stem+".png"),
	}
}

func (q *QuickLook) Convert(ctx context.Context, req Request) error {
	dir := filepath.Dir(req.Output)
	err := exec.Run(ctx, &exec.Command{
		Name:    q.path(),
		Args:    []string{"-t", "-s", strconv.Itoa(q.PixelSize(req)), "-o", dir, req.Input},
		Timeout: q.Timeout,
	})
	if err != nil {
		return err
	}

	preview := ""
	for _, candidate := range Previews(req.Input, dir) {
		if _, err := os.Stat(candidate); err == nil {
			preview = candidate
			break
		}
	}
	if preview == "" {
		return errors.Errorf("qlmanage wrote no preview for %s", filepath.Base(req.Input))
	}

	if req.Format == domain.FormatPNG {
		if err := os.Rename(preview, req.Output); err != nil {
			return errors.Wrap(err, "move preview")
		}
		return requireOutput(q.Name(), req.Output)
	}

	encoder := q.Encoder
	if encoder == nil {
		encoder = &Sips{}
	}
	if err := encoder.Reencode(ctx, preview, req.Output, req.Format); err != nil {
		return errors.Wrap(err, "re-encode preview")
	}
	if err := os.Remove(preview); err != nil {
		q.logger().Warn().Err(err).Str("preview", preview).Msg("Failed to remove preview")
	}
	return nil
}

func (q *QuickLook) path() string {
	if q.Path == "" {
		return "qlmanage"
	}
	return q.Path
}

func (q *QuickLook) logger() *observability.Logger {
	if q.Logger == nil {
		return observability.Nop()
	}
	return q.Logger
}
