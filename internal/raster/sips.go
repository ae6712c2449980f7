package raster

import (
	"context"
	"strconv"
	"time"

	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
)

// Sips converts with the macOS scriptable image processing system.
type Sips struct {
	Path string
	// PageMaxDimension and FrameMaxDimension cap the longer side, in pixels,
	// of converted pages and frames.
	PageMaxDimension  int
	FrameMaxDimension int
	Timeout           time.Duration
}

func (s *Sips) Name() string { return "sips" }

func (s *Sips) Accepts(ArtifactKind) bool { return true }

func (s *Sips) Convert(ctx context.Context, req Request) error {
	maxDim := s.PageMaxDimension
	if req.Kind == KindFrame {
		maxDim = s.FrameMaxDimension
	}
	dpi := strconv.Itoa(req.DPI)

	err := exec.Run(ctx, &exec.Command{
		Name: s.path(),
		Args: []string{
			"-s", "format", string(req.Format),
			"--setProperty", "dpiHeight", dpi,
			"--setProperty", "dpiWidth", dpi,
			"--resampleHeightWidthMax", strconv.Itoa(maxDim),
			req.Input,
			"--out", req.Output,
		},
		Timeout: s.Timeout,
	})
	if err != nil {
		return err
	}
	return requireOutput(s.Name(), req.Output)
}

// Reencode changes only the file format of input, keeping its pixels and
// properties.
func (s *Sips) Reencode(ctx context.Context, input, output string, format domain.Format) error {
	err := exec.Run(ctx, &exec.Command{
		Name:    s.path(),
		Args:    []string{"-s", "format", string(format), input, "--out", output},
		Timeout: s.Timeout,
	})
	if err != nil {
		return err
	}
	return requireOutput(s.Name(), output)
}

func (s *Sips) path() string {
	if s.Path == "" {
		return "sips"
	}
	return s.Path
}
