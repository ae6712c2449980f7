package raster

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spherical/office-raster/internal/domain"
)

// Frame pairs an exported frame with its converted file.
type Frame struct {
	// Index is the 0-based position of the frame among all exported frames.
	Index  int
	Source string
	Output string
}

// Skip is a frame that could not be converted.
type Skip struct {
	Index  int
	Source string
	Err    error
}

// BatchResult lists converted and skipped frames in frame order.
type BatchResult struct {
	Converted []Frame
	Skipped   []Skip
}

// FrameProgress is called after each frame, with err set for skipped frames.
type FrameProgress func(index, total int, source string, err error)

// FrameOutput is the path a frame converts to: next to its source, with the
// extension of format.
func FrameOutput(source string, format domain.Format) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + "." + format.Extension()
}

// ConvertFrames converts each frame next to its source, one at a time and in
// the given order. A failed frame is skipped; the batch fails only when no
// frame converts or ctx is cancelled.
func (c *Chain) ConvertFrames(ctx context.Context, frames []string, dpi int, format domain.Format, progress FrameProgress) (*BatchResult, error) {
	result := &BatchResult{}

	for i, src := range frames {
		if err := ctx.Err(); err != nil {
			return result, domain.RasterToolFailedError("frame conversion interrupted", err).WithStage(domain.StateConverting)
		}

		out := FrameOutput(src, format)
		_, err := c.Convert(ctx, Request{
			Input:  src,
			Output: out,
			DPI:    dpi,
			Format: format,
			Kind:   KindFrame,
		})
		if err != nil {
			c.logger.Warn().Int("frame", i+1).Str("source", filepath.Base(src)).Err(err).Msg("Skipping frame")
			result.Skipped = append(result.Skipped, Skip{Index: i, Source: src, Err: err})
		} else {
			result.Converted = append(result.Converted, Frame{Index: i, Source: src, Output: out})
		}
		if progress != nil {
			progress(i, len(frames), src, err)
		}
	}

	if len(result.Converted) == 0 {
		var last error
		if n := len(result.Skipped); n > 0 {
			last = result.Skipped[n-1].Err
		}
		return result, domain.RasterToolFailedError("no frame could be converted", last).WithStage(domain.StateConverting)
	}
	return result, nil
}
