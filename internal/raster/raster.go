// Package raster converts exported intermediate artifacts into raster images
// with an ordered fallback chain of conversion strategies.
package raster

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
	"github.com/spherical/office-raster/internal/observability"
)

// ArtifactKind is the kind of intermediate artifact being converted.
type ArtifactKind string

const (
	// KindPage is a single page document such as an exported PDF.
	KindPage ArtifactKind = "page"
	// KindFrame is one exported slide image.
	KindFrame ArtifactKind = "frame"
)

// Request asks for one input converted into one output file.
type Request struct {
	Input  string
	Output string
	DPI    int
	Format domain.Format
	Kind   ArtifactKind
}

// Strategy is one way of converting an artifact.
type Strategy interface {
	Name() string
	Accepts(kind ArtifactKind) bool
	Convert(ctx context.Context, req Request) error
}

// Attempt records one strategy tried by a Chain.
type Attempt struct {
	Strategy string
	Err      error
	Elapsed  time.Duration
}

// Result describes a finished Chain conversion.
type Result struct {
	Output string
	// Strategy is the name of the strategy that produced Output.
	Strategy string
	Attempts []Attempt
}

// Chain tries its strategies in order and stops at the first success.
type Chain struct {
	strategies []Strategy
	logger     *observability.Logger
}

// NewChain creates a chain of strategies tried in the given order.
func NewChain(logger *observability.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Chain{
		strategies: strategies,
		logger:     logger.WithComponent("raster"),
	}
}

// Strategies returns the names of the chain's strategies in order.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Convert runs req through the strategies that accept its kind. The result
// is returned on failure too, so callers can report every attempt.
func (c *Chain) Convert(ctx context.Context, req Request) (*Result, error) {
	result := &Result{Output: req.Output}

	for _, s := range c.strategies {
		if !s.Accepts(req.Kind) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, domain.RasterToolFailedError("conversion interrupted", err).WithStage(domain.StateConverting)
		}

		start := time.Now()
		err := s.Convert(ctx, req)
		attempt := Attempt{Strategy: s.Name(), Err: err, Elapsed: time.Since(start)}
		result.Attempts = append(result.Attempts, attempt)

		if err == nil {
			result.Strategy = s.Name()
			c.logger.Debug().
				Str("strategy", s.Name()).
				Str("input", req.Input).
				Str("output", req.Output).
				Dur("elapsed", attempt.Elapsed).
				Msg("Converted")
			return result, nil
		}

		c.logger.Warn().
			Str("strategy", s.Name()).
			Str("input", req.Input).
			Err(err).
			Msg("Strategy failed, trying next")
	}

	if len(result.Attempts) == 0 {
		return result, domain.RasterToolFailedError("no raster strategy accepts "+string(req.Kind)+" artifacts", nil).
			WithStage(domain.StateConverting)
	}

	last := result.Attempts[len(result.Attempts)-1].Err
	return result, domain.RasterToolFailedError("every raster strategy failed for "+req.Input, last).
		WithStage(domain.StateConverting).
		WithDiagnostic(diagnostics(result.Attempts))
}

// diagnostics joins the tool output of every failed attempt.
func diagnostics(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Err != nil {
			parts = append(parts, a.Strategy+": "+exec.Stderr(a.Err))
		}
	}
	return strings.Join(parts, "; ")
}

// requireOutput fails when a tool reported success without writing path.
func requireOutput(tool, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Errorf("%s produced no output at %s", tool, path)
	}
	if info.Size() == 0 {
		return errors.Errorf("%s produced an empty file at %s", tool, path)
	}
	return nil
}
