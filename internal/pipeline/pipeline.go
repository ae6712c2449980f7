// Package pipeline runs a conversion job through its stages and returns the
// job's outcome.
//
// A job moves strictly forward through
//
//	Idle → Opening → Exporting → Locating → Converting → Normalizing → CleaningUp
//
// and ends in Succeeded or Failed. Any stage may fail the job. CleaningUp
// always runs, whatever the outcome.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spherical/office-raster/internal/automation"
	"github.com/spherical/office-raster/internal/cleanup"
	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/locate"
	"github.com/spherical/office-raster/internal/naming"
	"github.com/spherical/office-raster/internal/observability"
	"github.com/spherical/office-raster/internal/raster"
)

// SupportedPlatform is the only GOOS the applications run on.
const SupportedPlatform = "darwin"

// Names of the job's intermediate files and directories.
const (
	tempPDFSuffix   = "_temp.pdf"
	candidateSuffix = "_raster"
	tiffStagingDir  = "temp_tiff"
	jpegStagingDir  = "temp_jpeg"
)

// releaseTimeout bounds closing the document once the job is over.
const releaseTimeout = 30 * time.Second

// Config wires an Orchestrator.
type Config struct {
	// Word exports single page documents.
	Word automation.Application
	// Keynote exports slide decks.
	Keynote automation.Application
	// PageChain converts exported PDFs; FrameChain converts slide frames.
	PageChain  *raster.Chain
	FrameChain *raster.Chain
	// AutomationTimeout bounds opening and exporting together. Zero leaves
	// only the per-call bound of the applications.
	AutomationTimeout time.Duration
	Logger            *observability.Logger
	// Platform reports the operating system, runtime.GOOS when nil.
	Platform func() string
}

// Orchestrator runs conversion jobs.
type Orchestrator struct {
	cfg    Config
	logger *observability.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = observability.Nop()
	}
	if cfg.Platform == nil {
		cfg.Platform = func() string { return runtime.GOOS }
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("pipeline"),
	}
}

// Run executes job and returns its single terminal outcome. Progress is
// reported on events when it is not nil; events are dropped when the
// channel is full.
func (o *Orchestrator) Run(ctx context.Context, job *domain.Job, events chan<- domain.StreamEvent) *domain.Outcome {
	r := &run{
		o:      o,
		job:    job,
		events: events,
		logger: o.logger.WithJob(job.ID()),
		state:  domain.StateIdle,
		start:  time.Now(),
	}

	artifacts, err := r.convert(ctx)
	return r.finish(ctx, artifacts, err)
}

// run is the state of one job.
type run struct {
	o       *Orchestrator
	job     *domain.Job
	events  chan<- domain.StreamEvent
	logger  *observability.Logger
	state   domain.State
	start   time.Time
	session *automation.Session
	plan    cleanup.Plan
	// warnings collects non-fatal problems for the outcome.
	warnings []domain.Warning
}

func (r *run) enter(state domain.State) {
	r.logger.Debug().Str("from", string(r.state)).Str("to", string(state)).Msg("State transition")
	r.state = state
	r.emit(domain.StreamEvent{Type: domain.EventStateChanged, State: state})
}

// emit sends event without blocking.
func (r *run) emit(event domain.StreamEvent) {
	if r.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case r.events <- event:
	default:
		r.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
	}
}

func (r *run) warn(w domain.Warning) {
	r.warnings = append(r.warnings, w)
	r.emit(domain.StreamEvent{Type: domain.EventWarning, State: w.Stage, Payload: w})
}

// convert runs every stage up to, not including, cleanup.
func (r *run) convert(ctx context.Context) ([]string, error) {
	if err := r.preflight(); err != nil {
		return nil, err
	}

	app, err := r.application()
	if err != nil {
		return nil, err
	}
	session, err := automation.Acquire(app)
	if err != nil {
		return nil, err
	}
	r.session = session

	automationCtx := ctx
	if timeout := r.o.cfg.AutomationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		automationCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r.enter(domain.StateOpening)
	r.logger.Info().Str("source", r.job.SourcePath()).Str("application", app.Name()).Msg("Opening document")
	if _, err := session.Open(automationCtx, r.job.SourcePath()); err != nil {
		return nil, err
	}

	if r.job.Mode() == domain.ModeSlideBatch {
		return r.convertSlides(ctx, automationCtx)
	}
	return r.convertPage(ctx, automationCtx)
}

func (r *run) preflight() error {
	if goos := r.o.cfg.Platform(); goos != SupportedPlatform {
		return domain.UnsupportedPlatformError("document applications require macOS, running on " + goos)
	}

	info, err := os.Stat(r.job.SourcePath())
	if err != nil {
		return domain.SourceNotFoundError("source document not found: "+r.job.SourcePath(), err)
	}
	if !info.Mode().IsRegular() {
		return domain.SourceNotFoundError(r.job.SourcePath()+" is not a regular file", nil)
	}

	dir := r.job.OutputDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return domain.OutputFailedError("create output directory", err)
		}
		r.plan.AddEmptyDir(dir)
		r.logger.Debug().Str("dir", dir).Msg("Created output directory")
	}
	return nil
}

func (r *run) application() (automation.Application, error) {
	app := r.o.cfg.Word
	if r.job.Mode() == domain.ModeSlideBatch {
		app = r.o.cfg.Keynote
	}
	if app == nil {
		return nil, domain.AutomationUnavailableError("no application configured for "+string(r.job.Mode())+" jobs", nil)
	}
	return app, nil
}

// convertPage exports through automationCtx and converts through ctx.
func (r *run) convertPage(ctx, automationCtx context.Context) ([]string, error) {
	dir := r.job.OutputDir()
	name := r.job.OutputName()
	tempPDF := filepath.Join(dir, name+tempPDFSuffix)
	candidate := filepath.Join(dir, name+candidateSuffix+"."+r.job.Extension())
	r.plan.AddFile(tempPDF)

	r.enter(domain.StateExporting)
	if err := r.session.Export(automationCtx, tempPDF, automation.ExportOptions{Format: automation.ExportPDF}); err != nil {
		return nil, err
	}

	r.enter(domain.StateLocating)
	found, err := locate.Find(dir, locate.Name(filepath.Base(tempPDF)))
	if err != nil {
		return nil, err
	}
	pdf := found.Files[0]
	if found.Subdir != "" {
		r.plan.AddFile(pdf)
		r.plan.AddScratchDir(found.Subdir)
	}

	r.enter(domain.StateConverting)
	r.plan.AddFile(candidate)
	r.plan.AddFile(raster.Previews(pdf, dir)...)
	res, err := r.o.cfg.PageChain.Convert(ctx, raster.Request{
		Input:  pdf,
		Output: candidate,
		DPI:    r.job.DPI(),
		Format: r.job.Format(),
		Kind:   raster.KindPage,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Attempts) > 1 {
		r.logger.Info().Str("strategy", res.Strategy).Int("attempts", len(res.Attempts)).Msg("Converted with fallback")
	}

	r.enter(domain.StateNormalizing)
	final, err := naming.Page(candidate, dir, name, r.job.Extension())
	if err != nil {
		return nil, err
	}
	return []string{final}, nil
}

func (r *run) convertSlides(ctx, automationCtx context.Context) ([]string, error) {
	dir := r.job.OutputDir()
	staging := filepath.Join(dir, tiffStagingDir)
	format := automation.ExportTIFF
	matcher := locate.TIFFFrames
	if r.job.Direct() {
		staging = filepath.Join(dir, jpegStagingDir)
		format = automation.ExportJPEG
		matcher = locate.JPEGFrames
	}

	r.enter(domain.StateExporting)
	existing, err := r.staging(staging)
	if err != nil {
		return nil, err
	}
	if err := r.session.Export(automationCtx, staging, automation.ExportOptions{Format: format}); err != nil {
		return nil, err
	}

	r.enter(domain.StateLocating)
	found, err := locate.Find(staging, matcher)
	if err != nil {
		return nil, err
	}
	switch {
	case existing == nil:
		// The whole staging tree is ours.
	case found.Subdir != "" && !existing[filepath.Base(found.Subdir)]:
		r.plan.AddTree(found.Subdir)
	default:
		r.plan.AddFile(found.Files...)
		if !r.job.Direct() {
			for _, f := range found.Files {
				r.plan.AddFile(raster.FrameOutput(f, r.job.Format()))
			}
		}
	}
	r.logger.Info().Int("frames", len(found.Files)).Str("dir", filepath.Dir(found.Files[0])).Msg("Located exported frames")

	r.enter(domain.StateConverting)
	entries, err := r.frames(ctx, found.Files)
	if err != nil {
		return nil, err
	}

	r.enter(domain.StateNormalizing)
	finals, err := naming.Slides(entries, dir, r.job.Extension())
	if err != nil {
		// Partially renamed slides are removed with the intermediates.
		r.plan.AddFile(finals...)
		return nil, err
	}
	return finals, nil
}

// staging prepares the export directory. A directory created here is
// removed whole at cleanup and nil is returned; otherwise the names already
// in it are returned so only the job's own entries are removed.
func (r *run) staging(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err == nil {
		existing := make(map[string]bool, len(entries))
		for _, e := range entries {
			existing[e.Name()] = true
		}
		r.logger.Debug().Str("dir", dir).Int("entries", len(entries)).Msg("Reusing existing staging directory")
		return existing, nil
	}
	if !os.IsNotExist(err) {
		return nil, domain.OutputFailedError("read staging directory", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.OutputFailedError("create staging directory", err)
	}
	r.plan.AddTree(dir)
	return nil, nil
}

// frames converts the located frames, or passes them through untouched for
// direct exports.
func (r *run) frames(ctx context.Context, files []string) ([]naming.Entry, error) {
	total := len(files)
	entries := make([]naming.Entry, 0, total)

	if r.job.Direct() {
		for i, f := range files {
			entries = append(entries, naming.Entry{Order: i, Path: f})
			r.emit(domain.StreamEvent{Type: domain.EventFrameConverted, State: r.state, Frame: i + 1, TotalFrames: total, Payload: filepath.Base(f)})
		}
		return entries, nil
	}

	res, err := r.o.cfg.FrameChain.ConvertFrames(ctx, files, r.job.DPI(), r.job.Format(),
		func(index, total int, source string, err error) {
			event := domain.StreamEvent{State: r.state, Frame: index + 1, TotalFrames: total, Payload: filepath.Base(source)}
			if err != nil {
				event.Type = domain.EventFrameSkipped
				r.emit(event)
				r.warn(domain.Warning{
					Stage:   domain.StateConverting,
					Kind:    domain.KindRasterToolFailed,
					Message: "frame " + filepath.Base(source) + " skipped: " + err.Error(),
				})
				return
			}
			event.Type = domain.EventFrameConverted
			r.emit(event)
		})
	if err != nil {
		return nil, err
	}
	for _, f := range res.Converted {
		entries = append(entries, naming.Entry{Order: f.Index, Path: f.Output})
	}
	return entries, nil
}

// finish releases the application, runs cleanup and builds the outcome.
func (r *run) finish(ctx context.Context, artifacts []string, err error) *domain.Outcome {
	failedIn := r.state
	r.enter(domain.StateCleaningUp)

	if r.session != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		if rerr := r.session.Release(releaseCtx); rerr != nil {
			r.logger.Warn().Err(rerr).Msg("Failed to close document")
		}
		cancel()
	}

	warnings, cerr := r.plan.Run(r.logger)
	for _, w := range warnings {
		r.warn(w)
	}
	if cerr != nil {
		r.logger.Warn().Err(cerr).Int("failures", len(warnings)).Msg("Cleanup incomplete")
	}

	outcome := &domain.Outcome{
		JobID:    r.job.ID(),
		Warnings: r.warnings,
		Duration: time.Since(r.start),
	}

	if err != nil {
		failure := asFailure(err, failedIn)
		outcome.State = domain.StateFailed
		outcome.Failure = failure
		r.enter(domain.StateFailed)
		r.logger.Error().
			Str("kind", string(failure.Kind)).
			Str("failed_stage", string(failure.Stage)).
			Str("diagnostic", failure.Diagnostic).
			Err(failure).
			Msg("Conversion failed")
		return outcome
	}

	outcome.State = domain.StateSucceeded
	outcome.Artifacts = artifacts
	r.enter(domain.StateSucceeded)
	r.logger.Info().
		Int("artifacts", len(artifacts)).
		Int("warnings", len(outcome.Warnings)).
		Dur("duration", outcome.Duration).
		Msg("Conversion succeeded")
	return outcome
}

// asFailure returns err as a domain error tagged with the stage it surfaced
// in.
func asFailure(err error, stage domain.State) *domain.Error {
	if de, ok := domain.AsError(err); ok {
		return de.WithStage(stage)
	}

	var kind domain.ErrorKind
	switch stage {
	case domain.StateOpening, domain.StateExporting:
		kind = domain.KindExportFailed
	case domain.StateLocating:
		kind = domain.KindArtifactNotFound
	case domain.StateConverting:
		kind = domain.KindRasterToolFailed
	default:
		kind = domain.KindOutputFailed
	}
	return domain.NewError(kind, "conversion failed", err).WithStage(stage)
}
