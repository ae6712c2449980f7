// Package officeraster converts office documents to raster images by driving
// Microsoft Word or Keynote and post-processing their exports.
package officeraster

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/office-raster/internal/automation"
	"github.com/spherical/office-raster/internal/config"
	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
	"github.com/spherical/office-raster/internal/observability"
	"github.com/spherical/office-raster/internal/pipeline"
	"github.com/spherical/office-raster/internal/raster"
)

// Re-export domain types for the public API
type (
	Job         = domain.Job
	JobSpec     = domain.JobSpec
	Outcome     = domain.Outcome
	Warning     = domain.Warning
	Error       = domain.Error
	ErrorKind   = domain.ErrorKind
	StreamEvent = domain.StreamEvent
	EventType   = domain.EventType
	Format      = domain.Format
	Mode        = domain.Mode
	State       = domain.State
)

// Event type constants
const (
	EventStateChanged   = domain.EventStateChanged
	EventFrameConverted = domain.EventFrameConverted
	EventFrameSkipped   = domain.EventFrameSkipped
	EventWarning        = domain.EventWarning
	EventComplete       = domain.EventComplete
)

// ModeAuto infers the mode from the source extension.
const ModeAuto = "auto"

// Default output directory suffixes for slide decks.
const (
	slidesDirSuffix       = "_images_hq"
	directSlidesDirSuffix = "_images"
)

// Options is a conversion request before defaults are applied. Zero values
// select the configured defaults.
type Options struct {
	Source     string
	OutputDir  string
	OutputName string
	DPI        int
	Format     string
	// Mode is "auto", "page" or "slides".
	Mode   string
	Direct bool
}

// Client runs conversions with one configuration.
type Client struct {
	cfg           *config.Config
	logger        *observability.Logger
	orchestrator  *pipeline.Orchestrator
	executableDir func() (string, error)
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	word, keynote automation.Application
	platform      func() string
	logger        *observability.Logger
	executableDir func() (string, error)
}

// WithApplications replaces the scripted Word and Keynote applications.
func WithApplications(word, keynote automation.Application) Option {
	return func(o *clientOptions) {
		o.word = word
		o.keynote = keynote
	}
}

// WithPlatform overrides the detected operating system.
func WithPlatform(platform func() string) Option {
	return func(o *clientOptions) { o.platform = platform }
}

// WithLogger sets the logger for every component.
func WithLogger(logger *observability.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithExecutableDir overrides the default output directory of single page
// jobs.
func WithExecutableDir(fn func() (string, error)) Option {
	return func(o *clientOptions) { o.executableDir = fn }
}

// NewClient creates a client from cfg. A nil cfg uses config.DefaultConfig.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := clientOptions{executableDir: executableDir}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.Nop()
	}

	appOpts := automation.Options{
		OSAScript: cfg.Automation.OSAScriptPath,
		Timeout:   cfg.Automation.Timeout,
		Logger:    o.logger,
	}
	if o.word == nil {
		wordOpts := appOpts
		wordOpts.Application = cfg.Automation.WordApplication
		o.word = automation.NewWord(wordOpts)
	}
	if o.keynote == nil {
		keynoteOpts := appOpts
		keynoteOpts.Application = cfg.Automation.KeynoteApplication
		o.keynote = automation.NewKeynote(keynoteOpts)
	}

	pageChain, frameChain := Chains(cfg, o.logger)
	return &Client{
		cfg:    cfg,
		logger: o.logger,
		orchestrator: pipeline.New(pipeline.Config{
			Word:              o.word,
			Keynote:           o.keynote,
			PageChain:         pageChain,
			FrameChain:        frameChain,
			AutomationTimeout: cfg.Automation.Timeout,
			Logger:            o.logger,
			Platform:          o.platform,
		}),
		executableDir: o.executableDir,
	}
}

// Chains builds the page and frame raster chains described by cfg.
func Chains(cfg *config.Config, logger *observability.Logger) (page, frame *raster.Chain) {
	sips := &raster.Sips{
		Path:              cfg.Raster.SipsPath,
		PageMaxDimension:  cfg.Raster.PageMaxDimension,
		FrameMaxDimension: cfg.Raster.FrameMaxDimension,
		Timeout:           cfg.Raster.ToolTimeout,
	}

	assumed := raster.AssumedPageLength(cfg.Raster.AssumedPageLengthInches)
	var geometry raster.PageGeometry = assumed
	if cfg.Raster.ProbePageGeometry {
		geometry = raster.FitzGeometry{Fallback: assumed}
	}

	strategies := []raster.Strategy{
		sips,
		&raster.QuickLook{
			Path:     cfg.Raster.QLManagePath,
			Timeout:  cfg.Raster.ToolTimeout,
			Encoder:  sips,
			Geometry: geometry,
			Logger:   logger,
		},
	}
	if cfg.Raster.InProcessFallback {
		strategies = append(strategies, &raster.MuPDF{MaxDimension: cfg.Raster.PageMaxDimension})
	}
	return raster.NewChain(logger, strategies...), raster.NewChain(logger, sips)
}

// Resolve applies defaults to opts and validates the resulting job.
func (c *Client) Resolve(opts Options) (*Job, error) {
	if strings.TrimSpace(opts.Source) == "" {
		return nil, domain.InvalidJobError("source path is required")
	}

	mode, err := c.mode(opts)
	if err != nil {
		return nil, err
	}

	format := domain.Format(c.cfg.Defaults.Format)
	if opts.Format != "" {
		format = domain.Format(opts.Format)
	}
	format, err = domain.ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	dpi := opts.DPI
	if dpi == 0 {
		dpi = c.cfg.Defaults.DPI
	}

	stem := domain.SourceStem(opts.Source)
	name := opts.OutputName
	if name == "" {
		name = stem
	}

	dir := opts.OutputDir
	if dir == "" {
		dir, err = c.defaultDir(mode, stem, opts.Direct)
		if err != nil {
			return nil, err
		}
	}

	return domain.NewJob(domain.JobSpec{
		SourcePath: opts.Source,
		OutputDir:  dir,
		OutputName: name,
		DPI:        dpi,
		Format:     format,
		Mode:       mode,
		Direct:     opts.Direct,
	})
}

func (c *Client) mode(opts Options) (domain.Mode, error) {
	switch strings.ToLower(opts.Mode) {
	case "", ModeAuto:
		return domain.InferMode(opts.Source)
	case string(domain.ModeSinglePage):
		return domain.ModeSinglePage, nil
	case string(domain.ModeSlideBatch):
		return domain.ModeSlideBatch, nil
	default:
		return "", domain.InvalidJobError("unsupported mode " + opts.Mode + " (want auto, page or slides)")
	}
}

func (c *Client) defaultDir(mode domain.Mode, stem string, direct bool) (string, error) {
	if mode == domain.ModeSlideBatch {
		if direct {
			return stem + directSlidesDirSuffix, nil
		}
		return stem + slidesDirSuffix, nil
	}
	if c.cfg.Output.DefaultDir != "" {
		return c.cfg.Output.DefaultDir, nil
	}
	dir, err := c.executableDir()
	if err != nil {
		return "", domain.NewError(domain.KindInvalidJob, "locate executable directory", err)
	}
	return dir, nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// Run executes a resolved job and returns its outcome.
func (c *Client) Run(ctx context.Context, job *Job, events chan<- StreamEvent) *Outcome {
	c.logger.WithJob(job.ID()).Info().
		Str("source", job.SourcePath()).
		Str("mode", string(job.Mode())).
		Int("dpi", job.DPI()).
		Str("format", string(job.Format())).
		Str("output_dir", job.OutputDir()).
		Msg("Starting conversion")
	return c.orchestrator.Run(ctx, job, events)
}

// Convert resolves opts and runs the job. The error is non-nil only when
// opts do not describe a valid job; conversion failures are reported on the
// outcome.
func (c *Client) Convert(ctx context.Context, opts Options) (*Outcome, error) {
	job, err := c.Resolve(opts)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, job, nil), nil
}

// Process starts job and returns a channel that streams its events. The last
// event is EventComplete carrying the *Outcome; the channel is then closed.
func (c *Client) Process(ctx context.Context, job *Job) <-chan StreamEvent {
	eventCh := make(chan StreamEvent, 100)

	go func() {
		defer close(eventCh)
		outcome := c.Run(ctx, job, eventCh)
		eventCh <- StreamEvent{
			Type:      EventComplete,
			State:     outcome.State,
			Payload:   outcome,
			Timestamp: time.Now(),
		}
	}()

	return eventCh
}

// Tool is an external program the conversions depend on.
type Tool struct {
	Name string
	Path string
	Err  error
}

// Tools reports where the configured external programs are found.
func (c *Client) Tools() []Tool {
	names := []string{c.cfg.Automation.OSAScriptPath, c.cfg.Raster.SipsPath, c.cfg.Raster.QLManagePath}
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		path, err := exec.LookPath(name)
		tools = append(tools, Tool{Name: name, Path: path, Err: err})
	}
	return tools
}
