package automation

import (
	"context"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
	"github.com/spherical/office-raster/internal/observability"
)

// scripted is the osascript plumbing shared by Word and Keynote.
type scripted struct {
	opts         Options
	logger       *observability.Logger
	exportScript *template.Template
	closeScript  *template.Template
	formats      []ExportFormat
}

func newScripted(opts Options, defaultName string, export, closeT *template.Template, formats ...ExportFormat) scripted {
	opts = opts.withDefaults(defaultName)
	return scripted{
		opts:         opts,
		logger:       opts.Logger.WithComponent("automation").With().Str("application", opts.Application).Logger(),
		exportScript: export,
		closeScript:  closeT,
		formats:      formats,
	}
}

func (s *scripted) Name() string {
	return s.opts.Application
}

// run executes script and returns its trimmed standard output.
func (s *scripted) run(ctx context.Context, script string) (string, error) {
	out, err := exec.RunStdout(ctx, &exec.Command{
		Name:    s.opts.OSAScript,
		Args:    []string{"-e", script},
		Timeout: s.opts.Timeout,
	})
	return strings.TrimSpace(out), err
}

func (s *scripted) Open(ctx context.Context, path string) (*Document, error) {
	script, err := render(probeTemplate, scriptData{App: s.opts.Application})
	if err != nil {
		return nil, domain.AutomationUnavailableError("build probe script", err).WithStage(domain.StateOpening)
	}

	s.logger.Debug().Str("path", path).Msg("Probing application")
	if _, err := s.run(ctx, script); err != nil {
		return nil, classify(s.opts.Application, stepProbe, exec.Stderr(err), err)
	}
	return &Document{Path: path}, nil
}

func (s *scripted) Export(ctx context.Context, doc *Document, destination string, opts ExportOptions) error {
	if !s.supports(opts.Format) {
		return domain.ExportFailedError(s.opts.Application+" cannot export "+string(opts.Format), nil).
			WithStage(domain.StateExporting)
	}

	script, err := render(s.exportScript, scriptData{
		App:         s.opts.Application,
		Source:      doc.Path,
		Destination: destination,
		ImageFormat: opts.Format,
	})
	if err != nil {
		return domain.ExportFailedError("build export script", err).WithStage(domain.StateExporting)
	}

	s.logger.Info().
		Str("source", doc.Path).
		Str("destination", destination).
		Str("format", string(opts.Format)).
		Msg("Exporting document")

	out, err := s.run(ctx, script)
	if err != nil {
		return classify(s.opts.Application, stepExport, exec.Stderr(err), err)
	}

	reply := ParseReply(out)
	switch {
	case reply.OK:
		doc.closed = true
		return nil
	case reply.Step == stepClose:
		// The artifact was written; Close retries the close.
		s.logger.Warn().Str("reply", out).Msg("Document export finished but close failed")
		return nil
	default:
		return classify(s.opts.Application, reply.Step, out, nil)
	}
}

func (s *scripted) Close(ctx context.Context, doc *Document) error {
	if doc == nil || doc.closed {
		return nil
	}
	script, err := render(s.closeScript, scriptData{
		App:  s.opts.Application,
		Name: filepath.Base(doc.Path),
	})
	if err != nil {
		return err
	}
	if _, err := s.run(ctx, script); err != nil {
		s.logger.Warn().Err(err).Str("path", doc.Path).Msg("Failed to close document")
		return err
	}
	doc.closed = true
	return nil
}

func (s *scripted) supports(f ExportFormat) bool {
	for _, supported := range s.formats {
		if f == supported {
			return true
		}
	}
	return false
}

// Word exports word-processor documents to PDF through Microsoft Word.
type Word struct {
	scripted
}

// NewWord creates a Word application driven through osascript.
func NewWord(opts Options) *Word {
	return &Word{scripted: newScripted(opts, "Microsoft Word", wordExportTemplate, wordCloseTemplate, ExportPDF)}
}

// Keynote exports presentations to slide image frames through Keynote.
type Keynote struct {
	scripted
}

// NewKeynote creates a Keynote application driven through osascript.
func NewKeynote(opts Options) *Keynote {
	return &Keynote{scripted: newScripted(opts, "Keynote", keynoteExportTemplate, keynoteCloseTemplate, ExportTIFF, ExportJPEG)}
}

var (
	_ Application = (*Word)(nil)
	_ Application = (*Keynote)(nil)
)
