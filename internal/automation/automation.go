// Package automation drives document applications through their scripting
// bridge to export intermediate artifacts.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/office-raster/internal/observability"
)

// ExportFormat is the file type an application is asked to export.
type ExportFormat string

const (
	ExportPDF  ExportFormat = "PDF"
	ExportTIFF ExportFormat = "TIFF"
	ExportJPEG ExportFormat = "JPEG"
)

// ExportOptions controls a single export.
type ExportOptions struct {
	Format ExportFormat
}

// Document is a handle to a document opened by an Application.
type Document struct {
	Path string
	// closed is set once the application reported the document closed.
	closed bool
}

// Closed reports whether the application already closed the document.
func (d *Document) Closed() bool {
	return d.closed
}

func (d *Document) String() string {
	return fmt.Sprintf("document(%s)", d.Path)
}

// Application is an external document application that can export a
// document to an intermediate artifact.
type Application interface {
	// Name returns the application name used for scripting.
	Name() string
	// Open prepares path for export and verifies the application answers.
	Open(ctx context.Context, path string) (*Document, error)
	// Export writes the artifact for doc into destination, a file for PDF
	// exports or a directory for frame exports.
	Export(ctx context.Context, doc *Document, destination string, opts ExportOptions) error
	// Close closes doc without saving changes. Best effort.
	Close(ctx context.Context, doc *Document) error
}

// Options configures the scripted applications.
type Options struct {
	// OSAScript is the path of the script runner.
	OSAScript string
	// Timeout bounds each call to the application. Callers bound a whole
	// open and export sequence with their context.
	Timeout time.Duration
	// Application overrides the default application name.
	Application string
	Logger      *observability.Logger
}

func (o Options) withDefaults(appName string) Options {
	if o.OSAScript == "" {
		o.OSAScript = "osascript"
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.Application == "" {
		o.Application = appName
	}
	if o.Logger == nil {
		o.Logger = observability.Nop()
	}
	return o
}
