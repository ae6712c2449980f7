package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/spherical/office-raster/internal/domain"
)

// Producer writes the artifact of a fake export into destination.
type Producer func(destination string, opts ExportOptions) error

// Fake is an Application that writes scripted artifacts instead of driving a
// real application. Used by tests.
type Fake struct {
	AppName   string
	OpenErr   error
	ExportErr error
	CloseErr  error
	// Produce is called by Export. A nil Produce exports nothing.
	Produce Producer
	// Delay is how long Open and Export each take.
	Delay time.Duration

	mu    sync.Mutex
	calls []string
}

// NewFake returns a fake application named name that exports with produce.
func NewFake(name string, produce Producer) *Fake {
	return &Fake{AppName: name, Produce: produce}
}

func (f *Fake) Name() string {
	if f.AppName == "" {
		return "Fake"
	}
	return f.AppName
}

func (f *Fake) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns the operations performed so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// wait sleeps for Delay, failing like the scripted applications when ctx
// ends first.
func (f *Fake) wait(ctx context.Context, step string) error {
	if f.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.AutomationTimeoutError(f.Name()+" did not answer in time", ctx.Err()).WithStage(stageOf(step))
		}
		return domain.ExportFailedError(f.Name()+" interrupted", ctx.Err()).WithStage(stageOf(step))
	}
}

func (f *Fake) Open(ctx context.Context, path string) (*Document, error) {
	f.record("open %s", path)
	if err := f.wait(ctx, stepOpen); err != nil {
		return nil, err
	}
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return &Document{Path: path}, nil
}

func (f *Fake) Export(ctx context.Context, doc *Document, destination string, opts ExportOptions) error {
	f.record("export %s %s", destination, opts.Format)
	if err := f.wait(ctx, stepExport); err != nil {
		return err
	}
	if f.ExportErr != nil {
		return f.ExportErr
	}
	if f.Produce == nil {
		return nil
	}
	return f.Produce(destination, opts)
}

func (f *Fake) Close(_ context.Context, doc *Document) error {
	f.record("close %s", doc.Path)
	if f.CloseErr != nil {
		return f.CloseErr
	}
	doc.closed = true
	return nil
}

// WriteFile returns a Producer writing content to the destination path.
func WriteFile(content []byte) Producer {
	return func(destination string, _ ExportOptions) error {
		if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
			return errors.Wrap(err, "create export directory")
		}
		return errors.Wrap(os.WriteFile(destination, content, 0644), "write export")
	}
}

// WriteFrames returns a Producer writing one file per frame into the
// destination directory, or into subdir below it when subdir is not empty.
// Frames are named <stem>.001.<ext>, <stem>.002.<ext>, and so on, with ext
// derived from the export format.
func WriteFrames(stem, subdir string, frames ...[]byte) Producer {
	return func(destination string, opts ExportOptions) error {
		dir := destination
		if subdir != "" {
			dir = filepath.Join(destination, subdir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create frame directory")
		}
		ext := "tiff"
		if opts.Format == ExportJPEG {
			ext = "jpeg"
		}
		for i, frame := range frames {
			name := filepath.Join(dir, fmt.Sprintf("%s.%03d.%s", stem, i+1, ext))
			if err := os.WriteFile(name, frame, 0644); err != nil {
				return errors.Wrapf(err, "write frame %d", i+1)
			}
		}
		return nil
	}
}

var _ Application = (*Fake)(nil)
