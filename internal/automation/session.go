package automation

import (
	"context"
	"sync"

	"github.com/spherical/office-raster/internal/domain"
)

// held tracks applications currently driven by a session, by name.
var held = struct {
	sync.Mutex
	names map[string]struct{}
}{names: map[string]struct{}{}}

// Session is the exclusive right to drive one application. At most one
// session per application name exists in the process.
type Session struct {
	app  Application
	doc  *Document
	once sync.Once
}

// Acquire starts a session with app. It fails immediately when another
// session holds the same application.
func Acquire(app Application) (*Session, error) {
	held.Lock()
	defer held.Unlock()
	if _, busy := held.names[app.Name()]; busy {
		return nil, domain.AutomationUnavailableError(app.Name()+" is busy with another job", nil).
			WithStage(domain.StateOpening)
	}
	held.names[app.Name()] = struct{}{}
	return &Session{app: app}, nil
}

// Application returns the application driven by the session.
func (s *Session) Application() Application {
	return s.app
}

// Open opens path in the application. The document is closed by Release.
func (s *Session) Open(ctx context.Context, path string) (*Document, error) {
	doc, err := s.app.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return doc, nil
}

// Export exports the session's open document.
func (s *Session) Export(ctx context.Context, destination string, opts ExportOptions) error {
	if s.doc == nil {
		return domain.ExportFailedError("no document is open", nil).WithStage(domain.StateExporting)
	}
	return s.app.Export(ctx, s.doc, destination, opts)
}

// Release closes any open document and frees the application for the next
// session. Safe to call more than once. The returned error is the close
// failure, if any; the application is freed regardless.
func (s *Session) Release(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		if s.doc != nil {
			err = s.app.Close(ctx, s.doc)
		}
		held.Lock()
		delete(held.names, s.app.Name())
		held.Unlock()
	})
	return err
}
