// Package cleanup removes the transient files of a conversion job.
package cleanup

import (
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/observability"
)

// ItemKind says how an item is removed.
type ItemKind int

const (
	// File is removed with os.Remove.
	File ItemKind = iota
	// Tree is a job-owned directory removed with everything in it.
	Tree
	// ScratchDir is a directory the job expects to empty. Anything left in it
	// is reported.
	ScratchDir
	// EmptyDir is removed only when nothing is left in it.
	EmptyDir
)

func (k ItemKind) String() string {
	switch k {
	case File:
		return "file"
	case Tree:
		return "tree"
	case ScratchDir:
		return "scratch-dir"
	case EmptyDir:
		return "empty-dir"
	}
	return "unknown"
}

// Item is one path to remove.
type Item struct {
	Path string
	Kind ItemKind
}

// Plan collects the items a job must remove. The zero value is ready to use.
type Plan struct {
	items []Item
	seen  map[string]bool
}

func (p *Plan) add(path string, kind ItemKind) {
	if path == "" {
		return
	}
	if p.seen == nil {
		p.seen = map[string]bool{}
	}
	if p.seen[path] {
		return
	}
	p.seen[path] = true
	p.items = append(p.items, Item{Path: path, Kind: kind})
}

// AddFile schedules paths for removal.
func (p *Plan) AddFile(paths ...string) {
	for _, path := range paths {
		p.add(path, File)
	}
}

// AddTree schedules a directory and its contents for removal.
func (p *Plan) AddTree(path string) { p.add(path, Tree) }

// AddScratchDir schedules a directory for removal once the job's files in it
// are gone. A directory that still holds anything is kept and reported.
func (p *Plan) AddScratchDir(path string) { p.add(path, ScratchDir) }

// AddEmptyDir schedules a directory for removal if it ends up empty.
func (p *Plan) AddEmptyDir(path string) { p.add(path, EmptyDir) }

// Items returns the items in removal order: files, then trees, then scratch
// and empty directories. Directories of one kind go deepest first.
func (p *Plan) Items() []Item {
	items := make([]Item, len(p.items))
	copy(items, p.items)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		if items[i].Kind == File {
			return false
		}
		return len(items[i].Path) > len(items[j].Path)
	})
	return items
}

// Run removes every item independently. Missing items are ignored. Each
// failure becomes one warning; the returned error aggregates them and is
// nil when everything was removed.
func (p *Plan) Run(logger *observability.Logger) ([]domain.Warning, error) {
	if logger == nil {
		logger = observability.Nop()
	}

	var warnings []domain.Warning
	var result *multierror.Error
	for _, item := range p.Items() {
		err := remove(item)
		if err == nil {
			continue
		}
		logger.Warn().Str("path", item.Path).Str("kind", item.Kind.String()).Err(err).Msg("Cleanup failed")
		werr := domain.CleanupWarningError("could not remove "+item.Path, err).WithStage(domain.StateCleaningUp)
		warnings = append(warnings, domain.Warning{
			Stage:   domain.StateCleaningUp,
			Kind:    domain.KindCleanupWarning,
			Message: werr.Error(),
		})
		result = multierror.Append(result, werr)
	}
	return warnings, result.ErrorOrNil()
}

func remove(item Item) error {
	var err error
	switch item.Kind {
	case File:
		err = os.Remove(item.Path)
	case Tree:
		err = os.RemoveAll(item.Path)
	case ScratchDir, EmptyDir:
		entries, rerr := os.ReadDir(item.Path)
		if rerr != nil {
			err = rerr
			break
		}
		if len(entries) > 0 {
			if item.Kind == EmptyDir {
				return nil
			}
			return errors.Errorf("%d unexpected entries left, first %s", len(entries), entries[0].Name())
		}
		err = os.Remove(item.Path)
	}
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.WithStack(err)
}
