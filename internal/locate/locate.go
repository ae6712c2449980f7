// Package locate finds the artifacts an application exported.
package locate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spherical/office-raster/internal/domain"
)

// Matcher reports whether a file name is a wanted artifact.
type Matcher func(name string) bool

// Name matches exactly one file name, ignoring case.
func Name(name string) Matcher {
	return func(candidate string) bool {
		return strings.EqualFold(candidate, name)
	}
}

// Extensions matches file names ending in any of exts (".tiff", ".tif"),
// ignoring case.
func Extensions(exts ...string) Matcher {
	return func(candidate string) bool {
		ext := filepath.Ext(candidate)
		for _, want := range exts {
			if strings.EqualFold(ext, want) {
				return true
			}
		}
		return false
	}
}

// Frame matchers for the two frame formats a presentation exports.
var (
	TIFFFrames = Extensions(".tiff", ".tif")
	JPEGFrames = Extensions(".jpg", ".jpeg")
)

// Result lists the located files.
type Result struct {
	// Files are absolute paths in lexicographic order.
	Files []string
	// Subdir is the subdirectory the files were found in, or "" when they
	// were directly in the searched directory.
	Subdir string
}

// Find lists dir for files accepted by match. When dir holds none it
// descends into its first subdirectory by name and looks there. It does not
// recurse further.
func Find(dir string, match Matcher) (*Result, error) {
	files, subdirs, err := scan(dir, match)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		return &Result{Files: files}, nil
	}

	if len(subdirs) > 0 {
		sub := subdirs[0]
		files, _, err = scan(sub, match)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			return &Result{Files: files, Subdir: sub}, nil
		}
	}

	return nil, domain.ArtifactNotFoundError("no exported artifact in " + dir).WithStage(domain.StateLocating)
}

// scan returns the matching files and the subdirectories of dir, both sorted.
func scan(dir string, match Matcher) ([]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, domain.ArtifactNotFoundError(dir + " does not exist").WithStage(domain.StateLocating)
		}
		return nil, nil, domain.NewError(domain.KindArtifactNotFound, "read "+dir, err).
			WithStage(domain.StateLocating)
	}

	var files, subdirs []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		switch {
		case e.IsDir():
			subdirs = append(subdirs, path)
		case e.Type().IsRegular() && match(e.Name()):
			files = append(files, path)
		}
	}
	sort.Strings(files)
	sort.Strings(subdirs)
	return files, subdirs, nil
}
