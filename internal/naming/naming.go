// Package naming moves converted files to their final names.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spherical/office-raster/internal/domain"
)

// SlidePrefix starts the final name of every slide.
const SlidePrefix = "slide_"

// PagePath returns the final path of a single page job.
func PagePath(dir, name, ext string) string {
	return filepath.Join(dir, name+"."+ext)
}

// SlidePath returns the final path of the slide at 1-based index.
func SlidePath(dir string, index int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d.%s", SlidePrefix, index, ext))
}

// Page moves candidate to <dir>/<name>.<ext>, replacing any file already
// there.
func Page(candidate, dir, name, ext string) (string, error) {
	final := PagePath(dir, name, ext)
	if err := move(candidate, final); err != nil {
		return "", err
	}
	return final, nil
}

// Entry is a converted file and the position of the frame it came from.
type Entry struct {
	Order int
	Path  string
}

// Slides moves entries to slide_1.<ext> … slide_k.<ext> in dir, ordered by
// Order. Indices are dense even when frames were skipped.
func Slides(entries []Entry, dir, ext string) ([]string, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	finals := make([]string, 0, len(sorted))
	for i, e := range sorted {
		final := SlidePath(dir, i+1, ext)
		if err := move(e.Path, final); err != nil {
			return finals, err
		}
		finals = append(finals, final)
	}
	return finals, nil
}

func move(from, to string) error {
	if from == to {
		return nil
	}
	if err := os.Rename(from, to); err != nil {
		return domain.OutputFailedError(fmt.Sprintf("rename %s to %s", filepath.Base(from), filepath.Base(to)), err).
			WithStage(domain.StateNormalizing)
	}
	return nil
}
