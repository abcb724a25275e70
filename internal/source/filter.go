package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sink receives paths that passed the filter. It may be called from several
// goroutines at once.
type Sink func(ctx context.Context, path string)

// temporarySuffixes mark files that are still being written by their producer.
var temporarySuffixes = []string{".part", ".tmp", ".partial", ".crdownload", "~"}

// Filter decides which paths under root are items.
type Filter struct {
	root    string
	include []string
	exclude []string
}

// NewFilter validates include and exclude globs. Patterns use doublestar
// syntax and are matched against slash-separated paths relative to root.
func NewFilter(root string, include, exclude []string) (*Filter, error) {
	for _, pattern := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return &Filter{root: filepath.Clean(root), include: include, exclude: exclude}, nil
}

// Root returns the directory the filter is anchored at.
func (f *Filter) Root() string { return f.root }

// Match reports whether the file at path should be ingested.
func (f *Filter) Match(path string) bool {
	rel, ok := f.relative(path)
	if !ok || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	base := filepath.Base(path)
	for _, suffix := range temporarySuffixes {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	for _, pattern := range f.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// SkipDir reports whether a directory below root should not be descended
// into: hidden directories (including in-progress ".name" output) and
// directories matched by an exclude pattern.
func (f *Filter) SkipDir(path string) bool {
	rel, ok := f.relative(path)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	for _, pattern := range f.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

func (f *Filter) relative(path string) (string, bool) {
	rel, err := filepath.Rel(f.root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
