// Package walker enumerates the regular files under a directory tree.
package walker

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tutu-network/pfp/internal/domain"
)

// Walker collects file paths recursively. Entries that cannot be read
// are logged and skipped; they never abort their siblings.
type Walker struct {
	// Extensions restricts results to these suffixes (".txt"). Empty means all.
	Extensions []string
	// SkipHidden ignores files and directories whose name starts with ".".
	SkipHidden bool

	log *slog.Logger
}

// New returns a Walker that logs skipped entries to l.
func New(l *slog.Logger) *Walker {
	if l == nil {
		l = slog.Default()
	}
	return &Walker{log: l.With("component", "walker")}
}

// Walk returns every matching regular file under root in lexical order.
// A root that is missing or not a directory is an error.
func (w *Walker) Walk(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, domain.ErrNotDirectory)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("skipping unreadable entry", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != root && w.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !w.isFile(path, d) || !w.matches(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// isFile reports whether d is a regular file, following a symlink to its
// target. Symlinked directories are not descended into.
func (w *Walker) isFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		w.log.Warn("skipping broken symlink", "path", path, "err", err)
		return false
	}
	return info.Mode().IsRegular()
}

func (w *Walker) matches(path string) bool {
	if len(w.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range w.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
