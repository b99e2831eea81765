// Package project locates the workspace root enclosing a file.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// DefaultMarkers are the entries whose presence marks a project root. A .git
// file, as in worktrees and submodules, counts as well as a directory.
var DefaultMarkers = []string{".git"}

// FindRoot returns the nearest ancestor of path containing one of the
// markers, starting at path's parent. When no ancestor up to the
// filesystem root has one, the parent of path is returned.
func FindRoot(path string, markers ...string) (string, error) {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	parent := filepath.Dir(abs)

	for dir := parent; ; {
		found, err := hasMarker(dir, markers)
		if err != nil {
			return "", err
		}
		if found {
			return dir, nil
		}

		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}

	return parent, nil
}

func hasMarker(dir string, markers []string) (bool, error) {
	for _, marker := range markers {
		_, err := os.Stat(filepath.Join(dir, marker))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission), errors.Is(err, syscall.ENOTDIR):
			// keep walking
		default:
			return false, fmt.Errorf("checking %s for %s: %w", dir, marker, err)
		}
	}
	return false, nil
}
