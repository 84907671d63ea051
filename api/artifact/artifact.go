// Package artifact enumerates the deployable files under a build root.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"quickdeploy/api/model"
)

var ErrNoArtifacts = errors.New("no deployable files found")

// Version control metadata and dependency caches are never published.
var excludedDirs = map[string]bool{
	".git":             true,
	".hg":              true,
	".svn":             true,
	"node_modules":     true,
	"bower_components": true,
	".yarn":            true,
	".pnpm-store":      true,
}

var excludedSuffixes = []string{".tar.gz", ".tgz", ".zip"}

// List walks root and returns every deployable file keyed by its
// slash-separated path relative to root.
func List(root string) (model.ArtifactSet, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	realRoot, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	set := model.ArtifactSet{}
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != abs && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if excludedFile(d.Name()) {
			return nil
		}
		if !d.Type().IsRegular() {
			// Only symlinks that resolve to regular files inside root
			// are published.
			if !linkInside(realRoot, p) {
				return nil
			}
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		set[filepath.ToSlash(rel)] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	if len(set) == 0 {
		return nil, ErrNoArtifacts
	}
	return set, nil
}

func excludedFile(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range excludedSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func linkInside(root, p string) bool {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	fi, err := os.Stat(resolved)
	return err == nil && fi.Mode().IsRegular()
}
