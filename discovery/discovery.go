// Package discovery enumerates candidate feature files from configured
// resource roots and derives each file's logical name.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/cukefork/cukefork/types"
)

// WalkFunc enumerates files under root, calling fn with each regular file's
// path. Injected so discovery stays a pure function over an explicit file
// enumeration collaborator.
type WalkFunc func(root string, fn func(path string) error) error

// Discoverer finds feature files under a set of resource roots.
type Discoverer struct {
	log  log.Logger
	walk WalkFunc
}

// New creates a Discoverer backed by the real filesystem.
func New(logger log.Logger) *Discoverer {
	return NewWithWalker(logger, walkFiles)
}

// NewWithWalker creates a Discoverer with a custom file enumerator.
func NewWithWalker(logger log.Logger, walk WalkFunc) *Discoverer {
	if logger == nil {
		logger = log.New()
	}
	return &Discoverer{
		log:  logger.New("component", "discovery"),
		walk: walk,
	}
}

// Discover returns the set of feature files under the given resource roots
// that match any of the include patterns. The returned slice is unordered;
// callers must not rely on its order. Roots that do not exist are skipped
// with a warning rather than failing the run.
func (d *Discoverer) Discover(roots []string, patterns []string) ([]types.FeatureFile, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no include patterns configured")
	}

	seen := make(map[string]struct{})
	var features []types.FeatureFile

	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve resource root %q: %w", root, err)
		}
		if _, err := os.Stat(absRoot); os.IsNotExist(err) {
			d.log.Warn("Resource root does not exist, skipping", "root", absRoot)
			continue
		}

		err = d.walk(absRoot, func(p string) error {
			if !strings.HasSuffix(p, types.FeatureExtension) {
				return nil
			}
			rel, err := filepath.Rel(absRoot, p)
			if err != nil {
				return err
			}
			if !matchAny(patterns, filepath.ToSlash(rel)) {
				return nil
			}
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			if _, dup := seen[abs]; dup {
				return nil
			}
			seen[abs] = struct{}{}
			features = append(features, types.FeatureFile{
				Path: abs,
				Name: LogicalName(abs, roots),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource root %q: %w", absRoot, err)
		}
	}

	d.log.Debug("Feature discovery complete", "roots", len(roots), "features", len(features))
	return features, nil
}

// LogicalName derives the package-like name for a feature file: the path
// relative to the resource root containing it, with separators replaced by
// dots and the feature extension dropped. Falls back to the bare file name
// when no configured root contains the file.
func LogicalName(featurePath string, roots []string) string {
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, featurePath)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = strings.TrimSuffix(filepath.ToSlash(rel), types.FeatureExtension)
		return strings.ReplaceAll(rel, "/", ".")
	}
	base := filepath.Base(featurePath)
	return strings.TrimSuffix(base, types.FeatureExtension)
}

// walkFiles is the production WalkFunc.
func walkFiles(root string, fn func(path string) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return fn(p)
	})
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

// matchGlob matches a slash-separated relative path against a glob pattern.
// Beyond path.Match semantics, a "**" segment matches any number of path
// segments, including none.
func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == "**" {
		// Try consuming zero or more name segments.
		for skip := 0; skip <= len(name); skip++ {
			if matchSegments(pattern[1:], name[skip:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], name[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], name[1:])
}
