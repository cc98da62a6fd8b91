package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoWorkflows indicates that no workflow files were found during discovery.
var ErrNoWorkflows = errors.New("no workflows discovered")

// Pattern matches workflow files below the repository root, including
// nested directories.
const Pattern = ".github/workflows/**/*.{yml,yaml}"

// Workflows returns workflow file paths relative to root. If explicit paths are
// provided they are validated and returned in the order given. Otherwise
// Pattern is matched and results are sorted lexicographically.
func Workflows(root string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return resolveExplicit(root, explicit)
	}

	matches, err := doublestar.Glob(os.DirFS(root), Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", Pattern, err)
	}
	if len(matches) == 0 {
		return nil, ErrNoWorkflows
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.FromSlash(m))
	}
	sort.Strings(paths)
	return paths, nil
}

// resolveExplicit checks each path and returns it relative to root, keeping
// the first occurrence of duplicates.
func resolveExplicit(root string, explicit []string) ([]string, error) {
	var resolved []string
	for _, input := range explicit {
		full := input
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, full)
		}
		if err := checkFile(input, full); err != nil {
			return nil, err
		}
		if rel := relOrClean(root, full); !slices.Contains(resolved, rel) {
			resolved = append(resolved, rel)
		}
	}
	if len(resolved) == 0 {
		return nil, ErrNoWorkflows
	}
	return resolved, nil
}

func checkFile(input, full string) error {
	info, err := os.Stat(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("workflow %q not found: %w", input, fs.ErrNotExist)
	case err != nil:
		return fmt.Errorf("stat %q: %w", input, err)
	case info.IsDir():
		return fmt.Errorf("workflow %q is a directory", input)
	}
	return nil
}

// relOrClean keeps paths outside root absolute.
func relOrClean(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Clean(path)
	}
	return rel
}
