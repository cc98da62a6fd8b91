package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgricker/workflowc/internal/workflow"
)

// FileProvider fetches workflow files. Paths are opaque keys that are
// compared case-insensitively.
type FileProvider interface {
	// ResolvePath returns the path of ref. An unqualified ref is relative
	// to the workspace repository.
	ResolvePath(ref workflow.WorkflowRef) (string, error)
	// GetFileContent returns the contents of path. It returns an error
	// wrapping ErrWorkflowNotFound when path does not exist.
	GetFileContent(ctx context.Context, path string) ([]byte, error)
}

// DirectoryProvider serves the workflows of one repository checkout.
// Qualified references point at other repositories and are not found.
type DirectoryProvider struct {
	Root string
	// MaxSize rejects files larger than this many bytes before they are
	// read into memory. Zero means no limit.
	MaxSize int
}

// ResolvePath implements FileProvider.
func (p *DirectoryProvider) ResolvePath(ref workflow.WorkflowRef) (string, error) {
	if ref.Qualified() {
		return ref.String(), nil
	}
	clean := filepath.Clean(filepath.FromSlash(ref.Path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("workflow path %q escapes the repository", ref.Path)
	}
	return filepath.Join(p.Root, clean), nil
}

// GetFileContent implements FileProvider.
func (p *DirectoryProvider) GetFileContent(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(path, "@") {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, path)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if p.MaxSize > 0 {
		if info, err := f.Stat(); err == nil && info.Size() > int64(p.MaxSize) {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrFileTooLarge, path, info.Size())
		}
		r = io.LimitReader(f, int64(p.MaxSize)+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	if p.MaxSize > 0 && len(data) > p.MaxSize {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}
	return data, nil
}

// MapProvider serves files from memory keyed by path. Qualified references
// resolve to their "{owner}/{repo}/{path}@{version}" form.
type MapProvider map[string]string

// ResolvePath implements FileProvider.
func (p MapProvider) ResolvePath(ref workflow.WorkflowRef) (string, error) {
	if ref.Qualified() {
		return ref.String(), nil
	}
	return ref.Path, nil
}

// GetFileContent implements FileProvider.
func (p MapProvider) GetFileContent(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for k, v := range p {
		if strings.EqualFold(k, path) {
			return []byte(v), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, path)
}
