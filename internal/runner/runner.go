// Package runner validates many workflow files concurrently.
package runner

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bgricker/workflowc/internal/filter"
	"github.com/bgricker/workflowc/internal/loader"
	"github.com/bgricker/workflowc/internal/report"
)

// Options configure how the runner loads workflows.
type Options struct {
	// Root is the repository checkout that relative paths resolve against.
	Root   string
	Loader loader.Options
	// Concurrency bounds the number of files loaded at once.
	Concurrency int
	// Jobs restricts the reported jobs. Workflows without a matching job
	// are omitted unless they have diagnostics.
	Jobs   []filter.Pattern
	Logger *zap.Logger
	Now    func() time.Time
}

// Runner validates workflow files. Every file is loaded with its own
// loader state so diagnostics never leak between files.
type Runner struct {
	opts Options
}

// New creates a runner with the supplied options.
func New(opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Loader.Logger == nil {
		opts.Loader.Logger = opts.Logger
	}
	return &Runner{opts: opts}
}

// Validate loads each path and returns results in the order of paths. The
// error is non-nil only when ctx was cancelled.
func (r *Runner) Validate(ctx context.Context, paths []string) ([]report.WorkflowResult, report.Summary, error) {
	start := r.opts.Now()
	results := make([]report.WorkflowResult, len(paths))
	keep := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			began := r.opts.Now()
			l, rel := r.loaderFor(path)
			tmpl, err := l.Load(gctx, rel)
			if cerr := gctx.Err(); cerr != nil {
				return cerr
			}
			if err != nil {
				r.opts.Logger.Warn("workflow load failed", zap.String("path", path), zap.Error(err))
			}
			if tmpl != nil && len(r.opts.Jobs) > 0 {
				if filtered := filter.Template(tmpl, r.opts.Jobs); filtered != nil {
					tmpl = filtered
				} else if !tmpl.HasErrors() && err == nil {
					return nil
				} else {
					tmpl.Jobs = nil
				}
			}
			res := report.Result(path, tmpl, err)
			res.Duration = r.opts.Now().Sub(began)
			res.DurationMS = res.Duration.Milliseconds()
			r.opts.Logger.Debug("workflow validated",
				zap.String("path", path),
				zap.String("status", res.Status),
				zap.Int("errors", len(res.Errors)),
				zap.Duration("duration", res.Duration))
			results[i] = res
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report.Summary{}, err
	}

	kept := results[:0]
	for i, res := range results {
		if keep[i] {
			kept = append(kept, res)
		}
	}
	return kept, report.Summarize(kept, r.opts.Now().Sub(start)), nil
}

// loaderFor returns a loader and the slash separated path to load. Paths
// outside the repository are served from their own directory.
func (r *Runner) loaderFor(path string) (*loader.Loader, string) {
	if filepath.IsAbs(path) {
		return loader.NewDirectory(filepath.Dir(path), r.opts.Loader), filepath.Base(path)
	}
	return loader.NewDirectory(r.opts.Root, r.opts.Loader), filepath.ToSlash(path)
}
