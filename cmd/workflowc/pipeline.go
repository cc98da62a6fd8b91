package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bgricker/workflowc/internal/config"
	"github.com/bgricker/workflowc/internal/discovery"
	"github.com/bgricker/workflowc/internal/filter"
	"github.com/bgricker/workflowc/internal/loader"
	"github.com/bgricker/workflowc/internal/logging"
	"github.com/bgricker/workflowc/internal/report"
	"github.com/bgricker/workflowc/internal/runner"
	"github.com/bgricker/workflowc/internal/schema"
	"github.com/bgricker/workflowc/internal/workflow"
)

// Feature names that are not schema variants.
const (
	featureIDToken = "id-token"
	featureModels  = "models"
)

// session is the resolved state shared by every command.
type session struct {
	cfg    config.Config
	root   string
	logger *zap.Logger
}

func loadSession(cmd *cobra.Command) (*session, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine working directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	flags, err := gatherFlags(cmd)
	if err != nil {
		return nil, err
	}
	config.ApplyFlags(&cfg, flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := schema.Variant(cfg.Features); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Debug:  cfg.Verbose,
		Format: cfg.LogFormat,
		Color:  isatty.IsTerminal(os.Stderr.Fd()),
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, root: root, logger: logger}, nil
}

// workflowPaths resolves positional arguments, then configured workflows,
// then discovery.
func (s *session) workflowPaths(args []string) ([]string, error) {
	explicit := s.cfg.Workflows
	if len(args) > 0 {
		explicit = args
	}
	paths, err := discovery.Workflows(s.root, explicit)
	if errors.Is(err, discovery.ErrNoWorkflows) {
		return nil, fmt.Errorf("no workflows found; pass workflow files or use --workflow")
	}
	return paths, err
}

func (s *session) loaderOptions() loader.Options {
	cfg := s.cfg
	return loader.Options{
		Repository:        cfg.Repository,
		Ref:               cfg.Ref,
		MaxFiles:          cfg.Limits.MaxFiles,
		MaxFileSize:       cfg.Limits.MaxFileSize,
		MaxDepth:          cfg.Limits.MaxDepth,
		MaxJobs:           cfg.Limits.MaxJobs,
		MaxNodes:          cfg.Limits.MaxNodes,
		MaxErrors:         cfg.Limits.MaxErrors,
		AllowAnchors:      cfg.AllowAnchors,
		PermissionsPolicy: cfg.PermissionsPolicy,
		PolicyFeatures: workflow.PolicyFeatures{
			IDToken: cfg.HasFeature(featureIDToken),
			Models:  cfg.HasFeature(featureModels),
		},
		Schemas:  schema.NewCache(),
		Features: cfg.Features,
		Logger:   s.logger,
	}
}

func (s *session) validate(cmd *cobra.Command, args []string) ([]report.WorkflowResult, report.Summary, error) {
	paths, err := s.workflowPaths(args)
	if err != nil {
		return nil, report.Summary{}, err
	}
	patterns, err := filter.Compile(s.cfg.Jobs)
	if err != nil {
		return nil, report.Summary{}, err
	}
	r := runner.New(runner.Options{
		Root:        s.root,
		Loader:      s.loaderOptions(),
		Concurrency: s.cfg.Concurrency,
		Jobs:        patterns,
		Logger:      s.logger,
	})
	return r.Validate(cmd.Context(), paths)
}
