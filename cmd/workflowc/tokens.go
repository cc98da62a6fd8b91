package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bgricker/workflowc/internal/loader"
	"github.com/bgricker/workflowc/internal/output"
	"github.com/bgricker/workflowc/internal/token"
)

func newTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <workflow>",
		Short: "Print the token tree of a workflow file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokens,
	}
}

func runTokens(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()

	paths, err := s.workflowPaths(args)
	if err != nil {
		return err
	}
	path := paths[0]

	opts := s.loaderOptions()
	opts.Schemas = nil
	root := s.root
	if filepath.IsAbs(path) {
		root, path = filepath.Dir(path), filepath.Base(path)
	}
	l := loader.NewDirectory(root, opts)

	tree, diags, err := l.Tokens(cmd.Context(), filepath.ToSlash(path))
	for _, d := range diags {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", d.Code, d.Message)
	}
	if err != nil {
		return err
	}
	if len(diags) > 0 {
		return errInvalidWorkflows
	}

	data, err := token.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	return output.NewJSON(cmd.OutOrStdout()).RenderRaw(data)
}
