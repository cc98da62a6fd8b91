package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/workflowc/internal/config"
	"github.com/bgricker/workflowc/internal/output"
)

var errInvalidWorkflows = errors.New("one or more workflows are invalid")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workflow...]",
		Short: "Convert workflows and the reusable workflows they call, reporting diagnostics",
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()

	results, summary, err := s.validate(cmd, args)
	if err != nil {
		return err
	}

	switch s.cfg.Format {
	case config.FormatPretty:
		if err := output.NewPretty(cmd.OutOrStdout(), s.cfg.Verbose).RenderResults(results, summary); err != nil {
			return err
		}
	case config.FormatJSON:
		if err := output.NewJSON(cmd.OutOrStdout()).Render(output.Report{Workflows: results, Summary: &summary}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q", s.cfg.Format)
	}

	if summary.ExitCode != 0 {
		return errInvalidWorkflows
	}
	return nil
}
