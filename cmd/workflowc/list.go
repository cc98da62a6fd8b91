package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/workflowc/internal/config"
	"github.com/bgricker/workflowc/internal/output"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [workflow...]",
		Short: "List workflow jobs with their matrix configurations and steps",
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()

	results, _, err := s.validate(cmd, args)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching jobs")
		return nil
	}

	switch s.cfg.Format {
	case config.FormatPretty:
		return output.NewPretty(cmd.OutOrStdout(), s.cfg.Verbose).RenderList(results)
	case config.FormatJSON:
		return output.NewJSON(cmd.OutOrStdout()).Render(output.Report{Workflows: results})
	default:
		return fmt.Errorf("unsupported format %q", s.cfg.Format)
	}
}
