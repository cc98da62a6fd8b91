package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workflowc",
		Short:         "Workflowc validates and inspects GitHub Actions workflows",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.StringArray("workflow", nil, "workflow file to include (repeatable)")
	persistent.StringArray("job", nil, "job filter, substring or /regexp/ (repeatable)")
	persistent.StringArray("feature", nil, "enable a feature: snapshot, strict-permissions, id-token, models (repeatable)")
	persistent.String("format", "pretty", "output format (pretty|json)")
	persistent.BoolP("verbose", "v", false, "show telemetry and debug logs")
	persistent.String("log-format", "human", "log format (human|json)")
	persistent.String("repository", "", "owner/repo of the workspace used to qualify local references")
	persistent.String("ref", "", "git ref of the workspace")
	persistent.String("permissions-policy", "", "default permissions ceiling for called workflows (limited-read|write)")
	persistent.Bool("allow-anchors", false, "allow YAML anchors and aliases")
	persistent.IntP("concurrency", "j", 0, "number of workflows validated at once")

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newTokensCmd())

	return cmd
}
