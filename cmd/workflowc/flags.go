package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/workflowc/internal/config"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var values config.FlagValues

	slices := []struct {
		name string
		dst  *config.SliceFlag
	}{
		{"workflow", &values.Workflows},
		{"job", &values.Jobs},
		{"feature", &values.Features},
	}
	for _, f := range slices {
		if !flags.Changed(f.name) {
			continue
		}
		v, err := flags.GetStringArray(f.name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", f.name, err)
		}
		f.dst.Values = append([]string{}, v...)
	}

	strs := []struct {
		name string
		dst  *config.StringFlag
	}{
		{"format", &values.Format},
		{"log-format", &values.LogFormat},
		{"repository", &values.Repository},
		{"ref", &values.Ref},
		{"permissions-policy", &values.PermissionsPolicy},
	}
	for _, f := range strs {
		if !flags.Changed(f.name) {
			continue
		}
		v, err := flags.GetString(f.name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", f.name, err)
		}
		*f.dst = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("verbose") {
		v, err := flags.GetBool("verbose")
		if err != nil {
			return values, fmt.Errorf("parse --verbose: %w", err)
		}
		values.Verbose = config.BoolFlag{Value: v, Set: true}
	}

	if flags.Changed("allow-anchors") {
		v, err := flags.GetBool("allow-anchors")
		if err != nil {
			return values, fmt.Errorf("parse --allow-anchors: %w", err)
		}
		values.AllowAnchors = config.BoolFlag{Value: v, Set: true}
	}

	if flags.Changed("concurrency") {
		v, err := flags.GetInt("concurrency")
		if err != nil {
			return values, fmt.Errorf("parse --concurrency: %w", err)
		}
		values.Concurrency = config.IntFlag{Value: v, Set: true}
	}

	return values, nil
}
