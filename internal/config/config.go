package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bgricker/workflowc/internal/workflow"
)

const (
	// FileName is read from the repository root when present.
	FileName = ".workflowc.yml"
	// EnvPrefix prefixes environment overrides, e.g. WORKFLOWC_FORMAT.
	EnvPrefix = "WORKFLOWC"
)

// Config captures CLI options sourced from config files, the environment or flags.
type Config struct {
	Workflows []string `mapstructure:"workflows"`
	Jobs      []string `mapstructure:"jobs"`

	Format    string `mapstructure:"format"`
	Verbose   bool   `mapstructure:"verbose"`
	LogFormat string `mapstructure:"log_format"`

	Repository        string   `mapstructure:"repository"`
	Ref               string   `mapstructure:"ref"`
	PermissionsPolicy string   `mapstructure:"permissions_policy"`
	Features          []string `mapstructure:"features"`
	AllowAnchors      bool     `mapstructure:"allow_anchors"`
	// Concurrency bounds how many workflows are validated at once.
	Concurrency int `mapstructure:"concurrency"`

	Limits Limits `mapstructure:"limits"`
}

// Limits bound the work done for one workflow. Zero selects the loader default.
type Limits struct {
	MaxFiles    int `mapstructure:"max_files"`
	MaxFileSize int `mapstructure:"max_file_size"`
	MaxNodes    int `mapstructure:"max_nodes"`
	MaxDepth    int `mapstructure:"max_depth"`
	MaxJobs     int `mapstructure:"max_jobs"`
	MaxErrors   int `mapstructure:"max_errors"`
}

const (
	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"

	LogFormatHuman = "human"
	LogFormatJSON  = "json"

	DefaultRepository  = "local/workspace"
	DefaultRef         = "HEAD"
	DefaultConcurrency = 4
)

// Default returns the baseline configuration used when no flags or config file specify values.
func Default() Config {
	return Config{
		Format:            FormatPretty,
		LogFormat:         LogFormatHuman,
		Repository:        DefaultRepository,
		Ref:               DefaultRef,
		PermissionsPolicy: workflow.PolicyWrite,
		Concurrency:       DefaultConcurrency,
	}
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("workflows", cfg.Workflows)
	v.SetDefault("jobs", cfg.Jobs)
	v.SetDefault("format", cfg.Format)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("repository", cfg.Repository)
	v.SetDefault("ref", cfg.Ref)
	v.SetDefault("permissions_policy", cfg.PermissionsPolicy)
	v.SetDefault("features", cfg.Features)
	v.SetDefault("allow_anchors", cfg.AllowAnchors)
	v.SetDefault("concurrency", cfg.Concurrency)
	v.SetDefault("limits.max_files", cfg.Limits.MaxFiles)
	v.SetDefault("limits.max_file_size", cfg.Limits.MaxFileSize)
	v.SetDefault("limits.max_nodes", cfg.Limits.MaxNodes)
	v.SetDefault("limits.max_depth", cfg.Limits.MaxDepth)
	v.SetDefault("limits.max_jobs", cfg.Limits.MaxJobs)
	v.SetDefault("limits.max_errors", cfg.Limits.MaxErrors)
}

// Load reads .workflowc.yml from the repository root when present and
// applies WORKFLOWC_* environment overrides. Missing files are ignored.
func Load(root string) (Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports values outside their allowed sets.
func (c Config) Validate() error {
	switch c.Format {
	case FormatPretty, FormatJSON:
	default:
		return fmt.Errorf("unsupported format %q (expected %s or %s)", c.Format, FormatPretty, FormatJSON)
	}
	switch c.LogFormat {
	case LogFormatHuman, LogFormatJSON:
	default:
		return fmt.Errorf("unsupported log format %q (expected %s or %s)", c.LogFormat, LogFormatHuman, LogFormatJSON)
	}
	switch c.PermissionsPolicy {
	case workflow.PolicyLimitedRead, workflow.PolicyWrite:
	default:
		return fmt.Errorf("unsupported permissions policy %q (expected %s or %s)", c.PermissionsPolicy, workflow.PolicyLimitedRead, workflow.PolicyWrite)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// HasFeature reports whether name is enabled.
func (c Config) HasFeature(name string) bool {
	for _, f := range c.Features {
		if strings.EqualFold(strings.TrimSpace(f), name) {
			return true
		}
	}
	return false
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if len(flags.Workflows.Values) > 0 {
		cfg.Workflows = append([]string{}, flags.Workflows.Values...)
	}
	if len(flags.Jobs.Values) > 0 {
		cfg.Jobs = append([]string{}, flags.Jobs.Values...)
	}
	if len(flags.Features.Values) > 0 {
		cfg.Features = append([]string{}, flags.Features.Values...)
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.Verbose.Set {
		cfg.Verbose = flags.Verbose.Value
	}
	if flags.LogFormat.Set {
		cfg.LogFormat = flags.LogFormat.Value
	}
	if flags.Repository.Set {
		cfg.Repository = flags.Repository.Value
	}
	if flags.Ref.Set {
		cfg.Ref = flags.Ref.Value
	}
	if flags.PermissionsPolicy.Set {
		cfg.PermissionsPolicy = flags.PermissionsPolicy.Value
	}
	if flags.AllowAnchors.Set {
		cfg.AllowAnchors = flags.AllowAnchors.Value
	}
	if flags.Concurrency.Set {
		cfg.Concurrency = flags.Concurrency.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Workflows         SliceFlag
	Jobs              SliceFlag
	Features          SliceFlag
	Format            StringFlag
	Verbose           BoolFlag
	LogFormat         StringFlag
	Repository        StringFlag
	Ref               StringFlag
	PermissionsPolicy StringFlag
	AllowAnchors      BoolFlag
	Concurrency       IntFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// SliceFlag represents a slice flag and whether it captured values via CLI.
type SliceFlag struct {
	Values []string
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}
