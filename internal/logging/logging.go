// Package logging builds the zap logger used by the CLI.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatHuman = "human"
	FormatJSON  = "json"
)

// Config selects the encoder and level.
type Config struct {
	Debug  bool
	Format string
	// Color enables ANSI level colours in human output.
	Color bool
	// Output lists zap sink URLs. Defaults to stderr.
	Output []string
}

// New returns a logger for cfg. Human output uses the development encoder;
// JSON output uses the production encoder.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	switch cfg.Format {
	case FormatJSON:
		zc = zap.NewProductionConfig()
	case FormatHuman, "":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Color {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		zc.Development = false
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.OutputPaths = []string{"stderr"}
	if len(cfg.Output) > 0 {
		zc.OutputPaths = cfg.Output
	}
	zc.ErrorOutputPaths = []string{"stderr"}
	if cfg.Debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
