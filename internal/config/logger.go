package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging is the logging section of Env. Level takes zap's level names
// (debug, info, warn, error) and defaults to info; Format is "json" for
// the production encoder or "console" for human-readable output.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewLogger builds the root logger for the process. Subsystems derive
// their own with logger.Named.
func NewLogger(logging Logging) (*zap.Logger, error) {
	levelText := logging.Level
	if levelText == "" {
		levelText = "info"
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelText)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logging.Level, err)
	}

	var cfg zap.Config
	switch logging.Format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: want json or console", logging.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}
