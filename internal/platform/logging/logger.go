// Package logging constructs the runtime's zap.Logger, following the
// verbose/production split the teacher's cmd/simulator/main.go uses
// (zap.NewDevelopment for verbose runs, zap.NewProduction otherwise).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config mirrors the "logging" section of the runtime's YAML configuration.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New builds a *zap.Logger from cfg. Format "console" yields
// zap.NewDevelopment's human-readable encoder; anything else (including
// the zero value) yields zap.NewProduction's JSON encoder. Level defaults
// to info when empty or unparsable.
func New(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return logger, nil
}
