// Package logger builds the zap loggers used by the operational
// components (stores, auditor, CLI).
package logger

import "go.uber.org/zap"

// LoggerConfig controls logger construction.
type LoggerConfig struct {
	// Debug selects a human-readable development logger at debug level.
	Debug bool
}

// NewLogger creates a production JSON logger, or a development logger
// when Debug is set.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	if cfg != nil && cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
