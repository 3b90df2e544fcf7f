// Package telemetry wires up the structured logger shared by every
// long-lived component (catalog, server, connector pool, aggregator),
// injected through each component's Config struct (the aggregator takes it
// as a constructor argument) rather than a package-level global so tests
// can swap in a no-op logger.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-leveled JSON logger with ISO-8601 timestamps.
// development toggles a more verbose, human-readable encoder for local runs.
func New(development bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, used by tests and by
// components constructed without an explicit logger.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
