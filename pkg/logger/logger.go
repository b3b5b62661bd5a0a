// Package logger provides the structured logging constructor shared by every
// AKDB subsystem. Every internal package takes a *zap.SugaredLogger through
// its Config struct rather than reaching for a package-level global, so the
// logger for a given engine instance is wired once, here, at construction
// time.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style zap logger scoped to the given service name
// (typically "akdb" or a subsystem name for standalone package tests) and
// returns the sugared form every constructor in this module expects.
func New(service string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "ts"

	log, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panicking: a logging
		// failure must never prevent the engine from opening.
		log = zap.NewNop()
	}

	return log.Sugar().Named(service)
}

// NewDevelopment builds a human-readable, non-sampled logger for tests and
// interactive use.
func NewDevelopment(service string) *zap.SugaredLogger {
	log, err := zap.NewDevelopment()
	if err != nil {
		log = zap.NewNop()
	}
	return log.Sugar().Named(service)
}
