// Package xlog wires up zap: one named, structured sugared logger per
// component.
package xlog

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	base *zap.Logger
)

// Init configures the process-wide base logger from a textual level
// ("debug", "info", "warn", "error"). Safe to call multiple times; the
// last call wins.
func Init(level string) error {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(strings.ToLower(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	base = l
	mu.Unlock()
	return nil
}

// Named returns a sugared logger scoped to component, e.g. Named("indexer").
func Named(component string) *zap.SugaredLogger {
	mu.Lock()
	l := base
	mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	return l.Named(component).Sugar()
}
