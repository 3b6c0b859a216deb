// Package logging builds the per-component structured loggers used across
// the runtime. Every subsystem constructs its own named logger, all sharing
// one underlying core so output stays interleaved and ordered.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseOnce sync.Once
	base     *zap.Logger
)

func root() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder := zapcore.NewConsoleEncoder(cfg)
		core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapcore.DebugLevel)
		base = zap.New(core)
	})
	return base
}

// Named returns a SugaredLogger scoped to component.
func Named(component string) *zap.SugaredLogger {
	return root().Named(component).Sugar()
}

// Sync flushes any buffered log entries. Call once from main before exit.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
