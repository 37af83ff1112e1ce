// Package logger holds the process-wide zap logger. Before Init runs
// it is a nop, so packages can log unconditionally.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// Init replaces the global logger with a production logger at the given
// level. Unknown level strings fall back to info.
func Init(level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	built, err := cfg.Build()
	if err != nil {
		return err
	}

	global.Store(built)
	return nil
}

// Logger returns the current global logger.
func Logger() *zap.Logger { return global.Load() }

// Sync flushes buffered entries, typically on shutdown.
func Sync() error { return Logger().Sync() }

func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Logger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Logger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }
