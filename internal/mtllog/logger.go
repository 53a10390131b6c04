// Package mtllog provides the structured logger shared by the CLI and the
// diagnostics server, built on zap.
package mtllog

import (
	"go.uber.org/zap"
)

// Logger is the structured logger used across mtlgen's command-line and
// LSP front ends.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger. debug enables debug-level output; otherwise only
// info-and-above is emitted. Output goes to stderr so stdout stays free
// for generated content and LSP framing.
func New(debug bool) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.z.Sugar().Debugf(format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.z.Sugar().Infof(format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.z.Sugar().Warnf(format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.z.Sugar().Errorf(format, args...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }
