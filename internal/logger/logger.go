// Package logger builds the process-wide zap logger.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// newCore tees debug/info to stdout and warn and above to stderr.
func newCore(debug bool) zapcore.Core {
	// debug and info level enabler
	debugInfoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level == zapcore.DebugLevel || level == zapcore.InfoLevel
	})

	// info level enabler
	infoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level == zapcore.InfoLevel
	})

	// warn, error and fatal level enabler
	warnErrorFatalLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= zapcore.WarnLevel
	})

	stdoutSyncer := zapcore.Lock(os.Stdout)
	stderrSyncer := zapcore.Lock(os.Stderr)

	if debug {
		enc := zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
		return zapcore.NewTee(
			zapcore.NewCore(enc, stdoutSyncer, debugInfoLevel),
			zapcore.NewCore(enc.Clone(), stderrSyncer, warnErrorFatalLevel),
		)
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zapcore.NewTee(
		zapcore.NewCore(enc, stdoutSyncer, infoLevel),
		zapcore.NewCore(enc.Clone(), stderrSyncer, warnErrorFatalLevel),
	)
}

// Init builds the logger once. Later calls are no-ops.
func Init(debug bool) *zap.Logger {
	once.Do(func() {
		logger = zap.New(newCore(debug))
	})
	return logger
}

// Get returns the logger, building a production logger if Init was not called.
func Get() *zap.Logger {
	return Init(false)
}
