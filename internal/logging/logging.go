// Package logging wires up the process-wide structured logger.
//
// The original llmrouter used log.Printf everywhere. A gateway fanning out
// to six providers under load needs fields (provider, model, strategy) to
// stay greppable, so we use zap's SugaredLogger — it keeps the same
// printf-style call sites (Infof, Warnf, Errorf) the teacher's code already
// used, just with structured output underneath.
package logging

import (
	"go.uber.org/zap"
)

// New builds a SugaredLogger. level is one of "debug", "info", "warn",
// "error" (unknown values fall back to "info"), matching the config's
// server.log_level field.
func New(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"

	var zl zap.AtomicLevel
	switch level {
	case "debug":
		zl = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zl = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zl = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = zl

	logger, err := cfg.Build()
	if err != nil {
		// Falling back to a no-op logger would hide every subsequent log
		// line, which is worse than a noisy default build.
		logger = zap.NewExample()
	}
	return logger.Sugar()
}

// Nop returns a logger that discards everything, for tests that don't want
// log noise but still need something satisfying the *zap.SugaredLogger type.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
