// Package logging builds the zap loggers used by the server and the CLI.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvLogLevel = "TSPACE_LOG_LEVEL"

type Profile int

const (
	ProfileRuntime Profile = iota // JSON output, info level, timestamps
	ProfileDev                    // console output, debug level
)

// New returns a logger for profile. level ("" keeps the profile default) is applied
// first, then TSPACE_LOG_LEVEL overrides it.
func New(profile Profile, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch profile {
	case ProfileDev:
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if lvl, ok, err := ParseLevel(level); err != nil {
		return nil, err
	} else if ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	if lvl, ok, err := ParseLevel(os.Getenv(EnvLogLevel)); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvLogLevel, err)
	} else if ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// ParseLevel maps a level name to a zap level. ok is false for an empty name.
func ParseLevel(raw string) (lvl zapcore.Level, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zapcore.InfoLevel, false, nil
	case "debug", "trace":
		return zapcore.DebugLevel, true, nil
	case "info":
		return zapcore.InfoLevel, true, nil
	case "warn", "warning":
		return zapcore.WarnLevel, true, nil
	case "error":
		return zapcore.ErrorLevel, true, nil
	case "off", "disabled", "none":
		return zapcore.FatalLevel + 1, true, nil
	default:
		return zapcore.InfoLevel, false, fmt.Errorf("logging: unknown level %q", raw)
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
