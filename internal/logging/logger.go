// Package logging builds the zap logger shared by the pipeline services and
// keeps the append-only agent thought log.
//
// Verbosity follows the numeric scale accepted by LOG_LEVEL:
//
//	0 none, 1 error, 2 warn, 3 info (default), 4 debug, 5 verbose
//
// Verbose behaves like debug for zap but additionally enables full dumps of
// generated candidate code.
package logging

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the numeric verbosity level.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelVerbose
)

// DefaultLevel is used when no level is configured or the configured one is invalid.
const DefaultLevel = LevelInfo

// ParseLevel parses a 0-5 verbosity string. Anything else yields DefaultLevel
// together with an error describing the rejected value, so callers can warn.
func ParseLevel(raw string) (Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLevel, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < int(LevelNone) || n > int(LevelVerbose) {
		return DefaultLevel, fmt.Errorf("invalid log level %q, using %d (%s)", raw, DefaultLevel, DefaultLevel)
	}
	return Level(n), nil
}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelVerbose:
		return "verbose"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Verbose reports whether candidate code dumps are enabled.
func (l Level) Verbose() bool {
	return l >= LevelVerbose
}

// Debug reports whether debug diagnostics are enabled.
func (l Level) Debug() bool {
	return l >= LevelDebug
}

func (l Level) zapLevel() zapcore.Level {
	switch {
	case l >= LevelDebug:
		return zapcore.DebugLevel
	case l == LevelInfo:
		return zapcore.InfoLevel
	case l == LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// New builds a console logger writing to out. LevelNone returns a no-op logger.
// A nil out writes to stderr.
func New(level Level, out zapcore.WriteSyncer) *zap.Logger {
	if level <= LevelNone {
		return zap.NewNop()
	}
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		out,
		zap.NewAtomicLevelAt(level.zapLevel()),
	)
	return zap.New(core, zap.AddCaller())
}
