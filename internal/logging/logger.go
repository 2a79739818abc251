// Package logging provides structured logging for mend built on zap.
// Components obtain named child loggers so every line carries the
// component and task identifiers that emitted it.
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log output encodings.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	mu         sync.Mutex
	defaultLog = zap.NewNop()
)

// Options configures logger construction.
type Options struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "console" or "json"
}

// New builds a zap logger writing to stderr.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch opts.Format {
	case FormatConsole, "":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unknown log format: %q", opts.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// SetDefault installs the process-wide logger returned by L.
func SetDefault(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLog = l
}

// L returns the process-wide logger. It is a no-op logger until
// SetDefault is called during startup.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return defaultLog
}

// Named returns a child of the default logger with the given name.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %q", s)
	}
}
