// Package observability builds the zap loggers used by the CLI.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// CLILogger is the process-wide CLI logger. It is a no-op until
// InitCLILogger or SetCLILogger runs.
var CLILogger = zap.NewNop()

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string

	// Format is "console" (default) or "json".
	Format string

	// Output receives log lines. Default: os.Stderr, so stdout stays free
	// for JSONL records.
	Output io.Writer

	// Service is attached to every JSON entry as "service".
	Service string
}

// NewLogger builds a logger from cfg.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", FormatConsole:
		ec := zap.NewDevelopmentEncoderConfig()
		ec.TimeKey = ""
		ec.CallerKey = ""
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if f, ok := out.(*os.File); !ok || f != os.Stderr {
			ec.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(ec)
	case FormatJSON:
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	default:
		return nil, fmt.Errorf("unknown log format %q (want console or json)", cfg.Format)
	}

	logger := zap.New(zapcore.NewCore(enc, zapcore.AddSync(out), level))
	if cfg.Service != "" && strings.EqualFold(cfg.Format, FormatJSON) {
		logger = logger.With(zap.String("service", cfg.Service))
	}
	return logger, nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// InitCLILogger installs a console logger on stderr at info level, or
// debug when verbose.
func InitCLILogger(service string, verbose bool) {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger, err := NewLogger(LoggerConfig{Level: level, Service: service})
	if err != nil {
		logger = zap.NewNop()
	}
	SetCLILogger(logger)
}

// SetCLILogger replaces CLILogger, flushing the previous one.
func SetCLILogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	_ = CLILogger.Sync()
	CLILogger = l
}
