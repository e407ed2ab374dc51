// Package observability owns the process loggers.
//
// Library packages never build their own logger: they accept a *zap.Logger
// and fall back to zap.NewNop. Only the CLI layer calls InitCLILogger.
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	// CLILogger is the process logger used by commands. It is a no-op
	// logger until InitCLILogger runs.
	CLILogger = zap.NewNop()

	cliMu sync.Mutex
)

// InitCLILogger installs a console logger on stderr named after the binary.
// verbose lowers the level to debug.
func InitCLILogger(name string, verbose bool) {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger, err := NewLogger(level, FormatConsole)
	if err != nil {
		logger = zap.NewNop()
	}
	SetCLILogger(logger.Named(name))
}

// Init installs a logger built from a level and format string, as read from
// configuration.
func Init(name, level, format string) error {
	logger, err := NewLogger(level, format)
	if err != nil {
		return err
	}
	SetCLILogger(logger.Named(name))
	return nil
}

// SetCLILogger replaces CLILogger, flushing the previous one.
func SetCLILogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	cliMu.Lock()
	defer cliMu.Unlock()
	if CLILogger != nil {
		_ = CLILogger.Sync()
	}
	CLILogger = l
}

// NewLogger builds a stderr logger. format is "console" or "json".
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON, "structured":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected console or json)", format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// ParseLevel accepts zap level names plus "warning" and "trace".
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
