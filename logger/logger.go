package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/anvil/errors"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// JSONOutput reports whether the console core emits JSON
	JSONOutput bool

	logFile *os.File
)

func init() {
	// Safe no-op until Initialize runs, so packages can log from init paths and tests
	Logger = zap.NewNop().Sugar()
}

// Options controls how Initialize builds the global logger
type Options struct {
	// JSON switches the console core to zap's production JSON encoding
	JSON bool
	// Verbosity is the -v count; see VerbosityToLevel
	Verbosity int
	// LogFile, when set, receives every entry at debug level as JSON. Scatter
	// status discovers these files by the pid suffix in their name.
	LogFile string
}

// Initialize sets up the global logger
func Initialize(opts Options) error {
	JSONOutput = opts.JSON
	level := VerbosityToLevel(opts.Verbosity)

	var console zapcore.Core
	if opts.JSON {
		console = zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(os.Stderr),
			level,
		)
	} else {
		console = zapcore.NewCore(newMinimalEncoder(), zapcore.Lock(os.Stderr), level)
	}

	cores := []zapcore.Core{console}
	if opts.LogFile != "" {
		fileCore, err := openFileCore(opts.LogFile)
		if err != nil {
			return err
		}
		cores = append(cores, fileCore)
	}

	Logger = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel)).Sugar()
	return nil
}

func openFileCore(path string) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", path)
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(f), zapcore.DebugLevel), nil
}

// Cleanup flushes buffered entries and closes the log file
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, keysAndValues...)
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	Logger.Warnw(msg, keysAndValues...)
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	Logger.Errorw(msg, keysAndValues...)
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	Logger.Debugw(msg, keysAndValues...)
}
