// Package logging provides structured logging functionality using Go's slog package.
// It supports both text and JSON output formats, configurable log levels,
// and helpers for the fields newhosts attaches to probe, cycle and store events.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// File permissions for directories and log files.
	logDirPerm  = 0750
	logFilePerm = 0600
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the available log formats.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config holds logging configuration.
type Config struct {
	Level     LogLevel  `yaml:"level" json:"level"`
	Format    LogFormat `yaml:"format" json:"format"`
	Output    string    `yaml:"output" json:"output"`
	AddSource bool      `yaml:"add_source" json:"add_source"`
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    FormatText,
		Output:    "stderr",
		AddSource: false,
	}
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	// Determine output writer
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		// Assume it's a file path
		if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	return NewWithWriter(cfg, writer), nil
}

// NewWithWriter creates a logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}
}

func parseLevel(level LogLevel) slog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, _ := New(DefaultConfig())
	return logger
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
		config: l.config,
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithCycleID adds a scan cycle ID field to the logger.
func (l *Logger) WithCycleID(cycleID string) *Logger {
	return l.WithFields("cycle_id", cycleID)
}

// WithTarget adds a target field to the logger.
func (l *Logger) WithTarget(target string) *Logger {
	return l.WithFields("target", target)
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

// DebugProbe logs the outcome of a single probe.
func (l *Logger) DebugProbe(msg, tool, target string, fields ...any) {
	allFields := append([]any{"tool", tool, "target", target}, fields...)
	l.Debug(msg, allFields...)
}

// WarnProbe logs a failed probe. Probe failures never abort a cycle.
func (l *Logger) WarnProbe(msg, tool, target string, err error, fields ...any) {
	allFields := append([]any{"tool", tool, "target", target, "error", err}, fields...)
	l.Warn(msg, allFields...)
}

// InfoCycle logs scan cycle information.
func (l *Logger) InfoCycle(msg, network string, fields ...any) {
	allFields := append([]any{"network", network}, fields...)
	l.Info(msg, allFields...)
}

// ErrorCycle logs scan cycle errors.
func (l *Logger) ErrorCycle(msg, network string, err error, fields ...any) {
	allFields := append([]any{"network", network, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// InfoDatabase logs database-related information.
func (l *Logger) InfoDatabase(msg string, fields ...any) {
	allFields := append([]any{"component", "database"}, fields...)
	l.Info(msg, allFields...)
}

// ErrorDatabase logs database-related errors.
func (l *Logger) ErrorDatabase(msg string, err error, fields ...any) {
	allFields := append([]any{"component", "database", "error", err}, fields...)
	l.Error(msg, allFields...)
}

// Global logger instance - can be replaced for testing.
var defaultLogger = NewDefault()

// SetDefault sets the default logger instance.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger instance.
func Default() *Logger {
	return defaultLogger
}

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs at error level using the default logger.
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}

// DebugProbe logs a probe outcome using the default logger.
func DebugProbe(msg, tool, target string, fields ...any) {
	defaultLogger.DebugProbe(msg, tool, target, fields...)
}

// WarnProbe logs a failed probe using the default logger.
func WarnProbe(msg, tool, target string, err error, fields ...any) {
	defaultLogger.WarnProbe(msg, tool, target, err, fields...)
}

// InfoCycle logs scan cycle information using the default logger.
func InfoCycle(msg, network string, fields ...any) {
	defaultLogger.InfoCycle(msg, network, fields...)
}

// ErrorCycle logs scan cycle errors using the default logger.
func ErrorCycle(msg, network string, err error, fields ...any) {
	defaultLogger.ErrorCycle(msg, network, err, fields...)
}

// InfoDatabase logs database-related information using the default logger.
func InfoDatabase(msg string, fields ...any) {
	defaultLogger.InfoDatabase(msg, fields...)
}

// ErrorDatabase logs database-related errors using the default logger.
func ErrorDatabase(msg string, err error, fields ...any) {
	defaultLogger.ErrorDatabase(msg, err, fields...)
}

// LevelForVerbosity maps the CLI verbosity count onto a log level:
// 0 is quiet, 1 is the default, anything higher enables debug output.
func LevelForVerbosity(verbosity int) LogLevel {
	switch {
	case verbosity <= 0:
		return LevelError
	case verbosity == 1:
		return LevelWarn
	case verbosity == 2:
		return LevelInfo
	default:
		return LevelDebug
	}
}
