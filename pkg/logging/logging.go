package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

var defaultLogger *slog.Logger

// Init initializes the logging system. Logs are written to the provided
// output (e.g. os.Stdout, os.Stderr) filtered by level.
// This should be called once at application startup.
func Init(filterLevel LogLevel, output io.Writer) {
	opts := &slog.HandlerOptions{
		Level: filterLevel.SlogLevel(),
	}
	defaultLogger = slog.New(slog.NewTextHandler(output, opts))
	slog.SetDefault(defaultLogger) // Set for any global slog calls if necessary
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	if defaultLogger == nil {
		// Logger not initialized; emergency fallback to stderr.
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", level, subsystem, msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		}
		return
	}

	var slogAttrs []slog.Attr
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}
