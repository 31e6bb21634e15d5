package flowkernel

import "log/slog"

// Logger defines the interface for kernel logging.
// The kernel uses structured logging with key-value pairs so that module
// lifecycle transitions, connection changes and project loading can be
// followed in any structured log backend.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// This is compatible with log/slog, logrus, zap and others.
type Logger interface {
	// Info logs an informational message, e.g. a module becoming ready.
	Info(msg string, args ...any)

	// Error logs an error message, e.g. a crashed module or a skipped
	// project file entry.
	Error(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics such as every connection attempt.
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
