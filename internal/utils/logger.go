package utils

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging interface shared by handlers and services
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger

	LogRequest(method, path string, statusCode int, duration string, args ...any)
	LogError(err error, msg string, args ...any)
}

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Level       string
	Development bool

	// File enables a rotating file sink next to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) Logger {
	return &SlogLogger{
		logger: logger,
	}
}

// NewLogger builds a JSON logger, or a text logger in development. When a
// file is configured output is duplicated to a lumberjack-rotated file.
func NewLogger(opts LoggerOptions) Logger {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	if opts.Development {
		return NewSlogLogger(slog.New(slog.NewTextHandler(out, handlerOpts)))
	}
	return NewSlogLogger(slog.New(slog.NewJSONHandler(out, handlerOpts)))
}

// NewDefaultLogger creates a default logger using slog with JSON output
func NewDefaultLogger() Logger {
	return NewLogger(LoggerOptions{Level: "info"})
}

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *SlogLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *SlogLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *SlogLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *SlogLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{
		logger: l.logger.With(args...),
	}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{
		logger: l.logger.WithGroup(name),
	}
}

func (l *SlogLogger) LogRequest(method, path string, statusCode int, duration string, args ...any) {
	level := slog.LevelInfo
	if statusCode >= 400 {
		level = slog.LevelWarn
	}
	if statusCode >= 500 {
		level = slog.LevelError
	}

	allArgs := append([]any{
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration", duration,
	}, args...)
	l.logger.Log(context.Background(), level, "HTTP Request", allArgs...)
}

func (l *SlogLogger) LogError(err error, msg string, args ...any) {
	allArgs := append([]any{"error", err}, args...)
	l.logger.Error(msg, allArgs...)
}

// GetSlogLogger returns the underlying slog.Logger for direct access when needed
func (l *SlogLogger) GetSlogLogger() *slog.Logger {
	return l.logger
}

// ToSlogLogger unwraps a Logger for libraries that take *slog.Logger.
func ToSlogLogger(logger Logger) *slog.Logger {
	if slogLogger, ok := logger.(*SlogLogger); ok {
		return slogLogger.GetSlogLogger()
	}
	return slog.Default()
}

// LoggerMiddleware creates a Gin middleware for request logging
func LoggerMiddleware(logger Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.LogRequest(
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency.String(),
			"client_ip", param.ClientIP,
			"user_agent", param.Request.UserAgent(),
		)
		return ""
	})
}

// ContextLogger stores a request-scoped logger in the Gin context. Requests
// without an X-Request-ID get a generated one.
func ContextLogger(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set("X-Request-ID", requestID)
		}
		c.Header("X-Request-ID", requestID)

		requestLogger := logger.With(
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		c.Set("logger", requestLogger)
		c.Next()
	}
}

// GetLoggerFromContext retrieves logger from Gin context
func GetLoggerFromContext(c *gin.Context) Logger {
	if logger, exists := c.Get("logger"); exists {
		if typedLogger, ok := logger.(Logger); ok {
			return typedLogger
		}
	}
	return NewDefaultLogger()
}
