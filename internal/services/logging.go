package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
	config LogConfig
}

type LogConfig struct {
	Service     string
	Component   string
	EnableDebug bool
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
		config: config,
	}
}

// Logger returns the underlying slog logger with service attributes attached
func (l *ServiceLogger) Logger() *slog.Logger {
	return l.logger
}

// ===== OPERATION LOGGING =====

func (l *ServiceLogger) LogOperation(ctx context.Context, operation string, userID string, resourceID uint, resourceType string, duration time.Duration, err error) {
	level := slog.LevelInfo
	status := "success"

	if err != nil {
		level = slog.LevelError
		status = "error"

		switch {
		case IsValidation(err) || IsBusinessRule(err):
			level = slog.LevelWarn
			status = "validation_error"
		case IsUnauthorized(err):
			level = slog.LevelWarn
			status = "unauthorized"
		case IsNotFound(err):
			status = "not_found"
		case IsConflict(err):
			level = slog.LevelWarn
			status = "conflict"
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Uint64("resource_id", uint64(resourceID)),
		slog.String("resource_type", resourceType),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		var validationErr ValidationErrors
		var answerErr AnswerErrors
		var businessErr *BusinessRuleError
		var permErr *PermissionError
		var accessErr *AccessDeniedError
		switch {
		case errors.As(err, &validationErr):
			attrs = append(attrs, slog.Int("validation_errors_count", len(validationErr)))
		case errors.As(err, &answerErr):
			attrs = append(attrs, slog.Int("answer_errors_count", len(answerErr)))
		case errors.As(err, &businessErr):
			attrs = append(attrs, slog.String("business_rule", businessErr.Rule))
		case errors.As(err, &permErr):
			attrs = append(attrs, slog.String("permission_action", permErr.Action))
		case errors.As(err, &accessErr):
			attrs = append(attrs, slog.String("access_reason", string(accessErr.Reason)))
		}
	}

	if level == slog.LevelDebug && !l.config.EnableDebug {
		return
	}
	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s operation %s", operation, status), attrs...)
}

func (l *ServiceLogger) LogValidationError(ctx context.Context, operation string, userID string, validationErrors ValidationErrors) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Int("error_count", len(validationErrors)),
	}

	for i, err := range validationErrors {
		if i == 5 {
			break
		}
		attrs = append(attrs, slog.Group(fmt.Sprintf("error_%d", i+1),
			slog.String("field", err.Field),
			slog.String("message", err.Message),
		))
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Validation failed", attrs...)
}

func (l *ServiceLogger) LogBusinessRuleViolation(ctx context.Context, operation string, userID string, rule *BusinessRuleError) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String("rule", rule.Rule),
		slog.String("message", rule.Message),
	}
	for key, value := range rule.Context {
		attrs = append(attrs, slog.Any("context_"+key, value))
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Business rule violation", attrs...)
}

// ===== CONTEXTUAL LOGGER =====

// ContextualLogger wraps operations with automatic logging
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	userID    string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation string, userID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		userID:    userID,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(resourceID uint, resourceType string, err error) {
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.userID, resourceID, resourceType, time.Since(cl.startTime), err)

	var validationErrors ValidationErrors
	var businessErr *BusinessRuleError
	if errors.As(err, &validationErrors) {
		cl.logger.LogValidationError(cl.ctx, cl.operation, cl.userID, validationErrors)
	} else if errors.As(err, &businessErr) {
		cl.logger.LogBusinessRuleViolation(cl.ctx, cl.operation, cl.userID, businessErr)
	}
}
