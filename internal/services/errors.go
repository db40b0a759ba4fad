package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teamhub/assessment-engine/internal/access"
	"github.com/teamhub/assessment-engine/internal/scorer"
	apperrors "github.com/teamhub/assessment-engine/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Test specific errors
	ErrTestNotFound      = errors.New("test not found")
	ErrTestNotEditable   = errors.New("test cannot be edited in current status")
	ErrTestInvalidStatus = errors.New("invalid test status transition")
	ErrNotTeamMember     = errors.New("caller is not a member of the team")
	ErrScoresNotManual   = errors.New("scores are not released manually for this test")

	// Question specific errors
	ErrQuestionNotFound = errors.New("question not found")

	// Attempt specific errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAccessDenied     = errors.New("access denied to attempt")
	ErrAttemptFrozen           = errors.New("attempt no longer accepts changes")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptNotSubmitted     = errors.New("attempt has not been submitted")
	ErrAttemptNotStarted       = errors.New("attempt has not been started")

	// Grading specific errors
	ErrAnswerNotFound            = errors.New("answer not found")
	ErrSuggestionNotFound        = errors.New("suggestion not found")
	ErrSuggestionAlreadyReviewed = errors.New("suggestion already reviewed")
	ErrNotManuallyGradable       = errors.New("answer does not need manual grading")
	ErrGradingInvalidScore       = errors.New("invalid score value")
	ErrScorerUnavailable         = errors.New("scoring service unavailable")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// AccessDeniedError carries the gate's reason code.
type AccessDeniedError struct {
	Reason access.Reason `json:"reason"`
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func NewAccessDeniedError(reason access.Reason) *AccessDeniedError {
	return &AccessDeniedError{Reason: reason}
}

// Answer error codes
const (
	AnswerUnknownQuestion = "UNKNOWN_QUESTION"
	AnswerShapeMismatch   = "SHAPE_MISMATCH"
	AnswerUnknownOption   = "UNKNOWN_OPTION"
	AnswerNotFinite       = "NOT_FINITE"
	AnswerTooLong         = "TOO_LONG"
)

// AnswerError rejects one answer of a batch.
type AnswerError struct {
	QuestionID uint   `json:"question_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e AnswerError) Error() string {
	return fmt.Sprintf("question %d: %s", e.QuestionID, e.Message)
}

type AnswerErrors []AnswerError

func (e AnswerErrors) Error() string {
	parts := make([]string, len(e))
	for i, ae := range e {
		parts[i] = ae.Error()
	}
	return "invalid answers: " + strings.Join(parts, "; ")
}

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrAnswerNotFound) ||
		errors.Is(err, ErrSuggestionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	var pe *PermissionError
	var ade *AccessDeniedError
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotTeamMember) ||
		errors.Is(err, ErrAttemptAccessDenied) ||
		errors.As(err, &pe) ||
		errors.As(err, &ade)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrGradingInvalidScore) {
		return true
	}
	var ve apperrors.ValidationErrors
	var ae AnswerErrors
	return errors.As(err, &ve) || errors.As(err, &ae)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTestNotEditable) ||
		errors.Is(err, ErrTestInvalidStatus) ||
		errors.Is(err, ErrScoresNotManual) ||
		errors.Is(err, ErrAttemptFrozen) ||
		errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrAttemptNotSubmitted) ||
		errors.Is(err, ErrAttemptNotStarted) ||
		errors.Is(err, ErrSuggestionAlreadyReviewed) ||
		errors.Is(err, ErrNotManuallyGradable)
}

// IsUpstream checks if error came from the scoring backend
func IsUpstream(err error) bool {
	return errors.Is(err, ErrScorerUnavailable) ||
		errors.Is(err, scorer.ErrUnavailable) ||
		errors.Is(err, scorer.ErrMalformedResponse) ||
		errors.Is(err, scorer.ErrNotConfigured)
}
