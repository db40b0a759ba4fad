package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/teamhub/assessment-engine/internal/auth"
	"github.com/teamhub/assessment-engine/internal/services"
	"github.com/teamhub/assessment-engine/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides request logging and error mapping shared by all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs an incoming request with the caller and request id
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"remote_addr", c.ClientIP(),
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", h.extractUserID(c),
	}
	fields = append(fields, additionalFields...)
	utils.GetLoggerFromContext(c).Debug(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", h.extractUserID(c),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	fields = append(fields, additionalFields...)
	h.logger.LogError(err, message, fields...)
}

func (h *BaseHandler) extractUserID(c *gin.Context) string {
	if p, ok := auth.PrincipalFrom(c); ok {
		return p.UserID
	}
	return ""
}

// callerFrom builds the service caller from the authenticated principal.
// It writes a 401 and returns false when the request carries none.
func (h *BaseHandler) callerFrom(c *gin.Context) (services.Caller, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok || p.UserID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return services.Caller{}, false
	}
	return services.Caller{
		UserID:        p.UserID,
		PlatformAdmin: p.PlatformAdmin,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	}, true
}

// bindJSON decodes the request body, writing a 400 on failure
func (h *BaseHandler) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "must be a positive integer",
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	value, err := strconv.Atoi(c.Query(param))
	if err != nil {
		return defaultValue
	}
	return value
}

// pagination turns page/size query parameters into limit and offset
func (h *BaseHandler) pagination(c *gin.Context) (limit, offset int) {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}

// handleServiceError maps service errors onto HTTP responses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
			Code:    "VALIDATION_FAILED",
		})
		return
	}

	var answerErrors services.AnswerErrors
	if errors.As(err, &answerErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid answers",
			Details: answerErrors,
			Code:    "INVALID_ANSWERS",
		})
		return
	}

	var denied *services.AccessDeniedError
	if errors.As(err, &denied) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Code:    string(denied.Reason),
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	switch {
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	case services.IsUnauthorized(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: err.Error()})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	case services.IsUpstream(err):
		h.LogError(c, err, "Scoring backend failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Message: "Scoring service unavailable"})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
