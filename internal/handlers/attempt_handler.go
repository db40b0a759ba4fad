package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/teamhub/assessment-engine/internal/services"
	"github.com/teamhub/assessment-engine/internal/utils"
)

// passwordHeader carries the test password on the can-start probe so it
// stays out of URLs and access logs.
const passwordHeader = "X-Test-Password"

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// CanStart reports whether the caller may start or resume the test
// @Summary Check start eligibility
// @Tags attempts
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} services.StartCheck
// @Router /tests/{id}/can-start [get]
func (h *AttemptHandler) CanStart(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	check, err := h.attemptService.CheckStart(c.Request.Context(), testID, c.GetHeader(passwordHeader), caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// StartAttempt starts a new attempt or resumes the active one
// @Summary Start attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Test ID"
// @Param request body services.StartAttemptRequest false "Start data"
// @Success 201 {object} services.StartResult
// @Success 200 {object} services.StartResult "resumed"
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/attempts [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.StartAttemptRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Starting attempt", "test_id", testID)

	result, err := h.attemptService.Start(c.Request.Context(), testID, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// ListTestAttempts lists every attempt of a test for graders
// @Summary List test attempts
// @Tags attempts
// @Produce json
// @Param id path uint true "Test ID"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Success 200 {object} services.AttemptListResponse
// @Router /tests/{id}/attempts [get]
func (h *AttemptHandler) ListTestAttempts(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	limit, offset := h.pagination(c)
	filters := repositories.AttemptFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	if status := c.Query("status"); status != "" {
		s := models.AttemptStatus(status)
		filters.Status = &s
	}

	list, err := h.attemptService.ListAttemptSummaries(c.Request.Context(), testID, filters, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListMyAttempts lists the caller's own attempts of a test
// @Summary List my attempts
// @Tags attempts
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {array} services.AttemptView
// @Router /tests/{id}/my-attempts [get]
func (h *AttemptHandler) ListMyAttempts(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListMyAttempts(c.Request.Context(), testID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

// GetAttempt returns one attempt
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptView
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	view, err := h.attemptService.GetAttempt(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SaveAnswers autosaves answers and proctoring counters
// @Summary Autosave answers
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param request body services.AutosaveRequest true "Answers"
// @Success 200 {object} services.AutosaveResult
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/answers [put]
func (h *AttemptHandler) SaveAnswers(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.AutosaveRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.attemptService.SaveProgress(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecordProctorEvents appends client-observed proctoring events
// @Summary Record proctoring events
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param request body services.RecordEventsRequest true "Events"
// @Success 202 {object} map[string]int
// @Router /attempts/{id}/proctor-events [post]
func (h *AttemptHandler) RecordProctorEvents(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.RecordEventsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	recorded, err := h.attemptService.RecordProctorEvents(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"recorded": recorded})
}

// SubmitAttempt finalizes the attempt and grades what can be graded
// @Summary Submit attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param request body services.SubmitAttemptRequest false "Final answers"
// @Success 200 {object} services.SubmitResult
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.SubmitAttemptRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", id)

	result, err := h.attemptService.Submit(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetReview returns the attempt's answers alongside the released key
// @Summary Review attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptReview
// @Router /attempts/{id}/review [get]
func (h *AttemptHandler) GetReview(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	review, err := h.attemptService.GetReview(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}
