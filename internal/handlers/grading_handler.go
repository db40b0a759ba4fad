package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teamhub/assessment-engine/internal/services"
	"github.com/teamhub/assessment-engine/internal/utils"
)

// SuggestionsRequest narrows a suggestion request to a single answer.
type SuggestionsRequest struct {
	AnswerID *uint `json:"answer_id"`
}

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
}

func NewGradingHandler(gradingService services.GradingService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
	}
}

// ListPending lists answers waiting for a grader
// @Summary List pending answers
// @Tags grading
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {array} services.PendingAnswer
// @Router /tests/{id}/grading/pending [get]
func (h *GradingHandler) ListPending(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	pending, err := h.gradingService.ListPending(c.Request.Context(), testID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// RequestSuggestions asks the scorer for advisory scores
// @Summary Request AI suggestions
// @Tags grading
// @Accept json
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Param request body SuggestionsRequest false "Single answer"
// @Success 200 {object} services.SuggestionBatch
// @Failure 502 {object} ErrorResponse
// @Router /grading/attempts/{attempt_id}/suggestions [post]
func (h *GradingHandler) RequestSuggestions(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req SuggestionsRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Requesting grading suggestions", "attempt_id", attemptID)

	batch, err := h.gradingService.RequestSuggestions(c.Request.Context(), attemptID, req.AnswerID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ListSuggestions lists the suggestions recorded for an attempt
// @Summary List AI suggestions
// @Tags grading
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 200 {array} models.AiGradingSuggestion
// @Router /grading/attempts/{attempt_id}/suggestions [get]
func (h *GradingHandler) ListSuggestions(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	suggestions, err := h.gradingService.ListSuggestions(c.Request.Context(), attemptID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

// AcceptSuggestion applies a suggestion as the answer's score
// @Summary Accept AI suggestion
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Suggestion ID"
// @Param request body services.AcceptSuggestionRequest false "Override"
// @Success 200 {object} services.GradeResult
// @Router /grading/suggestions/{id}/accept [post]
func (h *GradingHandler) AcceptSuggestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.AcceptSuggestionRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	result, err := h.gradingService.AcceptSuggestion(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RejectSuggestion discards a suggestion
// @Summary Reject AI suggestion
// @Tags grading
// @Produce json
// @Param id path uint true "Suggestion ID"
// @Success 200 {object} models.AiGradingSuggestion
// @Router /grading/suggestions/{id}/reject [post]
func (h *GradingHandler) RejectSuggestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	suggestion, err := h.gradingService.RejectSuggestion(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}

// GradeAnswer records a manual score
// @Summary Grade answer
// @Tags grading
// @Accept json
// @Produce json
// @Param answer_id path uint true "Answer ID"
// @Param grade body services.ManualGradeRequest true "Score"
// @Success 200 {object} services.GradeResult
// @Failure 400 {object} ErrorResponse
// @Router /grading/answers/{answer_id} [post]
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
	answerID := h.parseIDParam(c, "answer_id")
	if answerID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.ManualGradeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Grading answer", "answer_id", answerID)

	result, err := h.gradingService.GradeAnswer(c.Request.Context(), answerID, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
