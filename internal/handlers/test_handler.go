package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/teamhub/assessment-engine/internal/services"
	"github.com/teamhub/assessment-engine/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type TestHandler struct {
	BaseHandler
	testService   services.TestService
	exportService services.ExportService
}

func NewTestHandler(testService services.TestService, exportService services.ExportService, logger utils.Logger) *TestHandler {
	return &TestHandler{
		BaseHandler:   NewBaseHandler(logger),
		testService:   testService,
		exportService: exportService,
	}
}

// CreateTest creates a draft test
// @Summary Create test
// @Tags tests
// @Accept json
// @Produce json
// @Param test body services.CreateTestRequest true "Test data"
// @Success 201 {object} models.Test
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.CreateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Creating test", "team_id", req.TeamID)

	test, err := h.testService.Create(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, test)
}

// ListTeamTests lists the tests of a team
// @Summary List team tests
// @Tags tests
// @Produce json
// @Param team_id path uint true "Team ID"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Success 200 {object} services.TestListResponse
// @Router /teams/{team_id}/tests [get]
func (h *TestHandler) ListTeamTests(c *gin.Context) {
	teamID := h.parseIDParam(c, "team_id")
	if teamID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	limit, offset := h.pagination(c)
	filters := repositories.TestFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	if status := c.Query("status"); status != "" {
		s := models.TestStatus(status)
		filters.Status = &s
	}

	list, err := h.testService.ListByTeam(c.Request.Context(), teamID, filters, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetTest returns the authoring view with questions and answer key
// @Summary Get test
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} models.Test
// @Router /tests/{id} [get]
func (h *TestHandler) GetTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	test, err := h.testService.GetForAuthor(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// UpdateTest edits a draft test
// @Summary Update test
// @Tags tests
// @Accept json
// @Produce json
// @Param id path uint true "Test ID"
// @Param test body services.UpdateTestRequest true "Fields to change"
// @Success 200 {object} models.Test
// @Failure 409 {object} ErrorResponse
// @Router /tests/{id} [put]
func (h *TestHandler) UpdateTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.UpdateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}

	test, err := h.testService.Update(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// AddQuestion appends a question to a draft test
// @Summary Add question
// @Tags tests
// @Accept json
// @Produce json
// @Param id path uint true "Test ID"
// @Param question body services.QuestionRequest true "Question"
// @Success 201 {object} models.Question
// @Router /tests/{id}/questions [post]
func (h *TestHandler) AddQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	q, err := h.testService.AddQuestion(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// UpdateQuestion replaces a question of a draft test
// @Summary Update question
// @Tags tests
// @Accept json
// @Produce json
// @Param id path uint true "Test ID"
// @Param question_id path uint true "Question ID"
// @Param question body services.QuestionRequest true "Question"
// @Success 200 {object} models.Question
// @Router /tests/{id}/questions/{question_id} [put]
func (h *TestHandler) UpdateQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	q, err := h.testService.UpdateQuestion(c.Request.Context(), id, questionID, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// DeleteQuestion removes a question from a draft test
// @Summary Delete question
// @Tags tests
// @Param id path uint true "Test ID"
// @Param question_id path uint true "Question ID"
// @Success 204
// @Router /tests/{id}/questions/{question_id} [delete]
func (h *TestHandler) DeleteQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	if err := h.testService.DeleteQuestion(c.Request.Context(), id, questionID, caller); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetAssignments replaces who the test is assigned to
// @Summary Set assignments
// @Tags tests
// @Accept json
// @Produce json
// @Param id path uint true "Test ID"
// @Param assignments body services.SetAssignmentsRequest true "Assignments"
// @Success 200 {array} models.TestAssignment
// @Router /tests/{id}/assignments [put]
func (h *TestHandler) SetAssignments(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.SetAssignmentsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	assignments, err := h.testService.SetAssignments(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignments)
}

// SetPassword sets or clears the start password
// @Summary Set password
// @Tags tests
// @Accept json
// @Param id path uint true "Test ID"
// @Param password body services.SetPasswordRequest true "Password"
// @Success 204
// @Router /tests/{id}/password [put]
func (h *TestHandler) SetPassword(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}
	var req services.SetPasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.testService.SetPassword(c.Request.Context(), id, &req, caller); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PublishTest moves a draft to published
// @Summary Publish test
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} models.Test
// @Router /tests/{id}/publish [post]
func (h *TestHandler) PublishTest(c *gin.Context) {
	h.transition(c, "Publishing test", h.testService.Publish)
}

// CloseTest stops a published test from accepting attempts
// @Summary Close test
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} models.Test
// @Router /tests/{id}/close [post]
func (h *TestHandler) CloseTest(c *gin.Context) {
	h.transition(c, "Closing test", h.testService.Close)
}

// ReleaseScores makes scores visible to learners
// @Summary Release scores
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} models.Test
// @Router /tests/{id}/release-scores [post]
func (h *TestHandler) ReleaseScores(c *gin.Context) {
	h.transition(c, "Releasing scores", h.testService.ReleaseScores)
}

func (h *TestHandler) transition(c *gin.Context, message string, fn func(ctx context.Context, testID uint, caller services.Caller) (*models.Test, error)) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	h.LogRequest(c, message, "test_id", id)

	test, err := fn(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// GetPaper returns the learner view of the test
// @Summary Get test paper
// @Tags tests
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} services.TestPaper
// @Router /tests/{id}/paper [get]
func (h *TestHandler) GetPaper(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	paper, err := h.testService.GetPaper(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, paper)
}

// ExportResults downloads attempt results as an xlsx file
// @Summary Export results
// @Tags tests
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Test ID"
// @Success 200 {file} file
// @Router /tests/{id}/results/export [get]
func (h *TestHandler) ExportResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.callerFrom(c)
	if !ok {
		return
	}

	data, err := h.exportService.ExportResults(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="test-%d-results.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, data)
}
