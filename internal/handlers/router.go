package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teamhub/assessment-engine/internal/services"
	"github.com/teamhub/assessment-engine/internal/utils"
)

type HandlerManager struct {
	testHandler    *TestHandler
	attemptHandler *AttemptHandler
	gradingHandler *GradingHandler
}

func NewHandlerManager(serviceManager services.ServiceManager, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		testHandler:    NewTestHandler(serviceManager.Test(), serviceManager.Export(), logger),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), logger),
		gradingHandler: NewGradingHandler(serviceManager.Grading(), logger),
	}
}

// SetupRoutes registers the API. Everything under /api/v1 goes through
// authMiddleware.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware)
	{
		v1.POST("/tests", hm.testHandler.CreateTest)
		v1.GET("/teams/:team_id/tests", hm.testHandler.ListTeamTests)

		tests := v1.Group("/tests/:id")
		{
			// Authoring
			tests.GET("", hm.testHandler.GetTest)
			tests.PUT("", hm.testHandler.UpdateTest)
			tests.POST("/questions", hm.testHandler.AddQuestion)
			tests.PUT("/questions/:question_id", hm.testHandler.UpdateQuestion)
			tests.DELETE("/questions/:question_id", hm.testHandler.DeleteQuestion)
			tests.PUT("/assignments", hm.testHandler.SetAssignments)
			tests.PUT("/password", hm.testHandler.SetPassword)
			tests.POST("/publish", hm.testHandler.PublishTest)
			tests.POST("/close", hm.testHandler.CloseTest)
			tests.POST("/release-scores", hm.testHandler.ReleaseScores)
			tests.GET("/results/export", hm.testHandler.ExportResults)

			// Taking
			tests.GET("/paper", hm.testHandler.GetPaper)
			tests.GET("/can-start", hm.attemptHandler.CanStart)
			tests.POST("/attempts", hm.attemptHandler.StartAttempt)
			tests.GET("/attempts", hm.attemptHandler.ListTestAttempts)
			tests.GET("/my-attempts", hm.attemptHandler.ListMyAttempts)

			tests.GET("/grading/pending", hm.gradingHandler.ListPending)
		}

		attempts := v1.Group("/attempts/:id")
		{
			attempts.GET("", hm.attemptHandler.GetAttempt)
			attempts.PUT("/answers", hm.attemptHandler.SaveAnswers)
			attempts.POST("/proctor-events", hm.attemptHandler.RecordProctorEvents)
			attempts.POST("/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/review", hm.attemptHandler.GetReview)
		}

		grading := v1.Group("/grading")
		{
			grading.POST("/attempts/:attempt_id/suggestions", hm.gradingHandler.RequestSuggestions)
			grading.GET("/attempts/:attempt_id/suggestions", hm.gradingHandler.ListSuggestions)
			grading.POST("/suggestions/:id/accept", hm.gradingHandler.AcceptSuggestion)
			grading.POST("/suggestions/:id/reject", hm.gradingHandler.RejectSuggestion)
			grading.POST("/answers/:answer_id", hm.gradingHandler.GradeAnswer)
		}
	}
}

// HealthCheck reports liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "assessment-engine",
	})
}
