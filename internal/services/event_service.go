package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/teamhub/assessment-engine/internal/events"
	"github.com/teamhub/assessment-engine/internal/models"
)

// EventService emits domain events after a transaction commits. Publish
// failures are logged and never fail the calling operation.
type EventService interface {
	TestPublished(ctx context.Context, test *models.Test, by string)
	TestClosed(ctx context.Context, test *models.Test, by string)
	AttemptStarted(ctx context.Context, attempt *models.TestAttempt, durationMinutes int)
	AttemptSubmitted(ctx context.Context, attempt *models.TestAttempt, pendingManual int)
	AttemptGraded(ctx context.Context, attempt *models.TestAttempt, by string)
	ManualGradingRequired(ctx context.Context, attempt *models.TestAttempt, teamID uint, questionIDs []uint)
	SuggestionCreated(ctx context.Context, suggestion *models.AiGradingSuggestion)
}

type eventService struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewEventService(publisher events.EventPublisher, logger *slog.Logger) EventService {
	return &eventService{
		publisher: publisher,
		logger:    logger,
	}
}

func (s *eventService) publish(ctx context.Context, event *events.NotificationEvent) {
	if s.publisher == nil {
		return
	}
	// The request context may already be cancelled once the response is out.
	ctx = context.WithoutCancel(ctx)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish domain event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
	}
}

// ===== TEST EVENTS =====

func (s *eventService) TestPublished(ctx context.Context, test *models.Test, by string) {
	s.publish(ctx, events.NewTestPublishedEvent(events.TestPublishedEvent{
		TestID:      test.ID,
		TeamID:      test.TeamID,
		Title:       test.Title,
		StartAt:     test.StartAt,
		EndAt:       test.EndAt,
		Duration:    test.DurationMinutes,
		PublishedBy: by,
	}))
}

func (s *eventService) TestClosed(ctx context.Context, test *models.Test, by string) {
	closedAt := time.Now().UTC()
	if test.ClosedAt != nil {
		closedAt = *test.ClosedAt
	}
	s.publish(ctx, events.NewTestClosedEvent(events.TestClosedEvent{
		TestID:   test.ID,
		TeamID:   test.TeamID,
		Title:    test.Title,
		ClosedAt: closedAt,
		ClosedBy: by,
	}))
}

// ===== ATTEMPT EVENTS =====

func (s *eventService) AttemptStarted(ctx context.Context, attempt *models.TestAttempt, durationMinutes int) {
	var startedAt time.Time
	if attempt.StartedAt != nil {
		startedAt = *attempt.StartedAt
	}
	s.publish(ctx, events.NewAttemptStartedEvent(events.AttemptStartedEvent{
		AttemptID:    attempt.ID,
		TestID:       attempt.TestID,
		MembershipID: attempt.MembershipID,
		StartedAt:    startedAt,
		Duration:     durationMinutes,
	}))
}

func (s *eventService) AttemptSubmitted(ctx context.Context, attempt *models.TestAttempt, pendingManual int) {
	data := events.AttemptSubmittedEvent{
		AttemptID:       attempt.ID,
		TestID:          attempt.TestID,
		MembershipID:    attempt.MembershipID,
		PointsPossible:  attempt.PointsPossible,
		GradingRequired: pendingManual > 0,
	}
	if attempt.SubmittedAt != nil {
		data.SubmittedAt = *attempt.SubmittedAt
	}
	if attempt.GradeEarned != nil {
		data.GradeEarned = *attempt.GradeEarned
	}
	if attempt.ProctoringScore != nil {
		data.ProctoringScore = *attempt.ProctoringScore
	}
	s.publish(ctx, events.NewAttemptSubmittedEvent(data))
}

func (s *eventService) AttemptGraded(ctx context.Context, attempt *models.TestAttempt, by string) {
	data := events.AttemptGradedEvent{
		AttemptID:      attempt.ID,
		TestID:         attempt.TestID,
		MembershipID:   attempt.MembershipID,
		GradedAt:       time.Now().UTC(),
		PointsPossible: attempt.PointsPossible,
		GradedBy:       by,
	}
	if attempt.GradeEarned != nil {
		data.GradeEarned = *attempt.GradeEarned
	}
	s.publish(ctx, events.NewAttemptGradedEvent(data))
}

// ===== GRADING EVENTS =====

func (s *eventService) ManualGradingRequired(ctx context.Context, attempt *models.TestAttempt, teamID uint, questionIDs []uint) {
	s.publish(ctx, events.NewManualGradingRequiredEvent(events.ManualGradingRequiredEvent{
		AttemptID:    attempt.ID,
		TestID:       attempt.TestID,
		TeamID:       teamID,
		PendingCount: len(questionIDs),
		QuestionIDs:  questionIDs,
	}))
}

func (s *eventService) SuggestionCreated(ctx context.Context, suggestion *models.AiGradingSuggestion) {
	s.publish(ctx, events.NewSuggestionCreatedEvent(events.SuggestionCreatedEvent{
		SuggestionID:    suggestion.ID,
		AttemptID:       suggestion.AttemptID,
		AnswerID:        suggestion.AnswerID,
		SuggestedPoints: suggestion.SuggestedPoints,
		MaxPoints:       suggestion.MaxPoints,
		Provider:        suggestion.Provider,
	}))
}
