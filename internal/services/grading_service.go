package services

import (
	"context"
	"fmt"
	"time"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/teamhub/assessment-engine/internal/scorer"
	"github.com/teamhub/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

type gradingService struct {
	repo      repositories.Repository
	identity  IdentityResolver
	validator *validator.Validator
	scorer    scorer.Scorer
	events    EventService
	log       *ServiceLogger
	now       func() time.Time
}

func NewGradingService(deps Dependencies) GradingService {
	return &gradingService{
		repo:      deps.Repo,
		identity:  deps.Identity,
		validator: deps.Validator,
		scorer:    deps.Scorer,
		events:    deps.Events,
		log:       NewServiceLogger(deps.Logger, LogConfig{Service: "assessment-engine", Component: "grading"}),
		now:       deps.clock(),
	}
}

// gradingScope is a submitted attempt together with its test, loaded for an
// elevated member of the test's team.
type gradingScope struct {
	attempt *models.TestAttempt
	test    *models.Test
}

func (s *gradingService) loadScope(ctx context.Context, attemptID uint, caller Caller, action string) (*gradingScope, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, notFound(err, ErrAttemptNotFound, "attempt")
	}
	test, err := s.repo.Test().GetWithDetails(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	if _, err := requireElevated(ctx, s.identity, test.TeamID, caller, attemptID, "attempt", action); err != nil {
		return nil, err
	}
	return &gradingScope{attempt: attempt, test: test}, nil
}

// ===== AI SUGGESTIONS =====

// RequestSuggestions asks the scorer for every free-response answer still
// awaiting a grader. Scorer calls happen outside any transaction; each
// suggestion is stored as UNREVIEWED and never changes the answer score.
func (s *gradingService) RequestSuggestions(ctx context.Context, attemptID uint, answerID *uint, caller Caller) (batch *SuggestionBatch, err error) {
	op := s.log.WithOperation(ctx, "request_suggestions", caller.UserID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	scope, err := s.loadScope(ctx, attemptID, caller, "request suggestions for")
	if err != nil {
		return nil, err
	}
	if !scope.attempt.Status.IsFinished() {
		return nil, ErrAttemptNotSubmitted
	}
	if s.scorer == nil {
		return nil, ErrScorerUnavailable
	}

	candidates, err := s.suggestionCandidates(ctx, scope, answerID)
	if err != nil {
		return nil, err
	}

	batch = &SuggestionBatch{
		Suggestions: []models.AiGradingSuggestion{},
		Failures:    []SuggestionFailure{},
	}
	for _, answer := range candidates {
		q := scope.test.QuestionByID(answer.QuestionID)
		suggestion, serr := s.suggest(ctx, q, answer)
		if serr != nil {
			s.log.Logger().Warn("Scorer failed for answer",
				"attempt_id", attemptID,
				"answer_id", answer.ID,
				"error", serr)
			if answerID != nil {
				return nil, fmt.Errorf("%w: %v", ErrScorerUnavailable, serr)
			}
			batch.Failures = append(batch.Failures, SuggestionFailure{
				AnswerID:   answer.ID,
				QuestionID: answer.QuestionID,
				Error:      serr.Error(),
			})
			continue
		}

		stored, err := s.repo.Suggestion().Upsert(ctx, nil, suggestion)
		if err != nil {
			return nil, fmt.Errorf("failed to store suggestion: %w", err)
		}
		if !stored {
			// accepted while the scorer was running
			if answerID != nil {
				return nil, ErrSuggestionAlreadyReviewed
			}
			batch.Failures = append(batch.Failures, SuggestionFailure{
				AnswerID:   answer.ID,
				QuestionID: answer.QuestionID,
				Error:      ErrSuggestionAlreadyReviewed.Error(),
			})
			continue
		}
		s.events.SuggestionCreated(ctx, suggestion)
		batch.Suggestions = append(batch.Suggestions, *suggestion)
	}
	return batch, nil
}

// suggestionCandidates picks free-response answers that need a grader and
// have no accepted suggestion yet.
func (s *gradingService) suggestionCandidates(ctx context.Context, scope *gradingScope, answerID *uint) ([]*models.AttemptAnswer, error) {
	existing, err := s.repo.Suggestion().ListByAttempt(ctx, nil, scope.attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}
	accepted := make(map[uint]bool, len(existing))
	for _, sug := range existing {
		if sug.Status == models.SuggestionAccepted {
			accepted[sug.AnswerID] = true
		}
	}

	eligible := func(a *models.AttemptAnswer) bool {
		q := scope.test.QuestionByID(a.QuestionID)
		return q != nil && q.Type.IsFreeResponse() && a.NeedsManualGrade
	}

	if answerID != nil {
		for i := range scope.attempt.Answers {
			a := &scope.attempt.Answers[i]
			if a.ID != *answerID {
				continue
			}
			if !eligible(a) {
				return nil, ErrNotManuallyGradable
			}
			if accepted[a.ID] {
				return nil, ErrSuggestionAlreadyReviewed
			}
			return []*models.AttemptAnswer{a}, nil
		}
		return nil, ErrAnswerNotFound
	}

	var out []*models.AttemptAnswer
	for i := range scope.attempt.Answers {
		a := &scope.attempt.Answers[i]
		if eligible(a) && a.IsPendingManual() && !accepted[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *gradingService) suggest(ctx context.Context, q *models.Question, answer *models.AttemptAnswer) (*models.AiGradingSuggestion, error) {
	req := scorer.Request{
		QuestionID: q.ID,
		Prompt:     q.Prompt,
		MaxPoints:  q.Points,
	}
	if q.Explanation != nil {
		req.Rubric = *q.Explanation
	}
	if answer.TextResponse != nil {
		req.Response = *answer.TextResponse
	}

	out, err := s.scorer.Suggest(ctx, req)
	if err != nil {
		return nil, err
	}

	suggestion := &models.AiGradingSuggestion{
		AttemptID:       answer.AttemptID,
		AnswerID:        answer.ID,
		SuggestedPoints: scorer.Clamp(out.Score, q.Points),
		MaxPoints:       q.Points,
		Rationale:       out.Rationale,
		Provider:        out.Provider,
		Status:          models.SuggestionUnreviewed,
	}
	if out.Evidence != "" {
		evidence := out.Evidence
		suggestion.Evidence = &evidence
	}
	return suggestion, nil
}

func (s *gradingService) AcceptSuggestion(ctx context.Context, suggestionID uint, req *AcceptSuggestionRequest, caller Caller) (result *GradeResult, err error) {
	op := s.log.WithOperation(ctx, "accept_suggestion", caller.UserID)
	defer func() { op.LogResult(suggestionID, "suggestion", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	suggestion, err := s.repo.Suggestion().GetByID(ctx, nil, suggestionID)
	if err != nil {
		return nil, notFound(err, ErrSuggestionNotFound, "suggestion")
	}
	scope, err := s.loadScope(ctx, suggestion.AttemptID, caller, "grade")
	if err != nil {
		return nil, err
	}

	var graded bool
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.Suggestion().GetForUpdate(ctx, tx, suggestionID)
		if err != nil {
			return notFound(err, ErrSuggestionNotFound, "suggestion")
		}
		if locked.Status != models.SuggestionUnreviewed {
			return ErrSuggestionAlreadyReviewed
		}

		points := locked.SuggestedPoints
		if req.Points != nil {
			points = *req.Points
		}

		result, graded, err = s.applyGrade(ctx, tx, scope.test, locked.AttemptID, locked.AnswerID, points, req.Note, caller.UserID)
		if err != nil {
			return err
		}

		now := s.now()
		locked.Status = models.SuggestionAccepted
		locked.ReviewedBy = &caller.UserID
		locked.ReviewedAt = &now
		return s.repo.Suggestion().Update(ctx, tx, locked)
	})
	if err != nil {
		return nil, err
	}

	s.afterGrade(ctx, scope.attempt.ID, graded, caller)
	return result, nil
}

func (s *gradingService) RejectSuggestion(ctx context.Context, suggestionID uint, caller Caller) (rejected *models.AiGradingSuggestion, err error) {
	op := s.log.WithOperation(ctx, "reject_suggestion", caller.UserID)
	defer func() { op.LogResult(suggestionID, "suggestion", err) }()

	suggestion, err := s.repo.Suggestion().GetByID(ctx, nil, suggestionID)
	if err != nil {
		return nil, notFound(err, ErrSuggestionNotFound, "suggestion")
	}
	if _, err := s.loadScope(ctx, suggestion.AttemptID, caller, "grade"); err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.Suggestion().GetForUpdate(ctx, tx, suggestionID)
		if err != nil {
			return notFound(err, ErrSuggestionNotFound, "suggestion")
		}
		if locked.Status != models.SuggestionUnreviewed {
			return ErrSuggestionAlreadyReviewed
		}
		now := s.now()
		locked.Status = models.SuggestionRejected
		locked.ReviewedBy = &caller.UserID
		locked.ReviewedAt = &now
		rejected = locked
		return s.repo.Suggestion().Update(ctx, tx, locked)
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// ===== MANUAL GRADING =====

func (s *gradingService) GradeAnswer(ctx context.Context, answerID uint, req *ManualGradeRequest, caller Caller) (result *GradeResult, err error) {
	op := s.log.WithOperation(ctx, "grade_answer", caller.UserID)
	defer func() { op.LogResult(answerID, "answer", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	answer, err := s.repo.Answer().GetByID(ctx, nil, answerID)
	if err != nil {
		return nil, notFound(err, ErrAnswerNotFound, "answer")
	}
	scope, err := s.loadScope(ctx, answer.AttemptID, caller, "grade")
	if err != nil {
		return nil, err
	}

	var graded bool
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		result, graded, err = s.applyGrade(ctx, tx, scope.test, answer.AttemptID, answerID, req.Points, req.Note, caller.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterGrade(ctx, scope.attempt.ID, graded, caller)
	return result, nil
}

// applyGrade stores a grader's score on one answer and recomputes the
// attempt total from every answer row. The attempt becomes GRADED once no
// answer is pending. The returned flag reports that transition.
func (s *gradingService) applyGrade(ctx context.Context, tx *gorm.DB, test *models.Test, attemptID, answerID uint, points float64, note *string, by string) (*GradeResult, bool, error) {
	attempt, err := s.repo.Attempt().GetForUpdate(ctx, tx, attemptID)
	if err != nil {
		return nil, false, notFound(err, ErrAttemptNotFound, "attempt")
	}
	if !attempt.Status.IsFinished() {
		return nil, false, ErrAttemptNotSubmitted
	}

	answer, err := s.repo.Answer().GetByID(ctx, tx, answerID)
	if err != nil {
		return nil, false, notFound(err, ErrAnswerNotFound, "answer")
	}
	if answer.AttemptID != attemptID {
		return nil, false, ErrAnswerNotFound
	}
	q := test.QuestionByID(answer.QuestionID)
	if q == nil || !answer.NeedsManualGrade {
		return nil, false, ErrNotManuallyGradable
	}
	if points < 0 || points > q.Points {
		return nil, false, fmt.Errorf("%w: points must be between 0 and %g", ErrGradingInvalidScore, q.Points)
	}

	now := s.now()
	answer.PointsAwarded = float64Ptr(points)
	answer.AutoGraded = false
	answer.GradedAt = &now
	answer.GradedBy = &by
	answer.GraderNote = note
	if err := s.repo.Answer().UpsertGrades(ctx, tx, []*models.AttemptAnswer{answer}); err != nil {
		return nil, false, fmt.Errorf("failed to store grade: %w", err)
	}

	answers, err := s.repo.Answer().ListByAttempt(ctx, tx, attemptID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load answers: %w", err)
	}
	var earned float64
	pending := 0
	for i := range answers {
		a := &answers[i]
		if test.QuestionByID(a.QuestionID) == nil {
			continue
		}
		if a.IsPendingManual() {
			pending++
			continue
		}
		if a.PointsAwarded != nil {
			earned += *a.PointsAwarded
		}
	}

	transitioned := false
	attempt.GradeEarned = float64Ptr(earned)
	if pending == 0 && attempt.Status == models.AttemptSubmitted {
		attempt.Status = models.AttemptGraded
		transitioned = true
	}
	if err := s.repo.Attempt().Update(ctx, tx, attempt); err != nil {
		return nil, false, fmt.Errorf("failed to update attempt: %w", err)
	}

	return &GradeResult{
		Answer:        answer,
		AttemptStatus: attempt.Status,
		GradeEarned:   earned,
		PendingManual: pending,
	}, transitioned, nil
}

func (s *gradingService) afterGrade(ctx context.Context, attemptID uint, graded bool, caller Caller) {
	if !graded {
		return
	}
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		s.log.Logger().Warn("Failed to reload graded attempt", "attempt_id", attemptID, "error", err)
		return
	}
	s.log.Logger().Info("Attempt fully graded", "attempt_id", attemptID, "graded_by", caller.UserID)
	s.events.AttemptGraded(ctx, attempt, caller.UserID)
}

// ===== READS =====

func (s *gradingService) ListPending(ctx context.Context, testID uint, caller Caller) ([]PendingAnswer, error) {
	test, err := s.repo.Test().GetWithDetails(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	if _, err := requireElevated(ctx, s.identity, test.TeamID, caller, testID, "test", "grade"); err != nil {
		return nil, err
	}

	answers, err := s.repo.Answer().ListPendingManual(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending answers: %w", err)
	}

	pending := make([]PendingAnswer, 0, len(answers))
	for _, a := range answers {
		q := test.QuestionByID(a.QuestionID)
		if q == nil {
			continue
		}
		pending = append(pending, PendingAnswer{
			AnswerID:     a.ID,
			AttemptID:    a.AttemptID,
			QuestionID:   q.ID,
			QuestionType: q.Type,
			Prompt:       q.Prompt,
			MaxPoints:    q.Points,
			TextResponse: a.TextResponse,
		})
	}
	return pending, nil
}

func (s *gradingService) ListSuggestions(ctx context.Context, attemptID uint, caller Caller) ([]models.AiGradingSuggestion, error) {
	if _, err := s.loadScope(ctx, attemptID, caller, "view suggestions for"); err != nil {
		return nil, err
	}
	suggestions, err := s.repo.Suggestion().ListByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	return suggestions, nil
}
