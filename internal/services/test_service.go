package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teamhub/assessment-engine/internal/access"
	"github.com/teamhub/assessment-engine/internal/cache"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/teamhub/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

type testService struct {
	repo      repositories.Repository
	identity  IdentityResolver
	roster    RosterLookup
	validator *validator.Validator
	cache     cache.CacheService
	cacheTTL  time.Duration
	events    EventService
	log       *ServiceLogger
	now       func() time.Time
}

func NewTestService(deps Dependencies) TestService {
	return &testService{
		repo:      deps.Repo,
		identity:  deps.Identity,
		roster:    deps.Roster,
		validator: deps.Validator,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		events:    deps.Events,
		log:       NewServiceLogger(deps.Logger, LogConfig{Service: "assessment-engine", Component: "test"}),
		now:       deps.clock(),
	}
}

// ===== TEST LIFECYCLE =====

func (s *testService) Create(ctx context.Context, req *CreateTestRequest, caller Caller) (test *models.Test, err error) {
	op := s.log.WithOperation(ctx, "create_test", caller.UserID)
	defer func() { op.LogResult(idOf(test), "test", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if errs := validateWindow(req.StartAt, req.EndAt, req.AllowLateUntil); len(errs) > 0 {
		return nil, errs
	}
	if _, err := requireElevated(ctx, s.identity, req.TeamID, caller, 0, "test", "create"); err != nil {
		return nil, err
	}

	policy := req.ReleasePolicy
	if policy == "" {
		policy = models.ReleaseImmediate
	}

	test = &models.Test{
		TeamID:          req.TeamID,
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		AllowLateUntil:  req.AllowLateUntil,
		Status:          models.TestStatusDraft,
		MaxAttempts:     req.MaxAttempts,
		ReleasePolicy:   policy,
		CreatedBy:       caller.UserID,
		Version:         1,
	}
	if err := s.repo.Test().Create(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}
	return test, nil
}

func (s *testService) Update(ctx context.Context, testID uint, req *UpdateTestRequest, caller Caller) (test *models.Test, err error) {
	op := s.log.WithOperation(ctx, "update_test", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test, err = s.loadForAuthoring(ctx, testID, caller, "update")
	if err != nil {
		return nil, err
	}
	if test.Status != models.TestStatusDraft {
		return nil, ErrTestNotEditable
	}

	if req.Title != nil {
		test.Title = *req.Title
	}
	if req.Description != nil {
		test.Description = req.Description
	}
	if req.DurationMinutes != nil {
		test.DurationMinutes = *req.DurationMinutes
	}
	if req.StartAt != nil {
		test.StartAt = req.StartAt
	}
	if req.EndAt != nil {
		test.EndAt = req.EndAt
	}
	if req.AllowLateUntil != nil {
		test.AllowLateUntil = req.AllowLateUntil
	}
	if req.MaxAttempts != nil {
		test.MaxAttempts = req.MaxAttempts
	}
	if req.ReleasePolicy != nil {
		test.ReleasePolicy = *req.ReleasePolicy
	}

	if errs := validateWindow(test.StartAt, test.EndAt, test.AllowLateUntil); len(errs) > 0 {
		return nil, errs
	}
	if err := s.repo.Test().Update(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("failed to update test: %w", err)
	}
	return test, nil
}

func (s *testService) Publish(ctx context.Context, testID uint, caller Caller) (test *models.Test, err error) {
	op := s.log.WithOperation(ctx, "publish_test", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	if _, err := s.loadForAuthoring(ctx, testID, caller, "publish"); err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		test, err = s.repo.Test().GetWithDetails(ctx, tx, testID)
		if err != nil {
			return notFound(err, ErrTestNotFound, "test")
		}
		if test.Status != models.TestStatusDraft {
			return ErrTestInvalidStatus
		}
		if errs := s.validator.Question().ValidateForPublish(test.Questions); len(errs) > 0 {
			return errs
		}

		test.Status = models.TestStatusPublished
		test.PublishedAt = timePtr(s.now())
		return s.repo.Test().Update(ctx, tx, test)
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePaper(ctx, testID)
	s.events.TestPublished(ctx, test, caller.UserID)
	return test, nil
}

func (s *testService) Close(ctx context.Context, testID uint, caller Caller) (test *models.Test, err error) {
	op := s.log.WithOperation(ctx, "close_test", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	test, err = s.loadForAuthoring(ctx, testID, caller, "close")
	if err != nil {
		return nil, err
	}
	if test.Status != models.TestStatusPublished {
		return nil, ErrTestInvalidStatus
	}

	test.Status = models.TestStatusClosed
	test.ClosedAt = timePtr(s.now())
	if err := s.repo.Test().Update(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("failed to close test: %w", err)
	}

	s.invalidatePaper(ctx, testID)
	s.events.TestClosed(ctx, test, caller.UserID)
	return test, nil
}

func (s *testService) ReleaseScores(ctx context.Context, testID uint, caller Caller) (test *models.Test, err error) {
	op := s.log.WithOperation(ctx, "release_scores", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	test, err = s.loadForAuthoring(ctx, testID, caller, "release scores of")
	if err != nil {
		return nil, err
	}
	if test.ReleasePolicy != models.ReleaseManual {
		return nil, ErrScoresNotManual
	}
	if test.Status == models.TestStatusDraft {
		return nil, ErrTestInvalidStatus
	}
	if test.ScoresReleasedAt != nil {
		return test, nil
	}

	test.ScoresReleasedAt = timePtr(s.now())
	if err := s.repo.Test().Update(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("failed to release scores: %w", err)
	}
	return test, nil
}

// ===== QUESTIONS =====

func (s *testService) AddQuestion(ctx context.Context, testID uint, req *QuestionRequest, caller Caller) (question *models.Question, err error) {
	op := s.log.WithOperation(ctx, "add_question", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.loadDraft(ctx, testID, caller, "edit"); err != nil {
		return nil, err
	}

	question = buildQuestion(testID, req)
	if errs := s.validator.Question().ValidateQuestion(question); len(errs) > 0 {
		return nil, errs
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		pos, err := s.repo.Question().NextPosition(ctx, tx, testID)
		if err != nil {
			return err
		}
		question.Position = pos
		return s.repo.Question().Create(ctx, tx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add question: %w", err)
	}
	return question, nil
}

func (s *testService) UpdateQuestion(ctx context.Context, testID, questionID uint, req *QuestionRequest, caller Caller) (question *models.Question, err error) {
	op := s.log.WithOperation(ctx, "update_question", caller.UserID)
	defer func() { op.LogResult(questionID, "question", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.loadDraft(ctx, testID, caller, "edit"); err != nil {
		return nil, err
	}

	existing, err := s.repo.Question().GetByID(ctx, nil, questionID)
	if err != nil {
		return nil, notFound(err, ErrQuestionNotFound, "question")
	}
	if existing.TestID != testID {
		return nil, ErrQuestionNotFound
	}

	question = buildQuestion(testID, req)
	question.ID = existing.ID
	question.Position = existing.Position
	question.CreatedAt = existing.CreatedAt
	if errs := s.validator.Question().ValidateQuestion(question); len(errs) > 0 {
		return nil, errs
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		return s.repo.Question().Update(ctx, tx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}
	return question, nil
}

func (s *testService) DeleteQuestion(ctx context.Context, testID, questionID uint, caller Caller) (err error) {
	op := s.log.WithOperation(ctx, "delete_question", caller.UserID)
	defer func() { op.LogResult(questionID, "question", err) }()

	if _, err := s.loadDraft(ctx, testID, caller, "edit"); err != nil {
		return err
	}

	existing, err := s.repo.Question().GetByID(ctx, nil, questionID)
	if err != nil {
		return notFound(err, ErrQuestionNotFound, "question")
	}
	if existing.TestID != testID {
		return ErrQuestionNotFound
	}

	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		return s.repo.Question().Delete(ctx, tx, questionID)
	})
}

// ===== ACCESS SETTINGS =====

func (s *testService) SetAssignments(ctx context.Context, testID uint, req *SetAssignmentsRequest, caller Caller) (assignments []models.TestAssignment, err error) {
	op := s.log.WithOperation(ctx, "set_assignments", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	test, err := s.loadForAuthoring(ctx, testID, caller, "assign")
	if err != nil {
		return nil, err
	}
	if test.Status == models.TestStatusClosed {
		return nil, ErrTestNotEditable
	}

	var errs ValidationErrors
	assignments = make([]models.TestAssignment, 0, len(req.Assignments))
	for i, a := range req.Assignments {
		row := models.TestAssignment{TestID: testID, Scope: a.Scope}
		switch a.Scope {
		case models.ScopeSubteam:
			row.SubteamID = a.SubteamID
		case models.ScopePersonal:
			row.MembershipID = a.MembershipID
		case models.ScopeEvent:
			row.EventID = a.EventID
		}
		if _, err := access.AudienceOf(row); err != nil {
			errs = append(errs, *NewValidationError(fmt.Sprintf("assignments[%d]", i), "scope payload is missing", a.Scope))
			continue
		}
		assignments = append(assignments, row)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		return s.repo.Assignment().ReplaceForTest(ctx, tx, testID, assignments)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace assignments: %w", err)
	}
	return assignments, nil
}

func (s *testService) SetPassword(ctx context.Context, testID uint, req *SetPasswordRequest, caller Caller) (err error) {
	op := s.log.WithOperation(ctx, "set_password", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	if err := s.validator.Validate(req); err != nil {
		return err
	}
	test, err := s.loadForAuthoring(ctx, testID, caller, "protect")
	if err != nil {
		return err
	}
	if test.Status == models.TestStatusClosed {
		return ErrTestNotEditable
	}

	if req.Password == "" {
		test.PasswordHash = nil
	} else {
		hash, err := access.HashPassword(req.Password)
		if err != nil {
			return err
		}
		test.PasswordHash = &hash
	}

	if err := s.repo.Test().Update(ctx, nil, test); err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	s.invalidatePaper(ctx, testID)
	return nil
}

// ===== READS =====

func (s *testService) GetForAuthor(ctx context.Context, testID uint, caller Caller) (*models.Test, error) {
	test, err := s.repo.Test().GetWithDetails(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	if _, err := requireElevated(ctx, s.identity, test.TeamID, caller, testID, "test", "view"); err != nil {
		return nil, err
	}
	return test, nil
}

// GetPaper returns the learner view of a published test. Non-elevated
// callers need an attempt in progress, or must pass the start gate without
// a password.
func (s *testService) GetPaper(ctx context.Context, testID uint, caller Caller) (*TestPaper, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}

	who, err := requesterFor(ctx, s.identity, s.roster, test.TeamID, caller)
	if err != nil {
		return nil, err
	}
	if !who.Elevated {
		if test.Status != models.TestStatusPublished {
			return nil, NewAccessDeniedError(access.ReasonNotPublished)
		}
		taking, err := s.hasAttemptInProgress(ctx, who.MembershipID, testID)
		if err != nil {
			return nil, err
		}
		if !taking {
			assignments, err := s.repo.Assignment().ListByTest(ctx, nil, testID)
			if err != nil {
				return nil, fmt.Errorf("failed to load assignments: %w", err)
			}
			test.Assignments = assignments
			if d := access.CanStart(test, who, "", s.now()); !d.Allowed {
				return nil, NewAccessDeniedError(d.Reason)
			}
		}
	}

	return s.loadPaper(ctx, testID)
}

func (s *testService) hasAttemptInProgress(ctx context.Context, membershipID, testID uint) (bool, error) {
	if membershipID == 0 {
		return false, nil
	}
	active, err := s.repo.Attempt().GetActive(ctx, nil, membershipID, testID)
	if err != nil {
		return false, fmt.Errorf("failed to load active attempt: %w", err)
	}
	return active != nil && active.Status == models.AttemptInProgress, nil
}

func (s *testService) ListByTeam(ctx context.Context, teamID uint, filters repositories.TestFilters, caller Caller) (*TestListResponse, error) {
	member, err := s.identity.ResolveMember(ctx, caller.UserID, teamID, caller.PlatformAdmin)
	if err != nil {
		return nil, err
	}
	if !member.Elevated && (filters.Status == nil || *filters.Status == models.TestStatusDraft) {
		published := models.TestStatusPublished
		filters.Status = &published
	}

	tests, total, err := s.repo.Test().ListByTeam(ctx, nil, teamID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return &TestListResponse{
		Tests:  tests,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// ===== HELPERS =====

func (s *testService) loadForAuthoring(ctx context.Context, testID uint, caller Caller, action string) (*models.Test, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	if _, err := requireElevated(ctx, s.identity, test.TeamID, caller, testID, "test", action); err != nil {
		return nil, err
	}
	return test, nil
}

func (s *testService) loadDraft(ctx context.Context, testID uint, caller Caller, action string) (*models.Test, error) {
	test, err := s.loadForAuthoring(ctx, testID, caller, action)
	if err != nil {
		return nil, err
	}
	if test.Status != models.TestStatusDraft {
		return nil, ErrTestNotEditable
	}
	return test, nil
}

func (s *testService) loadPaper(ctx context.Context, testID uint) (*TestPaper, error) {
	key := cache.TestPaperKey(testID)

	var paper TestPaper
	err := s.cache.Get(ctx, key, &paper)
	if err == nil {
		return &paper, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Logger().Warn("Paper cache read failed", "test_id", testID, "error", err)
	}

	test, err := s.repo.Test().GetWithDetails(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	out := toPaper(test)
	if test.Status == models.TestStatusPublished {
		_ = s.cache.Set(ctx, key, out, s.cacheTTL)
	}
	return out, nil
}

func (s *testService) invalidatePaper(ctx context.Context, testID uint) {
	if err := s.cache.Delete(ctx, cache.TestPaperKey(testID)); err != nil {
		s.log.Logger().Warn("Failed to invalidate paper cache", "test_id", testID, "error", err)
	}
}

func buildQuestion(testID uint, req *QuestionRequest) *models.Question {
	q := &models.Question{
		TestID:         testID,
		Type:           req.Type,
		Prompt:         req.Prompt,
		Explanation:    req.Explanation,
		Points:         req.Points,
		Tolerance:      req.Tolerance,
		AcceptedValues: req.AcceptedValues,
	}
	for i, opt := range req.Options {
		q.Options = append(q.Options, models.QuestionOption{
			Position:  i + 1,
			Label:     opt.Label,
			IsCorrect: opt.IsCorrect,
		})
	}
	return q
}

func validateWindow(startAt, endAt, lateUntil *time.Time) ValidationErrors {
	var errs ValidationErrors
	if startAt != nil && endAt != nil && !endAt.After(*startAt) {
		errs = append(errs, *NewValidationError("end_at", "must be after start_at", endAt))
	}
	if lateUntil != nil {
		if endAt == nil {
			errs = append(errs, *NewValidationError("allow_late_until", "requires end_at", lateUntil))
		} else if !lateUntil.After(*endAt) {
			errs = append(errs, *NewValidationError("allow_late_until", "must be after end_at", lateUntil))
		}
	}
	return errs
}

func idOf(test *models.Test) uint {
	if test == nil {
		return 0
	}
	return test.ID
}
