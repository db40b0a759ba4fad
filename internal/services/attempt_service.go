package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/teamhub/assessment-engine/internal/access"
	"github.com/teamhub/assessment-engine/internal/grading"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/proctoring"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/teamhub/assessment-engine/internal/validator"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxShortTextLength    = 500
	maxLongTextLength     = 20000
	maxEventMetadataBytes = 4096
)

type attemptService struct {
	repo      repositories.Repository
	identity  IdentityResolver
	roster    RosterLookup
	validator *validator.Validator
	events    EventService
	policy    proctoring.Policy
	log       *ServiceLogger
	now       func() time.Time
}

func NewAttemptService(deps Dependencies) AttemptService {
	return &attemptService{
		repo:      deps.Repo,
		identity:  deps.Identity,
		roster:    deps.Roster,
		validator: deps.Validator,
		events:    deps.Events,
		policy:    deps.Policy,
		log:       NewServiceLogger(deps.Logger, LogConfig{Service: "assessment-engine", Component: "attempt"}),
		now:       deps.clock(),
	}
}

// ===== START =====

func (s *attemptService) CheckStart(ctx context.Context, testID uint, password string, caller Caller) (*StartCheck, error) {
	test, err := s.repo.Test().GetWithDetails(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}

	who, err := requesterFor(ctx, s.identity, s.roster, test.TeamID, caller)
	if errors.Is(err, ErrNotTeamMember) || (err == nil && who.MembershipID == 0) {
		return &StartCheck{Reason: access.ReasonNotTeamMember, MaxAttempts: test.MaxAttempts}, nil
	}
	if err != nil {
		return nil, err
	}

	decision := access.CanStart(test, who, password, s.now())
	check := &StartCheck{
		Allowed:     decision.Allowed,
		Reason:      decision.Reason,
		MaxAttempts: test.MaxAttempts,
	}

	active, err := s.repo.Attempt().GetActive(ctx, nil, who.MembershipID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active attempt: %w", err)
	}
	check.AttemptsUsed, err = s.repo.Attempt().CountFinished(ctx, nil, who.MembershipID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	if active != nil {
		check.ActiveAttemptID = &active.ID
	} else if decision.Allowed {
		if limit := access.CheckAttemptLimit(test, check.AttemptsUsed, who.Elevated); !limit.Allowed {
			check.Allowed, check.Reason = false, limit.Reason
		}
	}
	return check, nil
}

// Start opens an attempt or resumes the caller's open one. Concurrent starts
// for the same member and test converge on a single attempt.
func (s *attemptService) Start(ctx context.Context, testID uint, req *StartAttemptRequest, caller Caller) (result *StartResult, err error) {
	op := s.log.WithOperation(ctx, "start_attempt", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetWithDetails(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}

	who, err := requesterFor(ctx, s.identity, s.roster, test.TeamID, caller)
	if errors.Is(err, ErrNotTeamMember) || (err == nil && who.MembershipID == 0) {
		return nil, NewAccessDeniedError(access.ReasonNotTeamMember)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if d := access.CanStart(test, who, req.Password, now); !d.Allowed {
		return nil, NewAccessDeniedError(d.Reason)
	}

	var attempt *models.TestAttempt
	resumed := false
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		active, err := s.repo.Attempt().GetActive(ctx, tx, who.MembershipID, testID)
		if err != nil {
			return err
		}
		if active != nil {
			resumed = true
			attempt = active
			if active.Status == models.AttemptNotStarted {
				stampStart(active, req, caller, now)
				return s.repo.Attempt().Update(ctx, tx, active)
			}
			return nil
		}

		finished, err := s.repo.Attempt().CountFinished(ctx, tx, who.MembershipID, testID)
		if err != nil {
			return err
		}
		if d := access.CheckAttemptLimit(test, finished, who.Elevated); !d.Allowed {
			return NewAccessDeniedError(d.Reason)
		}

		key := models.ActiveAttemptKey(who.MembershipID, testID)
		attempt = &models.TestAttempt{
			TestID:         testID,
			MembershipID:   who.MembershipID,
			ActiveKey:      &key,
			PointsPossible: test.TotalPoints(),
		}
		stampStart(attempt, req, caller, now)
		return s.repo.Attempt().Create(ctx, tx, attempt)
	})

	if repositories.IsDuplicateError(err) {
		// Lost the race to a concurrent start; hand back the winner.
		winner, gerr := s.repo.Attempt().GetActive(ctx, nil, who.MembershipID, testID)
		if gerr != nil {
			return nil, fmt.Errorf("failed to load concurrent attempt: %w", gerr)
		}
		if winner == nil {
			return nil, ErrConflict
		}
		attempt, resumed, err = winner, true, nil
	}
	if err != nil {
		var denied *AccessDeniedError
		if errors.As(err, &denied) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to start attempt: %w", err)
	}

	if resumed {
		s.log.Logger().Info("Resuming existing attempt", "attempt_id", attempt.ID, "test_id", testID)
	} else {
		s.events.AttemptStarted(ctx, attempt, test.DurationMinutes)
	}

	return &StartResult{
		Attempt: toAttemptView(attempt, scoresReleased(test, now), who.Elevated),
		Resumed: resumed,
		Paper:   toPaper(test),
	}, nil
}

func stampStart(attempt *models.TestAttempt, req *StartAttemptRequest, caller Caller, now time.Time) {
	attempt.Status = models.AttemptInProgress
	attempt.StartedAt = timePtr(now)
	attempt.StartIP = optionalString(caller.IPAddress)
	attempt.StartUserAgent = optionalString(caller.UserAgent)
	attempt.ClientFingerprintHash = optionalString(req.FingerprintHash)
}

// ===== AUTOSAVE =====

// SaveProgress stores the valid answers of the batch and reports the rest.
// Counters keep the highest value ever reported.
func (s *attemptService) SaveProgress(ctx context.Context, attemptID uint, req *AutosaveRequest, caller Caller) (result *AutosaveResult, err error) {
	op := s.log.WithOperation(ctx, "save_progress", caller.UserID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	_, test, err := s.loadOwned(ctx, attemptID, caller)
	if err != nil {
		return nil, err
	}

	now := s.now()
	valid, failed := collectAnswers(test, attemptID, req.Answers, now)

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		attempt, err := s.repo.Attempt().GetForUpdate(ctx, tx, attemptID)
		if err != nil {
			return notFound(err, ErrAttemptNotFound, "attempt")
		}
		if attempt.Status != models.AttemptInProgress {
			return ErrAttemptFrozen
		}

		if err := s.repo.Answer().UpsertContent(ctx, tx, valid); err != nil {
			return fmt.Errorf("failed to save answers: %w", err)
		}
		if applyCounters(attempt, req.TabSwitchCount, req.TimeOffPageSeconds) {
			return s.repo.Attempt().Update(ctx, tx, attempt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result = &AutosaveResult{
		Saved:   make([]uint, 0, len(valid)),
		Failed:  failed,
		SavedAt: now,
	}
	for _, a := range valid {
		result.Saved = append(result.Saved, a.QuestionID)
	}
	if result.Failed == nil {
		result.Failed = AnswerErrors{}
	}
	return result, nil
}

// collectAnswers validates a batch against the test. When a question
// appears more than once the last entry wins.
func collectAnswers(test *models.Test, attemptID uint, inputs []AnswerInput, now time.Time) ([]*models.AttemptAnswer, AnswerErrors) {
	var failed AnswerErrors
	byQuestion := make(map[uint]*models.AttemptAnswer, len(inputs))
	order := make([]uint, 0, len(inputs))

	for _, in := range inputs {
		q := test.QuestionByID(in.QuestionID)
		if aerr := validateAnswer(q, in); aerr != nil {
			failed = append(failed, *aerr)
			continue
		}
		if _, seen := byQuestion[in.QuestionID]; !seen {
			order = append(order, in.QuestionID)
		}
		byQuestion[in.QuestionID] = &models.AttemptAnswer{
			AttemptID:         attemptID,
			QuestionID:        in.QuestionID,
			TextResponse:      in.TextResponse,
			SelectedOptionIDs: datatypes.JSONSlice[uint](in.SelectedOptionIDs),
			NumericResponse:   in.NumericResponse,
			AnsweredAt:        timePtr(now),
		}
	}

	valid := make([]*models.AttemptAnswer, 0, len(order))
	for _, id := range order {
		valid = append(valid, byQuestion[id])
	}
	return valid, failed
}

func validateAnswer(q *models.Question, in AnswerInput) *AnswerError {
	fail := func(code, message string) *AnswerError {
		return &AnswerError{QuestionID: in.QuestionID, Code: code, Message: message}
	}

	if q == nil {
		return fail(AnswerUnknownQuestion, "question is not part of this test")
	}

	switch {
	case q.Type.IsChoice():
		if in.TextResponse != nil || in.NumericResponse != nil {
			return fail(AnswerShapeMismatch, "choice questions take selected_option_ids only")
		}
		for _, id := range in.SelectedOptionIDs {
			if !q.HasOption(id) {
				return fail(AnswerUnknownOption, fmt.Sprintf("option %d does not belong to the question", id))
			}
		}
	case q.Type == models.QuestionNumeric:
		if in.TextResponse != nil || len(in.SelectedOptionIDs) > 0 {
			return fail(AnswerShapeMismatch, "numeric questions take numeric_response only")
		}
		if in.NumericResponse != nil && (math.IsNaN(*in.NumericResponse) || math.IsInf(*in.NumericResponse, 0)) {
			return fail(AnswerNotFinite, "numeric_response must be a finite number")
		}
	case q.Type.IsFreeResponse():
		if in.NumericResponse != nil || len(in.SelectedOptionIDs) > 0 {
			return fail(AnswerShapeMismatch, "text questions take text_response only")
		}
		limit := maxLongTextLength
		if q.Type == models.QuestionShortText {
			limit = maxShortTextLength
		}
		if in.TextResponse != nil && utf8.RuneCountInString(*in.TextResponse) > limit {
			return fail(AnswerTooLong, fmt.Sprintf("text_response exceeds %d characters", limit))
		}
	default:
		return fail(AnswerShapeMismatch, "question type does not accept answers")
	}
	return nil
}

func applyCounters(attempt *models.TestAttempt, tabSwitches, secondsAway *int) bool {
	changed := false
	if tabSwitches != nil && *tabSwitches > attempt.TabSwitchCount {
		attempt.TabSwitchCount = *tabSwitches
		changed = true
	}
	if secondsAway != nil && *secondsAway > attempt.TimeOffPageSeconds {
		attempt.TimeOffPageSeconds = *secondsAway
		changed = true
	}
	return changed
}

// ===== PROCTORING =====

func (s *attemptService) RecordProctorEvents(ctx context.Context, attemptID uint, req *RecordEventsRequest, caller Caller) (recorded int, err error) {
	op := s.log.WithOperation(ctx, "record_proctor_events", caller.UserID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	if err := s.validator.Validate(req); err != nil {
		return 0, err
	}
	if _, _, err := s.loadOwned(ctx, attemptID, caller); err != nil {
		return 0, err
	}

	var errs ValidationErrors
	rows := make([]*models.ProctorEvent, 0, len(req.Events))
	for i, ev := range req.Events {
		if len(ev.Metadata) > 0 {
			if len(ev.Metadata) > maxEventMetadataBytes {
				errs = append(errs, *NewValidationError(fmt.Sprintf("events[%d].metadata", i), "is too large", nil))
				continue
			}
			if !json.Valid(ev.Metadata) {
				errs = append(errs, *NewValidationError(fmt.Sprintf("events[%d].metadata", i), "must be valid JSON", nil))
				continue
			}
		}
		rows = append(rows, &models.ProctorEvent{
			AttemptID:  attemptID,
			Kind:       ev.Kind,
			Metadata:   datatypes.JSON(ev.Metadata),
			OccurredAt: ev.OccurredAt.UTC(),
		})
	}
	if len(errs) > 0 {
		return 0, errs
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		attempt, err := s.repo.Attempt().GetForUpdate(ctx, tx, attemptID)
		if err != nil {
			return notFound(err, ErrAttemptNotFound, "attempt")
		}
		if attempt.Status != models.AttemptInProgress {
			return ErrAttemptFrozen
		}
		return s.repo.ProctorEvent().Append(ctx, tx, rows)
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ===== SUBMIT =====

// Submit finalizes the attempt in one transaction: final answers, grading,
// proctoring score and the status change all commit together.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, caller Caller) (result *SubmitResult, err error) {
	op := s.log.WithOperation(ctx, "submit_attempt", caller.UserID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	member, test, err := s.loadOwned(ctx, attemptID, caller)
	if err != nil {
		return nil, err
	}

	now := s.now()
	final, failed := collectAnswers(test, attemptID, req.Answers, now)
	if len(failed) > 0 {
		return nil, failed
	}

	var attempt *models.TestAttempt
	var summary grading.Summary
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		attempt, err = s.repo.Attempt().GetForUpdate(ctx, tx, attemptID)
		if err != nil {
			return notFound(err, ErrAttemptNotFound, "attempt")
		}
		switch {
		case attempt.Status.IsFinished():
			return ErrAttemptAlreadySubmitted
		case attempt.Status != models.AttemptInProgress:
			return ErrAttemptNotStarted
		}
		if d := access.CanSubmit(test, now); !d.Allowed {
			return NewAccessDeniedError(d.Reason)
		}

		if err := s.repo.Answer().UpsertContent(ctx, tx, final); err != nil {
			return fmt.Errorf("failed to save final answers: %w", err)
		}
		applyCounters(attempt, req.TabSwitchCount, req.TimeOffPageSeconds)

		answers, err := s.repo.Answer().ListByAttempt(ctx, tx, attemptID)
		if err != nil {
			return fmt.Errorf("failed to load answers: %w", err)
		}
		summary = grading.GradeAll(test.Questions, answers)
		if err := s.repo.Answer().UpsertGrades(ctx, tx, gradeRows(test, attemptID, summary, now)); err != nil {
			return fmt.Errorf("failed to store grades: %w", err)
		}

		log, err := s.repo.ProctorEvent().ListByAttempt(ctx, tx, attemptID)
		if err != nil {
			return fmt.Errorf("failed to load proctoring log: %w", err)
		}
		proctor := s.policy.Score(log)
		divergence := proctoring.Reconcile(proctor, attempt.TabSwitchCount, attempt.TimeOffPageSeconds)
		if divergence.Divergent {
			s.log.Logger().Warn("Proctoring counters diverge from event log",
				"attempt_id", attemptID,
				"logged_tab_switches", divergence.LoggedTabSwitches,
				"reported_tab_switches", divergence.ReportedTabSwitches,
				"logged_seconds_away", divergence.LoggedSecondsAway,
				"reported_seconds_away", divergence.ReportedSecondsAway)
		}

		attempt.ProctoringScore = float64Ptr(proctor.Score)
		attempt.ProctoringDivergent = divergence.Divergent
		attempt.GradeEarned = float64Ptr(summary.Earned)
		attempt.PointsPossible = summary.Possible
		attempt.Status = models.AttemptGraded
		if !summary.Fully() {
			attempt.Status = models.AttemptSubmitted
		}
		attempt.ActiveKey = nil
		attempt.SubmittedAt = timePtr(now)
		attempt.SubmitIP = optionalString(caller.IPAddress)
		attempt.SubmitUserAgent = optionalString(caller.UserAgent)

		return s.repo.Attempt().Update(ctx, tx, attempt)
	})
	if err != nil {
		return nil, err
	}

	s.log.Logger().Info("Attempt submitted",
		"attempt_id", attemptID,
		"test_id", test.ID,
		"membership_id", attempt.MembershipID,
		"status", attempt.Status,
		"pending_manual", summary.PendingManual)

	s.events.AttemptSubmitted(ctx, attempt, summary.PendingManual)
	if summary.Fully() {
		s.events.AttemptGraded(ctx, attempt, "auto")
	} else {
		s.events.ManualGradingRequired(ctx, attempt, test.TeamID, pendingQuestionIDs(test, summary))
	}

	return &SubmitResult{
		Attempt:       toAttemptView(attempt, scoresReleased(test, now), member.Elevated),
		PendingManual: summary.PendingManual,
	}, nil
}

// gradeRows turns grading outcomes into answer rows for every question of
// the test, so unanswered questions get an explicit zero.
func gradeRows(test *models.Test, attemptID uint, summary grading.Summary, now time.Time) []*models.AttemptAnswer {
	rows := make([]*models.AttemptAnswer, 0, len(test.Questions))
	for _, q := range test.Questions {
		out := summary.Outcomes[q.ID]
		row := &models.AttemptAnswer{
			AttemptID:        attemptID,
			QuestionID:       q.ID,
			NeedsManualGrade: out.NeedsManual,
			AutoGraded:       !out.NeedsManual,
		}
		if !out.NeedsManual {
			row.PointsAwarded = float64Ptr(out.Points)
			row.GradedAt = timePtr(now)
		}
		rows = append(rows, row)
	}
	return rows
}

func pendingQuestionIDs(test *models.Test, summary grading.Summary) []uint {
	var ids []uint
	for _, q := range test.Questions {
		if summary.Outcomes[q.ID].NeedsManual {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// ===== READS =====

func (s *attemptService) GetAttempt(ctx context.Context, attemptID uint, caller Caller) (*AttemptView, error) {
	attempt, test, member, err := s.loadVisible(ctx, attemptID, caller)
	if err != nil {
		return nil, err
	}
	return toAttemptView(attempt, scoresReleased(test, s.now()), member.Elevated), nil
}

func (s *attemptService) ListMyAttempts(ctx context.Context, testID uint, caller Caller) ([]AttemptView, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	member, err := s.identity.ResolveMember(ctx, caller.UserID, test.TeamID, caller.PlatformAdmin)
	if err != nil {
		return nil, err
	}
	if member.MembershipID == 0 {
		return []AttemptView{}, nil
	}

	attempts, _, err := s.repo.Attempt().List(ctx, nil, repositories.AttemptFilters{
		TestID:       &testID,
		MembershipID: &member.MembershipID,
		SortBy:       "created_at",
		SortOrder:    "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	released := scoresReleased(test, s.now())
	views := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, *toAttemptView(a, released, member.Elevated))
	}
	return views, nil
}

func (s *attemptService) ListAttemptSummaries(ctx context.Context, testID uint, filters repositories.AttemptFilters, caller Caller) (*AttemptListResponse, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	if _, err := requireElevated(ctx, s.identity, test.TeamID, caller, testID, "test", "list attempts of"); err != nil {
		return nil, err
	}

	filters.TestID = &testID
	attempts, total, err := s.repo.Attempt().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return &AttemptListResponse{
		Attempts: attempts,
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	}, nil
}

// GetReview pairs every question with the caller's response. The answer
// key and points are included once scores are released, or always for
// elevated callers.
func (s *attemptService) GetReview(ctx context.Context, attemptID uint, caller Caller) (*AttemptReview, error) {
	attempt, test, member, err := s.loadVisible(ctx, attemptID, caller)
	if err != nil {
		return nil, err
	}
	if !member.Elevated && !attempt.Status.IsFinished() {
		return nil, ErrAttemptNotSubmitted
	}

	released := scoresReleased(test, s.now())
	reveal := released || member.Elevated

	answers := make(map[uint]*models.AttemptAnswer, len(attempt.Answers))
	for i := range attempt.Answers {
		answers[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	review := &AttemptReview{
		Attempt: toAttemptView(attempt, released, member.Elevated),
		Items:   make([]ReviewItem, 0, len(test.Questions)),
	}
	for i := range test.Questions {
		q := &test.Questions[i]
		item := ReviewItem{Question: toQuestionView(q)}
		if a := answers[q.ID]; a != nil {
			item.TextResponse = a.TextResponse
			item.SelectedOptionIDs = a.SelectedOptionIDs
			item.NumericResponse = a.NumericResponse
			item.PendingManual = a.IsPendingManual()
			if reveal {
				item.PointsAwarded = a.PointsAwarded
				item.GraderNote = a.GraderNote
			}
		}
		if reveal {
			item.CorrectOptionIDs = q.CorrectOptionIDs()
			item.AcceptedValues = q.AcceptedValues
			item.Tolerance = q.Tolerance
			item.Explanation = q.Explanation
		}
		review.Items = append(review.Items, item)
	}
	return review, nil
}

// ===== HELPERS =====

// loadOwned returns the caller's membership and the attempt's test with
// questions. Only the attempt owner passes.
func (s *attemptService) loadOwned(ctx context.Context, attemptID uint, caller Caller) (*Member, *models.Test, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, nil, notFound(err, ErrAttemptNotFound, "attempt")
	}
	test, err := s.repo.Test().GetWithDetails(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, nil, notFound(err, ErrTestNotFound, "test")
	}
	member, err := s.identity.ResolveMember(ctx, caller.UserID, test.TeamID, caller.PlatformAdmin)
	if errors.Is(err, ErrNotTeamMember) {
		return nil, nil, ErrAttemptAccessDenied
	}
	if err != nil {
		return nil, nil, err
	}
	if member.MembershipID == 0 || member.MembershipID != attempt.MembershipID {
		return nil, nil, ErrAttemptAccessDenied
	}
	return member, test, nil
}

// loadVisible lets the owner and elevated team members read an attempt.
func (s *attemptService) loadVisible(ctx context.Context, attemptID uint, caller Caller) (*models.TestAttempt, *models.Test, *Member, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return nil, nil, nil, notFound(err, ErrAttemptNotFound, "attempt")
	}
	test, err := s.repo.Test().GetWithDetails(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, nil, nil, notFound(err, ErrTestNotFound, "test")
	}
	member, err := s.identity.ResolveMember(ctx, caller.UserID, test.TeamID, caller.PlatformAdmin)
	if errors.Is(err, ErrNotTeamMember) {
		return nil, nil, nil, ErrAttemptAccessDenied
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if !member.Elevated && member.MembershipID != attempt.MembershipID {
		return nil, nil, nil, ErrAttemptAccessDenied
	}
	return attempt, test, member, nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
