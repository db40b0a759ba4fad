package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamhub/assessment-engine/internal/access"
	"github.com/teamhub/assessment-engine/internal/events"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
)

func requireDenied(t *testing.T, err error, reason access.Reason) {
	t.Helper()
	var denied *AccessDeniedError
	require.True(t, errors.As(err, &denied), "expected access denial, got %v", err)
	assert.Equal(t, reason, denied.Reason)
}

func TestAttemptService_StartResumesOpenAttempt(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))

	first := f.start(t, test.ID, f.learner)
	second := f.start(t, test.ID, f.learner)

	assert.False(t, first.Resumed)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Equal(t, models.AttemptInProgress, second.Attempt.Status)
	assert.Equal(t, 1, f.store.attemptCount())
	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptStarted), 1)

	require.NotNil(t, first.Paper)
	assert.Len(t, first.Paper.Questions, 1)
	assert.Equal(t, 5.0, first.Paper.TotalPoints)
}

func TestAttemptService_ConcurrentStartsYieldOneAttempt(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))

	const callers = 8
	ids := make([]uint, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.services.Attempt().Start(context.Background(), test.ID, &StartAttemptRequest{}, f.learner)
			errs[i] = err
			if err == nil {
				ids[i] = res.Attempt.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.store.attemptCount())
}

func TestAttemptService_StartDenials(t *testing.T) {
	t.Run("stranger is not a team member", func(t *testing.T) {
		f := newFixture(t)
		test := f.seedTest(t, nil, mcqSingle(5))

		_, err := f.services.Attempt().Start(context.Background(), test.ID, &StartAttemptRequest{}, f.stranger)
		requireDenied(t, err, access.ReasonNotTeamMember)
	})

	t.Run("personal assignment excludes others", func(t *testing.T) {
		f := newFixture(t)
		test := f.seedTest(t, nil, mcqSingle(5))
		other := f.learnerMembership + 1
		require.NoError(t, f.store.Assignment().ReplaceForTest(context.Background(), nil, test.ID,
			[]models.TestAssignment{{Scope: models.ScopePersonal, MembershipID: &other}}))

		_, err := f.services.Attempt().Start(context.Background(), test.ID, &StartAttemptRequest{}, f.learner)
		requireDenied(t, err, access.ReasonNotAssigned)
	})

	t.Run("window not open yet", func(t *testing.T) {
		f := newFixture(t)
		test := f.seedTest(t, func(tt *models.Test) {
			start := f.now.Add(time.Hour)
			end := f.now.Add(2 * time.Hour)
			tt.StartAt, tt.EndAt = &start, &end
		}, mcqSingle(5))

		_, err := f.services.Attempt().Start(context.Background(), test.ID, &StartAttemptRequest{}, f.learner)
		requireDenied(t, err, access.ReasonNotOpen)
	})

	t.Run("attempt limit reached", func(t *testing.T) {
		f := newFixture(t)
		one := 1
		test := f.seedTest(t, func(tt *models.Test) { tt.MaxAttempts = &one }, mcqSingle(5))

		res := f.start(t, test.ID, f.learner)
		_, err := f.services.Attempt().Submit(context.Background(), res.Attempt.ID, &SubmitAttemptRequest{}, f.learner)
		require.NoError(t, err)

		_, err = f.services.Attempt().Start(context.Background(), test.ID, &StartAttemptRequest{}, f.learner)
		requireDenied(t, err, access.ReasonAttemptsExhausted)

		// Elevated members are not limited.
		_, err = f.services.Attempt().Start(context.Background(), test.ID, &StartAttemptRequest{}, f.coach)
		assert.NoError(t, err)
	})
}

func TestAttemptService_CheckStart(t *testing.T) {
	f := newFixture(t)
	hash, err := access.HashPassword("open-sesame")
	require.NoError(t, err)
	test := f.seedTest(t, func(tt *models.Test) { tt.PasswordHash = &hash }, mcqSingle(5))
	ctx := context.Background()

	check, err := f.services.Attempt().CheckStart(ctx, test.ID, "", f.learner)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, access.ReasonPasswordRequired, check.Reason)

	check, err = f.services.Attempt().CheckStart(ctx, test.ID, "wrong", f.learner)
	require.NoError(t, err)
	assert.Equal(t, access.ReasonPasswordInvalid, check.Reason)

	check, err = f.services.Attempt().CheckStart(ctx, test.ID, "open-sesame", f.learner)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Nil(t, check.ActiveAttemptID)

	res, err := f.services.Attempt().Start(ctx, test.ID, &StartAttemptRequest{Password: "open-sesame"}, f.learner)
	require.NoError(t, err)

	check, err = f.services.Attempt().CheckStart(ctx, test.ID, "open-sesame", f.learner)
	require.NoError(t, err)
	require.NotNil(t, check.ActiveAttemptID)
	assert.Equal(t, res.Attempt.ID, *check.ActiveAttemptID)

	check, err = f.services.Attempt().CheckStart(ctx, test.ID, "", f.stranger)
	require.NoError(t, err)
	assert.Equal(t, access.ReasonNotTeamMember, check.Reason)
}

func TestAttemptService_SaveProgressReportsPerItemErrors(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5), numeric(5, 3.14, 0.01), longText(5))
	mcq, num, essay := test.Questions[0], test.Questions[1], test.Questions[2]
	res := f.start(t, test.ID, f.learner)

	tooLong := strings.Repeat("x", maxLongTextLength+1)
	out, err := f.services.Attempt().SaveProgress(context.Background(), res.Attempt.ID, &AutosaveRequest{
		Answers: []AnswerInput{
			{QuestionID: mcq.ID, SelectedOptionIDs: []uint{correctOption(mcq)}},
			{QuestionID: 99999, TextResponse: strPtr("?")},
			{QuestionID: num.ID, TextResponse: strPtr("three")},
			{QuestionID: essay.ID, TextResponse: &tooLong},
		},
	}, f.learner)
	require.NoError(t, err)

	assert.Equal(t, []uint{mcq.ID}, out.Saved)
	codes := map[uint]string{}
	for _, fe := range out.Failed {
		codes[fe.QuestionID] = fe.Code
	}
	assert.Equal(t, AnswerUnknownQuestion, codes[99999])
	assert.Equal(t, AnswerShapeMismatch, codes[num.ID])
	assert.Equal(t, AnswerTooLong, codes[essay.ID])

	stored := f.store.answerFor(res.Attempt.ID, mcq.ID)
	require.NotNil(t, stored)
	assert.Equal(t, []uint{correctOption(mcq)}, []uint(stored.SelectedOptionIDs))
	assert.Nil(t, f.store.answerFor(res.Attempt.ID, essay.ID))
}

func TestAttemptService_SaveProgressRejectsUnknownOptionAndNonFinite(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5), numeric(5, 2, 0))
	mcq, num := test.Questions[0], test.Questions[1]
	res := f.start(t, test.ID, f.learner)

	inf := math.Inf(1)
	out, err := f.services.Attempt().SaveProgress(context.Background(), res.Attempt.ID, &AutosaveRequest{
		Answers: []AnswerInput{
			{QuestionID: mcq.ID, SelectedOptionIDs: []uint{num.ID}},
			{QuestionID: num.ID, NumericResponse: &inf},
		},
	}, f.learner)
	require.NoError(t, err)
	assert.Empty(t, out.Saved)
	require.Len(t, out.Failed, 2)
	assert.Equal(t, AnswerUnknownOption, out.Failed[0].Code)
	assert.Equal(t, AnswerNotFinite, out.Failed[1].Code)
}

func TestAttemptService_SaveProgressLastEntryWins(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	mcq := test.Questions[0]
	res := f.start(t, test.ID, f.learner)

	_, err := f.services.Attempt().SaveProgress(context.Background(), res.Attempt.ID, &AutosaveRequest{
		Answers: []AnswerInput{
			{QuestionID: mcq.ID, SelectedOptionIDs: []uint{wrongOption(mcq)}},
			{QuestionID: mcq.ID, SelectedOptionIDs: []uint{correctOption(mcq)}},
		},
	}, f.learner)
	require.NoError(t, err)

	stored := f.store.answerFor(res.Attempt.ID, mcq.ID)
	require.NotNil(t, stored)
	assert.Equal(t, []uint{correctOption(mcq)}, []uint(stored.SelectedOptionIDs))
}

func TestAttemptService_SaveProgressCountersKeepMaximum(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	res := f.start(t, test.ID, f.learner)
	ctx := context.Background()

	three, one, twenty := 3, 1, 20
	_, err := f.services.Attempt().SaveProgress(ctx, res.Attempt.ID, &AutosaveRequest{TabSwitchCount: &three, TimeOffPageSeconds: &twenty}, f.learner)
	require.NoError(t, err)
	_, err = f.services.Attempt().SaveProgress(ctx, res.Attempt.ID, &AutosaveRequest{TabSwitchCount: &one}, f.learner)
	require.NoError(t, err)

	view, err := f.services.Attempt().GetAttempt(ctx, res.Attempt.ID, f.learner)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TabSwitchCount)
	assert.Equal(t, 20, view.TimeOffPageSeconds)
}

func TestAttemptService_SaveProgressFrozenAfterSubmit(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	mcq := test.Questions[0]
	res := f.start(t, test.ID, f.learner)
	ctx := context.Background()

	_, err := f.services.Attempt().Submit(ctx, res.Attempt.ID, &SubmitAttemptRequest{}, f.learner)
	require.NoError(t, err)

	_, err = f.services.Attempt().SaveProgress(ctx, res.Attempt.ID, &AutosaveRequest{
		Answers: []AnswerInput{{QuestionID: mcq.ID, SelectedOptionIDs: []uint{correctOption(mcq)}}},
	}, f.learner)
	assert.ErrorIs(t, err, ErrAttemptFrozen)

	_, err = f.services.Attempt().RecordProctorEvents(ctx, res.Attempt.ID, &RecordEventsRequest{
		Events: []ProctorEventInput{{Kind: models.ProctorCopy, OccurredAt: f.now}},
	}, f.learner)
	assert.ErrorIs(t, err, ErrAttemptFrozen)
}

func TestAttemptService_OnlyOwnerWrites(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	res := f.start(t, test.ID, f.learner)

	_, err := f.services.Attempt().SaveProgress(context.Background(), res.Attempt.ID, &AutosaveRequest{}, f.learner2)
	assert.ErrorIs(t, err, ErrAttemptAccessDenied)

	_, err = f.services.Attempt().Submit(context.Background(), res.Attempt.ID, &SubmitAttemptRequest{}, f.coach)
	assert.ErrorIs(t, err, ErrAttemptAccessDenied)

	_, err = f.services.Attempt().GetAttempt(context.Background(), res.Attempt.ID, f.learner2)
	assert.ErrorIs(t, err, ErrAttemptAccessDenied)
}

func TestAttemptService_SubmitFullyAutoGraded(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5), numeric(5, 3.14, 0.01))
	mcq, num := test.Questions[0], test.Questions[1]
	res := f.start(t, test.ID, f.learner)

	value := 3.145
	out, err := f.services.Attempt().Submit(context.Background(), res.Attempt.ID, &SubmitAttemptRequest{
		Answers: []AnswerInput{
			{QuestionID: mcq.ID, SelectedOptionIDs: []uint{correctOption(mcq)}},
			{QuestionID: num.ID, NumericResponse: &value},
		},
	}, f.learner)
	require.NoError(t, err)

	assert.Equal(t, models.AttemptGraded, out.Attempt.Status)
	assert.Equal(t, 0, out.PendingManual)
	require.NotNil(t, out.Attempt.GradeEarned)
	assert.Equal(t, 10.0, *out.Attempt.GradeEarned)
	assert.Equal(t, 10.0, out.Attempt.PointsPossible)
	assert.NotNil(t, out.Attempt.SubmittedAt)
	assert.Nil(t, out.Attempt.ProctoringScore, "learners do not see proctoring data")

	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptSubmitted), 1)
	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptGraded), 1)
	assert.Empty(t, f.publisher.EventsOfType(events.EventManualGradingRequired))

	// The open-attempt slot is free again.
	next := f.start(t, test.ID, f.learner)
	assert.False(t, next.Resumed)
	assert.NotEqual(t, res.Attempt.ID, next.Attempt.ID)
}

func TestAttemptService_SubmitWithFreeResponsePendsManual(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5), longText(5))
	mcq, essay := test.Questions[0], test.Questions[1]
	res := f.start(t, test.ID, f.learner)
	ctx := context.Background()

	_, err := f.services.Attempt().SaveProgress(ctx, res.Attempt.ID, &AutosaveRequest{
		Answers: []AnswerInput{{QuestionID: essay.ID, TextResponse: strPtr("Photosynthesis converts light.")}},
	}, f.learner)
	require.NoError(t, err)

	out, err := f.services.Attempt().Submit(ctx, res.Attempt.ID, &SubmitAttemptRequest{
		Answers: []AnswerInput{{QuestionID: mcq.ID, SelectedOptionIDs: []uint{correctOption(mcq)}}},
	}, f.learner)
	require.NoError(t, err)

	assert.Equal(t, models.AttemptSubmitted, out.Attempt.Status)
	assert.Equal(t, 1, out.PendingManual)
	require.NotNil(t, out.Attempt.GradeEarned)
	assert.Equal(t, 5.0, *out.Attempt.GradeEarned)

	essayAnswer := f.store.answerFor(res.Attempt.ID, essay.ID)
	require.NotNil(t, essayAnswer)
	assert.True(t, essayAnswer.IsPendingManual())
	assert.Nil(t, essayAnswer.PointsAwarded)

	required := f.publisher.EventsOfType(events.EventManualGradingRequired)
	require.Len(t, required, 1)
	assert.Empty(t, f.publisher.EventsOfType(events.EventAttemptGraded))
}

func TestAttemptService_SubmitScoresUnansweredAsZero(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5), numeric(5, 1, 0))
	res := f.start(t, test.ID, f.learner)

	out, err := f.services.Attempt().Submit(context.Background(), res.Attempt.ID, &SubmitAttemptRequest{}, f.learner)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptGraded, out.Attempt.Status)
	assert.Equal(t, 0.0, *out.Attempt.GradeEarned)

	for _, q := range test.Questions {
		row := f.store.answerFor(res.Attempt.ID, q.ID)
		require.NotNil(t, row)
		require.NotNil(t, row.PointsAwarded)
		assert.Equal(t, 0.0, *row.PointsAwarded)
	}
}

func TestAttemptService_SubmitHonoursLateGrace(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, func(tt *models.Test) {
		end := f.now.Add(5 * time.Minute)
		late := f.now.Add(15 * time.Minute)
		tt.EndAt, tt.AllowLateUntil = &end, &late
	}, mcqSingle(5))
	ctx := context.Background()

	onTime := f.start(t, test.ID, f.learner)
	tooLate := f.start(t, test.ID, f.learner2)

	f.now = f.now.Add(10 * time.Minute)
	_, err := f.services.Attempt().Submit(ctx, onTime.Attempt.ID, &SubmitAttemptRequest{}, f.learner)
	require.NoError(t, err)

	f.now = f.now.Add(10 * time.Minute)
	_, err = f.services.Attempt().Submit(ctx, tooLate.Attempt.ID, &SubmitAttemptRequest{}, f.learner2)
	requireDenied(t, err, access.ReasonWindowClosed)

	view, err := f.services.Attempt().GetAttempt(ctx, tooLate.Attempt.ID, f.learner2)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, view.Status)
}

func TestAttemptService_SubmitTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	res := f.start(t, test.ID, f.learner)
	ctx := context.Background()

	_, err := f.services.Attempt().Submit(ctx, res.Attempt.ID, &SubmitAttemptRequest{}, f.learner)
	require.NoError(t, err)

	_, err = f.services.Attempt().Submit(ctx, res.Attempt.ID, &SubmitAttemptRequest{}, f.learner)
	assert.ErrorIs(t, err, ErrAttemptAlreadySubmitted)
	assert.Len(t, f.publisher.EventsOfType(events.EventAttemptSubmitted), 1)
}

func TestAttemptService_SubmitRejectsInvalidFinalAnswers(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5), numeric(5, 1, 0))
	mcq, num := test.Questions[0], test.Questions[1]
	res := f.start(t, test.ID, f.learner)

	_, err := f.services.Attempt().Submit(context.Background(), res.Attempt.ID, &SubmitAttemptRequest{
		Answers: []AnswerInput{
			{QuestionID: mcq.ID, SelectedOptionIDs: []uint{correctOption(mcq)}},
			{QuestionID: num.ID, TextResponse: strPtr("one")},
		},
	}, f.learner)

	var answerErrs AnswerErrors
	require.True(t, errors.As(err, &answerErrs))
	require.Len(t, answerErrs, 1)
	assert.Equal(t, num.ID, answerErrs[0].QuestionID)

	view, err := f.services.Attempt().GetAttempt(context.Background(), res.Attempt.ID, f.learner)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, view.Status)
	assert.Nil(t, f.store.answerFor(res.Attempt.ID, mcq.ID))
}

func TestAttemptService_ProctoringScoredFromEventLog(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	res := f.start(t, test.ID, f.learner)
	ctx := context.Background()

	recorded, err := f.services.Attempt().RecordProctorEvents(ctx, res.Attempt.ID, &RecordEventsRequest{
		Events: []ProctorEventInput{
			{Kind: models.ProctorTabHidden, Metadata: json.RawMessage(`{"duration_seconds": 30}`), OccurredAt: f.now},
			{Kind: models.ProctorPaste, OccurredAt: f.now.Add(time.Second)},
		},
	}, f.learner)
	require.NoError(t, err)
	assert.Equal(t, 2, recorded)

	// Client reports fewer switches than the log shows.
	zero := 0
	_, err = f.services.Attempt().Submit(ctx, res.Attempt.ID, &SubmitAttemptRequest{TabSwitchCount: &zero}, f.learner)
	require.NoError(t, err)

	view, err := f.services.Attempt().GetAttempt(ctx, res.Attempt.ID, f.coach)
	require.NoError(t, err)
	require.NotNil(t, view.ProctoringScore)
	// 100 - tab_hidden 5 - time away min(30*0.1, 10) - paste 4
	assert.InDelta(t, 88.0, *view.ProctoringScore, 1e-9)
	require.NotNil(t, view.ProctoringDivergent)
	assert.True(t, *view.ProctoringDivergent)
}

func TestAttemptService_RecordProctorEventsRejectsBadMetadata(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	res := f.start(t, test.ID, f.learner)

	_, err := f.services.Attempt().RecordProctorEvents(context.Background(), res.Attempt.ID, &RecordEventsRequest{
		Events: []ProctorEventInput{{Kind: models.ProctorCopy, Metadata: json.RawMessage(`{not json`), OccurredAt: f.now}},
	}, f.learner)
	assert.True(t, IsValidation(err))
}

func TestAttemptService_ReviewRespectsRelease(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, func(tt *models.Test) { tt.ReleasePolicy = models.ReleaseManual }, mcqSingle(5))
	mcq := test.Questions[0]
	res := f.start(t, test.ID, f.learner)
	ctx := context.Background()

	_, err := f.services.Attempt().GetReview(ctx, res.Attempt.ID, f.learner)
	assert.ErrorIs(t, err, ErrAttemptNotSubmitted)

	_, err = f.services.Attempt().Submit(ctx, res.Attempt.ID, &SubmitAttemptRequest{
		Answers: []AnswerInput{{QuestionID: mcq.ID, SelectedOptionIDs: []uint{wrongOption(mcq)}}},
	}, f.learner)
	require.NoError(t, err)

	review, err := f.services.Attempt().GetReview(ctx, res.Attempt.ID, f.learner)
	require.NoError(t, err)
	require.Len(t, review.Items, 1)
	assert.Nil(t, review.Attempt.GradeEarned)
	assert.Nil(t, review.Items[0].PointsAwarded)
	assert.Empty(t, review.Items[0].CorrectOptionIDs)
	assert.Equal(t, []uint{wrongOption(mcq)}, review.Items[0].SelectedOptionIDs)

	coachView, err := f.services.Attempt().GetReview(ctx, res.Attempt.ID, f.coach)
	require.NoError(t, err)
	assert.Equal(t, []uint{correctOption(mcq)}, coachView.Items[0].CorrectOptionIDs)

	_, err = f.services.Test().ReleaseScores(ctx, test.ID, f.coach)
	require.NoError(t, err)

	review, err = f.services.Attempt().GetReview(ctx, res.Attempt.ID, f.learner)
	require.NoError(t, err)
	require.NotNil(t, review.Attempt.GradeEarned)
	assert.Equal(t, 0.0, *review.Attempt.GradeEarned)
	assert.Equal(t, []uint{correctOption(mcq)}, review.Items[0].CorrectOptionIDs)
}

func TestAttemptService_ListAttempts(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	ctx := context.Background()

	f.start(t, test.ID, f.learner)
	f.start(t, test.ID, f.learner2)

	mine, err := f.services.Attempt().ListMyAttempts(ctx, test.ID, f.learner)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.services.Attempt().ListAttemptSummaries(ctx, test.ID, repositories.AttemptFilters{}, f.coach)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	_, err = f.services.Attempt().ListAttemptSummaries(ctx, test.ID, repositories.AttemptFilters{}, f.learner)
	var perm *PermissionError
	assert.True(t, errors.As(err, &perm))
}
