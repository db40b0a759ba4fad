package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamhub/assessment-engine/internal/access"
	"github.com/teamhub/assessment-engine/internal/events"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
)

func mcqRequest() *QuestionRequest {
	return &QuestionRequest{
		Type:   models.QuestionMCQSingle,
		Prompt: "Which organelle holds chlorophyll?",
		Points: 5,
		Options: []OptionRequest{
			{Label: "Chloroplast", IsCorrect: true},
			{Label: "Ribosome"},
		},
	}
}

func TestTestService_AuthoringLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Test()

	start := f.now.Add(-time.Minute)
	end := f.now.Add(time.Hour)
	test, err := svc.Create(ctx, &CreateTestRequest{
		TeamID:          testTeamID,
		Title:           "Cell biology",
		DurationMinutes: 30,
		StartAt:         &start,
		EndAt:           &end,
	}, f.coach)
	require.NoError(t, err)
	assert.Equal(t, models.TestStatusDraft, test.Status)
	assert.Equal(t, models.ReleaseImmediate, test.ReleasePolicy)

	_, err = svc.Publish(ctx, test.ID, f.coach)
	assert.True(t, IsValidation(err), "empty tests cannot be published")

	q, err := svc.AddQuestion(ctx, test.ID, mcqRequest(), f.coach)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Position)

	second, err := svc.AddQuestion(ctx, test.ID, &QuestionRequest{
		Type:           models.QuestionNumeric,
		Prompt:         "How many chromosomes in a human cell?",
		Points:         2,
		AcceptedValues: []float64{46},
	}, f.coach)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)

	_, err = svc.SetAssignments(ctx, test.ID, &SetAssignmentsRequest{
		Assignments: []AssignmentRequest{{Scope: models.ScopeTeam}},
	}, f.coach)
	require.NoError(t, err)

	published, err := svc.Publish(ctx, test.ID, f.coach)
	require.NoError(t, err)
	assert.Equal(t, models.TestStatusPublished, published.Status)
	assert.NotNil(t, published.PublishedAt)
	assert.Len(t, f.publisher.EventsOfType(events.EventTestPublished), 1)

	_, err = svc.AddQuestion(ctx, test.ID, mcqRequest(), f.coach)
	assert.ErrorIs(t, err, ErrTestNotEditable)

	title := "Renamed"
	_, err = svc.Update(ctx, test.ID, &UpdateTestRequest{Title: &title}, f.coach)
	assert.ErrorIs(t, err, ErrTestNotEditable)

	_, err = svc.Publish(ctx, test.ID, f.coach)
	assert.ErrorIs(t, err, ErrTestInvalidStatus)

	closed, err := svc.Close(ctx, test.ID, f.coach)
	require.NoError(t, err)
	assert.Equal(t, models.TestStatusClosed, closed.Status)
	assert.Len(t, f.publisher.EventsOfType(events.EventTestClosed), 1)
}

func TestTestService_OnlyElevatedMembersAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.services.Test().Create(ctx, &CreateTestRequest{
		TeamID: testTeamID, Title: "Quiz", DurationMinutes: 10,
	}, f.learner)
	var perm *PermissionError
	assert.True(t, errors.As(err, &perm))

	_, err = f.services.Test().Create(ctx, &CreateTestRequest{
		TeamID: testTeamID, Title: "Quiz", DurationMinutes: 10,
	}, f.stranger)
	assert.ErrorIs(t, err, ErrNotTeamMember)

	// Platform admins manage any team.
	admin := Caller{UserID: "ops", PlatformAdmin: true}
	test, err := f.services.Test().Create(ctx, &CreateTestRequest{
		TeamID: testTeamID, Title: "Quiz", DurationMinutes: 10,
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, "ops", test.CreatedBy)
}

func TestTestService_CreateValidatesWindow(t *testing.T) {
	f := newFixture(t)
	start := f.now
	end := f.now.Add(-time.Hour)

	_, err := f.services.Test().Create(context.Background(), &CreateTestRequest{
		TeamID: testTeamID, Title: "Quiz", DurationMinutes: 10, StartAt: &start, EndAt: &end,
	}, f.coach)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "end_at", verrs[0].Field)

	late := f.now
	_, err = f.services.Test().Create(context.Background(), &CreateTestRequest{
		TeamID: testTeamID, Title: "Quiz", DurationMinutes: 10, AllowLateUntil: &late,
	}, f.coach)
	assert.True(t, IsValidation(err))
}

func TestTestService_QuestionEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Test()

	test, err := svc.Create(ctx, &CreateTestRequest{TeamID: testTeamID, Title: "Quiz", DurationMinutes: 10}, f.coach)
	require.NoError(t, err)
	q, err := svc.AddQuestion(ctx, test.ID, mcqRequest(), f.coach)
	require.NoError(t, err)

	invalid := mcqRequest()
	invalid.Options[1].IsCorrect = true
	_, err = svc.UpdateQuestion(ctx, test.ID, q.ID, invalid, f.coach)
	assert.True(t, IsValidation(err), "single choice needs exactly one correct option")

	updated := mcqRequest()
	updated.Points = 3
	got, err := svc.UpdateQuestion(ctx, test.ID, q.ID, updated, f.coach)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Points)
	assert.Equal(t, q.Position, got.Position)

	require.NoError(t, svc.DeleteQuestion(ctx, test.ID, q.ID, f.coach))
	assert.ErrorIs(t, svc.DeleteQuestion(ctx, test.ID, q.ID, f.coach), ErrQuestionNotFound)
}

func TestTestService_SetAssignmentsRejectsMissingPayload(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))

	_, err := f.services.Test().SetAssignments(context.Background(), test.ID, &SetAssignmentsRequest{
		Assignments: []AssignmentRequest{{Scope: models.ScopeSubteam}},
	}, f.coach)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "assignments[0]", verrs[0].Field)
}

func TestTestService_SetPassword(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	ctx := context.Background()

	require.NoError(t, f.services.Test().SetPassword(ctx, test.ID, &SetPasswordRequest{Password: "s3cret"}, f.coach))

	check, err := f.services.Attempt().CheckStart(ctx, test.ID, "", f.learner)
	require.NoError(t, err)
	assert.Equal(t, access.ReasonPasswordRequired, check.Reason)

	_, err = f.services.Test().GetPaper(ctx, test.ID, f.learner)
	requireDenied(t, err, access.ReasonPasswordRequired)

	_, err = f.services.Attempt().Start(ctx, test.ID, &StartAttemptRequest{Password: "s3cret"}, f.learner)
	require.NoError(t, err)
	paper, err := f.services.Test().GetPaper(ctx, test.ID, f.learner)
	require.NoError(t, err)
	assert.True(t, paper.HasPassword)

	require.NoError(t, f.services.Test().SetPassword(ctx, test.ID, &SetPasswordRequest{}, f.coach))
	check, err = f.services.Attempt().CheckStart(ctx, test.ID, "", f.learner)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
}

func TestTestService_GetPaper(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5), numeric(3, 1, 0))
	ctx := context.Background()

	paper, err := f.services.Test().GetPaper(ctx, test.ID, f.learner)
	require.NoError(t, err)
	require.Len(t, paper.Questions, 2)
	assert.Equal(t, 8.0, paper.TotalPoints)
	assert.Len(t, paper.Questions[0].Options, 3)

	other := f.learnerMembership + 1
	require.NoError(t, f.store.Assignment().ReplaceForTest(ctx, nil, test.ID,
		[]models.TestAssignment{{Scope: models.ScopePersonal, MembershipID: &other}}))

	_, err = f.services.Test().GetPaper(ctx, test.ID, f.learner)
	requireDenied(t, err, access.ReasonNotAssigned)

	_, err = f.services.Test().GetPaper(ctx, test.ID, f.coach)
	assert.NoError(t, err)
}

func TestTestService_GetPaperFollowsStartGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opens := f.now.Add(24 * time.Hour)
	closes := opens.Add(time.Hour)
	test := f.seedTest(t, func(tt *models.Test) {
		tt.StartAt, tt.EndAt = &opens, &closes
	}, mcqSingle(5), numeric(3, 1, 0))

	_, err := f.services.Test().GetPaper(ctx, test.ID, f.learner)
	requireDenied(t, err, access.ReasonNotOpen)

	_, err = f.services.Test().GetPaper(ctx, test.ID, f.coach)
	assert.NoError(t, err)

	// Window open but password protected: no paper until the attempt starts.
	f.now = opens.Add(time.Minute)
	require.NoError(t, f.services.Test().SetPassword(ctx, test.ID, &SetPasswordRequest{Password: "s3cret"}, f.coach))

	_, err = f.services.Test().GetPaper(ctx, test.ID, f.learner)
	requireDenied(t, err, access.ReasonPasswordRequired)

	_, err = f.services.Attempt().Start(ctx, test.ID, &StartAttemptRequest{Password: "s3cret"}, f.learner)
	require.NoError(t, err)

	paper, err := f.services.Test().GetPaper(ctx, test.ID, f.learner)
	require.NoError(t, err)
	assert.Len(t, paper.Questions, 2)

	_, err = f.services.Test().GetPaper(ctx, test.ID, f.learner2)
	requireDenied(t, err, access.ReasonPasswordRequired)
}

func TestTestService_ReleaseScoresNeedsManualPolicy(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))

	_, err := f.services.Test().ReleaseScores(context.Background(), test.ID, f.coach)
	assert.ErrorIs(t, err, ErrScoresNotManual)
}

func TestTestService_ListByTeamHidesDraftsFromLearners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTest(t, nil, mcqSingle(5))
	f.seedTest(t, func(tt *models.Test) { tt.Status = models.TestStatusDraft }, mcqSingle(5))

	learnerView, err := f.services.Test().ListByTeam(ctx, testTeamID, repositories.TestFilters{}, f.learner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), learnerView.Total)

	draft := models.TestStatusDraft
	learnerView, err = f.services.Test().ListByTeam(ctx, testTeamID, repositories.TestFilters{Status: &draft}, f.learner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), learnerView.Total)
	assert.Equal(t, models.TestStatusPublished, learnerView.Tests[0].Status)

	coachView, err := f.services.Test().ListByTeam(ctx, testTeamID, repositories.TestFilters{}, f.coach)
	require.NoError(t, err)
	assert.Equal(t, int64(2), coachView.Total)
}

func TestExportService_ExportResults(t *testing.T) {
	f := newFixture(t)
	test := f.seedTest(t, nil, mcqSingle(5))
	ctx := context.Background()

	res := f.start(t, test.ID, f.learner)
	_, err := f.services.Attempt().Submit(ctx, res.Attempt.ID, &SubmitAttemptRequest{}, f.learner)
	require.NoError(t, err)

	data, err := f.services.Export().ExportResults(ctx, test.ID, f.coach)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	// xlsx files are zip archives
	assert.Equal(t, []byte("PK"), data[:2])

	_, err = f.services.Export().ExportResults(ctx, test.ID, f.learner)
	var perm *PermissionError
	assert.True(t, errors.As(err, &perm))
}
