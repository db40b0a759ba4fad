package services

import (
	"context"
	"fmt"
	"time"

	"github.com/teamhub/assessment-engine/internal/access"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
)

// notFound maps gorm's record-not-found onto the given sentinel.
func notFound(err error, sentinel error, what string) error {
	if repositories.IsNotFoundError(err) {
		return sentinel
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// requesterFor resolves the caller's standing in the team of the test. The
// roster is only consulted for non-elevated members.
func requesterFor(ctx context.Context, identity IdentityResolver, roster RosterLookup, teamID uint, caller Caller) (access.Requester, error) {
	member, err := identity.ResolveMember(ctx, caller.UserID, teamID, caller.PlatformAdmin)
	if err != nil {
		return access.Requester{}, err
	}

	who := access.Requester{
		MembershipID: member.MembershipID,
		SubteamID:    member.SubteamID,
		Elevated:     member.Elevated,
	}
	if !member.Elevated && member.MembershipID != 0 {
		eventIDs, err := roster.EventIDs(ctx, member.MembershipID)
		if err != nil {
			return access.Requester{}, err
		}
		who.EventIDs = eventIDs
	}
	return who, nil
}

// requireElevated resolves the caller and fails unless they manage the team.
func requireElevated(ctx context.Context, identity IdentityResolver, teamID uint, caller Caller, resourceID uint, resource, action string) (*Member, error) {
	member, err := identity.ResolveMember(ctx, caller.UserID, teamID, caller.PlatformAdmin)
	if err != nil {
		return nil, err
	}
	if !member.Elevated {
		return nil, NewPermissionError(caller.UserID, resourceID, resource, action, "team admin or coach role required")
	}
	return member, nil
}

// scoresReleased reports whether learners may see scores and the answer key.
func scoresReleased(test *models.Test, now time.Time) bool {
	switch test.ReleasePolicy {
	case models.ReleaseAfterClose:
		if test.Status == models.TestStatusClosed {
			return true
		}
		deadline := test.EndAt
		if test.AllowLateUntil != nil {
			deadline = test.AllowLateUntil
		}
		return deadline != nil && now.After(*deadline)
	case models.ReleaseManual:
		return test.ScoresReleasedAt != nil
	default:
		return true
	}
}

func toQuestionView(q *models.Question) QuestionView {
	view := QuestionView{
		ID:       q.ID,
		Position: q.Position,
		Type:     q.Type,
		Prompt:   q.Prompt,
		Points:   q.Points,
	}
	for _, opt := range q.Options {
		view.Options = append(view.Options, OptionView{
			ID:       opt.ID,
			Position: opt.Position,
			Label:    opt.Label,
		})
	}
	return view
}

func toPaper(test *models.Test) *TestPaper {
	paper := &TestPaper{
		TestID:          test.ID,
		Title:           test.Title,
		Description:     test.Description,
		DurationMinutes: test.DurationMinutes,
		StartAt:         test.StartAt,
		EndAt:           test.EndAt,
		AllowLateUntil:  test.AllowLateUntil,
		HasPassword:     test.RequiresPassword(),
		TotalPoints:     test.TotalPoints(),
		Questions:       make([]QuestionView, 0, len(test.Questions)),
	}
	for i := range test.Questions {
		paper.Questions = append(paper.Questions, toQuestionView(&test.Questions[i]))
	}
	return paper
}

// toAttemptView masks the grade until release and proctoring data for
// non-elevated callers.
func toAttemptView(attempt *models.TestAttempt, released, elevated bool) *AttemptView {
	view := &AttemptView{
		ID:                 attempt.ID,
		TestID:             attempt.TestID,
		MembershipID:       attempt.MembershipID,
		Status:             attempt.Status,
		StartedAt:          attempt.StartedAt,
		SubmittedAt:        attempt.SubmittedAt,
		ScoresReleased:     released,
		PointsPossible:     attempt.PointsPossible,
		TabSwitchCount:     attempt.TabSwitchCount,
		TimeOffPageSeconds: attempt.TimeOffPageSeconds,
	}
	if released || elevated {
		view.GradeEarned = attempt.GradeEarned
	}
	if elevated {
		view.ProctoringScore = attempt.ProctoringScore
		divergent := attempt.ProctoringDivergent
		view.ProctoringDivergent = &divergent
	}
	return view
}

func float64Ptr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
