package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teamhub/assessment-engine/internal/access"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
)

// ===== CALLER & COLLABORATORS =====

// Caller is the authenticated user behind a request.
type Caller struct {
	UserID        string
	PlatformAdmin bool
	IPAddress     string
	UserAgent     string
}

// Member is the caller's standing within a team. MembershipID is zero for
// platform admins who are not on the team.
type Member struct {
	MembershipID uint
	SubteamID    *uint
	Elevated     bool
}

// IdentityResolver maps a platform user to a team membership. It returns
// ErrNotTeamMember when the user does not belong to the team.
type IdentityResolver interface {
	ResolveMember(ctx context.Context, userID string, teamID uint, platformAdmin bool) (*Member, error)
}

// RosterLookup lists the events a membership is rostered on.
type RosterLookup interface {
	EventIDs(ctx context.Context, membershipID uint) ([]uint, error)
}

// ===== SERVICE INTERFACES =====

type TestService interface {
	Create(ctx context.Context, req *CreateTestRequest, caller Caller) (*models.Test, error)
	Update(ctx context.Context, testID uint, req *UpdateTestRequest, caller Caller) (*models.Test, error)
	AddQuestion(ctx context.Context, testID uint, req *QuestionRequest, caller Caller) (*models.Question, error)
	UpdateQuestion(ctx context.Context, testID, questionID uint, req *QuestionRequest, caller Caller) (*models.Question, error)
	DeleteQuestion(ctx context.Context, testID, questionID uint, caller Caller) error
	SetAssignments(ctx context.Context, testID uint, req *SetAssignmentsRequest, caller Caller) ([]models.TestAssignment, error)
	SetPassword(ctx context.Context, testID uint, req *SetPasswordRequest, caller Caller) error
	Publish(ctx context.Context, testID uint, caller Caller) (*models.Test, error)
	Close(ctx context.Context, testID uint, caller Caller) (*models.Test, error)
	ReleaseScores(ctx context.Context, testID uint, caller Caller) (*models.Test, error)
	GetForAuthor(ctx context.Context, testID uint, caller Caller) (*models.Test, error)
	GetPaper(ctx context.Context, testID uint, caller Caller) (*TestPaper, error)
	ListByTeam(ctx context.Context, teamID uint, filters repositories.TestFilters, caller Caller) (*TestListResponse, error)
}

type AttemptService interface {
	CheckStart(ctx context.Context, testID uint, password string, caller Caller) (*StartCheck, error)
	Start(ctx context.Context, testID uint, req *StartAttemptRequest, caller Caller) (*StartResult, error)
	SaveProgress(ctx context.Context, attemptID uint, req *AutosaveRequest, caller Caller) (*AutosaveResult, error)
	RecordProctorEvents(ctx context.Context, attemptID uint, req *RecordEventsRequest, caller Caller) (int, error)
	Submit(ctx context.Context, attemptID uint, req *SubmitAttemptRequest, caller Caller) (*SubmitResult, error)
	GetAttempt(ctx context.Context, attemptID uint, caller Caller) (*AttemptView, error)
	ListMyAttempts(ctx context.Context, testID uint, caller Caller) ([]AttemptView, error)
	ListAttemptSummaries(ctx context.Context, testID uint, filters repositories.AttemptFilters, caller Caller) (*AttemptListResponse, error)
	GetReview(ctx context.Context, attemptID uint, caller Caller) (*AttemptReview, error)
}

type GradingService interface {
	// RequestSuggestions asks the scorer about every free-response answer of
	// the attempt, or only answerID when set.
	RequestSuggestions(ctx context.Context, attemptID uint, answerID *uint, caller Caller) (*SuggestionBatch, error)
	AcceptSuggestion(ctx context.Context, suggestionID uint, req *AcceptSuggestionRequest, caller Caller) (*GradeResult, error)
	RejectSuggestion(ctx context.Context, suggestionID uint, caller Caller) (*models.AiGradingSuggestion, error)
	GradeAnswer(ctx context.Context, answerID uint, req *ManualGradeRequest, caller Caller) (*GradeResult, error)
	ListPending(ctx context.Context, testID uint, caller Caller) ([]PendingAnswer, error)
	ListSuggestions(ctx context.Context, attemptID uint, caller Caller) ([]models.AiGradingSuggestion, error)
}

type ExportService interface {
	ExportResults(ctx context.Context, testID uint, caller Caller) ([]byte, error)
}

// ===== TEST AUTHORING DTOs =====

type CreateTestRequest struct {
	TeamID          uint                 `json:"team_id" validate:"required"`
	Title           string               `json:"title" validate:"required,min=1,max=200"`
	Description     *string              `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes int                  `json:"duration_minutes" validate:"required,min=1,max=1440"`
	StartAt         *time.Time           `json:"start_at"`
	EndAt           *time.Time           `json:"end_at"`
	AllowLateUntil  *time.Time           `json:"allow_late_until"`
	MaxAttempts     *int                 `json:"max_attempts" validate:"omitempty,min=1,max=100"`
	ReleasePolicy   models.ReleasePolicy `json:"release_policy" validate:"omitempty,release_policy"`
}

type UpdateTestRequest struct {
	Title           *string               `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string               `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes *int                  `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	StartAt         *time.Time            `json:"start_at"`
	EndAt           *time.Time            `json:"end_at"`
	AllowLateUntil  *time.Time            `json:"allow_late_until"`
	MaxAttempts     *int                  `json:"max_attempts" validate:"omitempty,min=1,max=100"`
	ReleasePolicy   *models.ReleasePolicy `json:"release_policy" validate:"omitempty,release_policy"`
}

type OptionRequest struct {
	Label     string `json:"label" validate:"required,max=2000"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionRequest struct {
	Type           models.QuestionType `json:"type" validate:"required,question_type"`
	Prompt         string              `json:"prompt" validate:"required,max=20000"`
	Explanation    *string             `json:"explanation" validate:"omitempty,max=20000"`
	Points         float64             `json:"points" validate:"gt=0,finite"`
	Tolerance      *float64            `json:"tolerance" validate:"omitempty,gte=0,finite"`
	AcceptedValues []float64           `json:"accepted_values" validate:"omitempty,dive,finite"`
	Options        []OptionRequest     `json:"options" validate:"omitempty,max=26,dive"`
}

type AssignmentRequest struct {
	Scope        models.AssignmentScope `json:"scope" validate:"required,assignment_scope"`
	SubteamID    *uint                  `json:"subteam_id"`
	MembershipID *uint                  `json:"membership_id"`
	EventID      *uint                  `json:"event_id"`
}

type SetAssignmentsRequest struct {
	Assignments []AssignmentRequest `json:"assignments" validate:"max=500,dive"`
}

// SetPasswordRequest sets the test password. An empty password clears it.
type SetPasswordRequest struct {
	Password string `json:"password" validate:"max=72"`
}

type TestListResponse struct {
	Tests  []*models.Test `json:"tests"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// TestPaper is the learner view of a test. It carries no answer key.
type TestPaper struct {
	TestID          uint           `json:"test_id"`
	Title           string         `json:"title"`
	Description     *string        `json:"description,omitempty"`
	DurationMinutes int            `json:"duration_minutes"`
	StartAt         *time.Time     `json:"start_at,omitempty"`
	EndAt           *time.Time     `json:"end_at,omitempty"`
	AllowLateUntil  *time.Time     `json:"allow_late_until,omitempty"`
	HasPassword     bool           `json:"has_password"`
	TotalPoints     float64        `json:"total_points"`
	Questions       []QuestionView `json:"questions"`
}

type QuestionView struct {
	ID       uint                `json:"id"`
	Position int                 `json:"position"`
	Type     models.QuestionType `json:"type"`
	Prompt   string              `json:"prompt"`
	Points   float64             `json:"points"`
	Options  []OptionView        `json:"options,omitempty"`
}

type OptionView struct {
	ID       uint   `json:"id"`
	Position int    `json:"position"`
	Label    string `json:"label"`
}

// ===== ATTEMPT DTOs =====

type StartCheck struct {
	Allowed         bool          `json:"allowed"`
	Reason          access.Reason `json:"reason"`
	ActiveAttemptID *uint         `json:"active_attempt_id,omitempty"`
	AttemptsUsed    int64         `json:"attempts_used"`
	MaxAttempts     *int          `json:"max_attempts,omitempty"`
}

type StartAttemptRequest struct {
	Password        string `json:"password" validate:"max=72"`
	FingerprintHash string `json:"fingerprint_hash" validate:"omitempty,max=128"`
}

type StartResult struct {
	Attempt *AttemptView `json:"attempt"`
	Resumed bool         `json:"resumed"`
	Paper   *TestPaper   `json:"paper"`
}

// AnswerInput is one response. The field that must be set depends on the
// question type.
type AnswerInput struct {
	QuestionID        uint     `json:"question_id" validate:"required"`
	TextResponse      *string  `json:"text_response"`
	SelectedOptionIDs []uint   `json:"selected_option_ids"`
	NumericResponse   *float64 `json:"numeric_response"`
}

type AutosaveRequest struct {
	Answers            []AnswerInput `json:"answers" validate:"max=500"`
	TabSwitchCount     *int          `json:"tab_switch_count" validate:"omitempty,gte=0"`
	TimeOffPageSeconds *int          `json:"time_off_page_seconds" validate:"omitempty,gte=0"`
}

type AutosaveResult struct {
	Saved   []uint       `json:"saved"`
	Failed  AnswerErrors `json:"failed"`
	SavedAt time.Time    `json:"saved_at"`
}

type ProctorEventInput struct {
	Kind       models.ProctorEventKind `json:"kind" validate:"required,proctor_event_kind"`
	Metadata   json.RawMessage         `json:"metadata"`
	OccurredAt time.Time               `json:"occurred_at" validate:"required"`
}

type RecordEventsRequest struct {
	Events []ProctorEventInput `json:"events" validate:"required,min=1,max=500,dive"`
}

type SubmitAttemptRequest struct {
	Answers            []AnswerInput `json:"answers" validate:"max=500"`
	TabSwitchCount     *int          `json:"tab_switch_count" validate:"omitempty,gte=0"`
	TimeOffPageSeconds *int          `json:"time_off_page_seconds" validate:"omitempty,gte=0"`
}

type SubmitResult struct {
	Attempt       *AttemptView `json:"attempt"`
	PendingManual int          `json:"pending_manual"`
}

// AttemptView hides scores until they are released to the caller and
// proctoring data from non-elevated callers.
type AttemptView struct {
	ID                  uint                 `json:"id"`
	TestID              uint                 `json:"test_id"`
	MembershipID        uint                 `json:"membership_id"`
	Status              models.AttemptStatus `json:"status"`
	StartedAt           *time.Time           `json:"started_at,omitempty"`
	SubmittedAt         *time.Time           `json:"submitted_at,omitempty"`
	ScoresReleased      bool                 `json:"scores_released"`
	GradeEarned         *float64             `json:"grade_earned,omitempty"`
	PointsPossible      float64              `json:"points_possible"`
	ProctoringScore     *float64             `json:"proctoring_score,omitempty"`
	ProctoringDivergent *bool                `json:"proctoring_divergent,omitempty"`
	TabSwitchCount      int                  `json:"tab_switch_count"`
	TimeOffPageSeconds  int                  `json:"time_off_page_seconds"`
}

type AttemptListResponse struct {
	Attempts []*models.TestAttempt `json:"attempts"`
	Total    int64                 `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

type AttemptReview struct {
	Attempt *AttemptView `json:"attempt"`
	Items   []ReviewItem `json:"items"`
}

// ReviewItem pairs a question with the learner's response. Answer key and
// points are present only once scores are released to the caller.
type ReviewItem struct {
	Question          QuestionView `json:"question"`
	TextResponse      *string      `json:"text_response,omitempty"`
	SelectedOptionIDs []uint       `json:"selected_option_ids,omitempty"`
	NumericResponse   *float64     `json:"numeric_response,omitempty"`
	PointsAwarded     *float64     `json:"points_awarded,omitempty"`
	PendingManual     bool         `json:"pending_manual"`
	CorrectOptionIDs  []uint       `json:"correct_option_ids,omitempty"`
	AcceptedValues    []float64    `json:"accepted_values,omitempty"`
	Tolerance         *float64     `json:"tolerance,omitempty"`
	Explanation       *string      `json:"explanation,omitempty"`
	GraderNote        *string      `json:"grader_note,omitempty"`
}

// ===== GRADING DTOs =====

type SuggestionFailure struct {
	AnswerID   uint   `json:"answer_id"`
	QuestionID uint   `json:"question_id"`
	Error      string `json:"error"`
}

type SuggestionBatch struct {
	Suggestions []models.AiGradingSuggestion `json:"suggestions"`
	Failures    []SuggestionFailure          `json:"failures"`
}

// AcceptSuggestionRequest accepts a suggestion, optionally with a different
// score than the one suggested.
type AcceptSuggestionRequest struct {
	Points *float64 `json:"points" validate:"omitempty,gte=0,finite"`
	Note   *string  `json:"note" validate:"omitempty,max=2000"`
}

type ManualGradeRequest struct {
	Points float64 `json:"points" validate:"gte=0,finite"`
	Note   *string `json:"note" validate:"omitempty,max=2000"`
}

type GradeResult struct {
	Answer        *models.AttemptAnswer `json:"answer"`
	AttemptStatus models.AttemptStatus  `json:"attempt_status"`
	GradeEarned   float64               `json:"grade_earned"`
	PendingManual int                   `json:"pending_manual"`
}

type PendingAnswer struct {
	AnswerID     uint                `json:"answer_id"`
	AttemptID    uint                `json:"attempt_id"`
	QuestionID   uint                `json:"question_id"`
	QuestionType models.QuestionType `json:"question_type"`
	Prompt       string              `json:"prompt"`
	MaxPoints    float64             `json:"max_points"`
	TextResponse *string             `json:"text_response,omitempty"`
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Test() TestService
	Attempt() AttemptService
	Grading() GradingService
	Export() ExportService
}
