package repositories

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type TestFilters struct {
	Status    *models.TestStatus `json:"status"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "title", "start_at"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	TestID       *uint                 `json:"test_id"`
	MembershipID *uint                 `json:"membership_id"`
	Status       *models.AttemptStatus `json:"status"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
	SortBy       string                `json:"sort_by"`    // "created_at", "submitted_at", "grade_earned"
	SortOrder    string                `json:"sort_order"` // "asc", "desc"
}

// ===== REPOSITORY INTERFACES =====
// Every method takes an optional transaction handle; nil means the base
// connection.

type TestRepository interface {
	Create(ctx context.Context, tx *gorm.DB, test *models.Test) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error)
	// GetWithDetails loads ordered questions with options and assignments
	GetWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error)
	Update(ctx context.Context, tx *gorm.DB, test *models.Test) error
	ListByTeam(ctx context.Context, tx *gorm.DB, teamID uint, filters TestFilters) ([]*models.Test, int64, error)
}

type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	// Update saves the question and replaces its options
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	ListByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]models.Question, error)
	NextPosition(ctx context.Context, tx *gorm.DB, testID uint) (int, error)
}

type AssignmentRepository interface {
	ReplaceForTest(ctx context.Context, tx *gorm.DB, testID uint, assignments []models.TestAssignment) error
	ListByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]models.TestAssignment, error)
}

type AttemptRepository interface {
	// Create returns gorm.ErrDuplicatedKey when an open attempt already
	// exists for the same membership and test
	Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error)
	// GetForUpdate locks the row until the transaction ends
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error)
	// GetActive returns nil, nil when there is no open attempt
	GetActive(ctx context.Context, tx *gorm.DB, membershipID, testID uint) (*models.TestAttempt, error)
	CountFinished(ctx context.Context, tx *gorm.DB, membershipID, testID uint) (int64, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.TestAttempt, int64, error)
}

type AnswerRepository interface {
	// UpsertContent writes response columns only
	UpsertContent(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error
	// UpsertGrades writes scoring columns only
	UpsertGrades(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error)
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AttemptAnswer, error)
	// ListPendingManual returns answers of a test still waiting for a grader
	ListPendingManual(ctx context.Context, tx *gorm.DB, testID uint) ([]models.AttemptAnswer, error)
}

type ProctorEventRepository interface {
	Append(ctx context.Context, tx *gorm.DB, events []*models.ProctorEvent) error
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.ProctorEvent, error)
}

type SuggestionRepository interface {
	// Upsert replaces any earlier suggestion for the same answer unless it
	// was accepted, in which case nothing is written and stored is false
	Upsert(ctx context.Context, tx *gorm.DB, suggestion *models.AiGradingSuggestion) (stored bool, err error)
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AiGradingSuggestion, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.AiGradingSuggestion, error)
	Update(ctx context.Context, tx *gorm.DB, suggestion *models.AiGradingSuggestion) error
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AiGradingSuggestion, error)
}

// DirectoryRepository reads membership and roster data owned by other services
type DirectoryRepository interface {
	GetMembership(ctx context.Context, tx *gorm.DB, teamID uint, userID string) (*models.Membership, error)
	ListEventIDs(ctx context.Context, tx *gorm.DB, membershipID uint) ([]uint, error)
}

// Repository groups all repositories and owns transactions
type Repository interface {
	Test() TestRepository
	Question() QuestionRepository
	Assignment() AssignmentRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository
	ProctorEvent() ProctorEventRepository
	Suggestion() SuggestionRepository
	Directory() DirectoryRepository

	// WithTransaction runs fn in a database transaction and commits when fn
	// returns nil
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}
