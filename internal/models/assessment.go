package models

import (
	"time"
)

type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusClosed    TestStatus = "CLOSED"
)

// ReleasePolicy controls when learners may see correctness and scores.
type ReleasePolicy string

const (
	ReleaseImmediate  ReleasePolicy = "IMMEDIATE"
	ReleaseAfterClose ReleasePolicy = "AFTER_CLOSE"
	ReleaseManual     ReleasePolicy = "MANUAL"
)

type Test struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	TeamID          uint       `json:"team_id" gorm:"not null;index"`
	Title           string     `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description     *string    `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`
	DurationMinutes int        `json:"duration_minutes" gorm:"not null" validate:"required,min=1,max=1440"`
	StartAt         *time.Time `json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	AllowLateUntil  *time.Time `json:"allow_late_until"`
	Status          TestStatus `json:"status" gorm:"size:20;not null;default:DRAFT;index"`

	// Access
	PasswordHash *string `json:"-" gorm:"size:100"`
	MaxAttempts  *int    `json:"max_attempts" validate:"omitempty,min=1,max=100"`

	// Score release
	ReleasePolicy    ReleasePolicy `json:"release_policy" gorm:"size:20;not null;default:IMMEDIATE"`
	ScoresReleasedAt *time.Time    `json:"scores_released_at"`

	// Lifecycle
	PublishedAt *time.Time `json:"published_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	CreatedBy   string     `json:"created_by" gorm:"size:100;not null;index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Version     int        `json:"version" gorm:"default:1"`

	// Relations
	Questions   []Question       `json:"questions,omitempty" gorm:"foreignKey:TestID"`
	Assignments []TestAssignment `json:"assignments,omitempty" gorm:"foreignKey:TestID"`

	// Computed fields (not stored)
	HasPassword bool `json:"has_password" gorm:"-"`
}

func (Test) TableName() string {
	return "tests"
}

func (t *Test) RequiresPassword() bool {
	return t.PasswordHash != nil && *t.PasswordHash != ""
}

func (t *Test) TotalPoints() float64 {
	var total float64
	for i := range t.Questions {
		total += t.Questions[i].Points
	}
	return total
}

// QuestionByID returns the question with the given id, or nil.
func (t *Test) QuestionByID(id uint) *Question {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i]
		}
	}
	return nil
}

type AssignmentScope string

const (
	ScopeTeam     AssignmentScope = "TEAM"
	ScopeSubteam  AssignmentScope = "SUBTEAM"
	ScopePersonal AssignmentScope = "PERSONAL"
	ScopeEvent    AssignmentScope = "EVENT"
)

// TestAssignment targets a test at an audience. Exactly one of the scope
// payload columns is set, matching Scope.
type TestAssignment struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	TestID       uint            `json:"test_id" gorm:"not null;index"`
	Scope        AssignmentScope `json:"scope" gorm:"size:20;not null"`
	SubteamID    *uint           `json:"subteam_id,omitempty"`
	MembershipID *uint           `json:"membership_id,omitempty"`
	EventID      *uint           `json:"event_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (TestAssignment) TableName() string {
	return "test_assignments"
}
