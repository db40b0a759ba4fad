package models

import (
	"fmt"
	"time"
)

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "NOT_STARTED"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
	AttemptGraded     AttemptStatus = "GRADED"
)

// IsFinished reports whether the attempt counts against the attempt limit.
func (s AttemptStatus) IsFinished() bool {
	return s == AttemptSubmitted || s == AttemptGraded
}

type TestAttempt struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	TestID       uint          `json:"test_id" gorm:"not null;index"`
	MembershipID uint          `json:"membership_id" gorm:"not null;index"`
	Status       AttemptStatus `json:"status" gorm:"size:20;not null;index"`

	// ActiveKey is set while the attempt is NOT_STARTED or IN_PROGRESS and
	// cleared on submission. Its unique index allows one open attempt per
	// membership and test.
	ActiveKey *string `json:"-" gorm:"size:64;uniqueIndex"`

	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`

	// Scoring
	GradeEarned    *float64 `json:"grade_earned"`
	PointsPossible float64  `json:"points_possible" gorm:"not null;default:0"`

	// Proctoring
	ProctoringScore     *float64 `json:"proctoring_score"`
	ProctoringDivergent bool     `json:"proctoring_divergent" gorm:"not null;default:false"`
	TabSwitchCount      int      `json:"tab_switch_count" gorm:"not null;default:0"`
	TimeOffPageSeconds  int      `json:"time_off_page_seconds" gorm:"not null;default:0"`

	// Client context
	StartIP               *string `json:"start_ip,omitempty" gorm:"size:45"`
	StartUserAgent        *string `json:"start_user_agent,omitempty" gorm:"type:text"`
	SubmitIP              *string `json:"submit_ip,omitempty" gorm:"size:45"`
	SubmitUserAgent       *string `json:"submit_user_agent,omitempty" gorm:"type:text"`
	ClientFingerprintHash *string `json:"client_fingerprint_hash,omitempty" gorm:"size:128"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Answers []AttemptAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

// ActiveAttemptKey is the uniqueness key of an open attempt.
func ActiveAttemptKey(membershipID, testID uint) string {
	return fmt.Sprintf("%d:%d", membershipID, testID)
}
