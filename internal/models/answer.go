package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// AttemptAnswer holds one learner response. Autosave writes only the content
// columns and grading writes only the scoring columns.
type AttemptAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_attempt_answers_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_attempt_answers_attempt_question"`

	// Content
	TextResponse      *string                  `json:"text_response,omitempty" gorm:"type:text"`
	SelectedOptionIDs datatypes.JSONSlice[uint] `json:"selected_option_ids,omitempty" gorm:"type:jsonb"`
	NumericResponse   *float64                 `json:"numeric_response,omitempty"`
	AnsweredAt        *time.Time               `json:"answered_at,omitempty"`

	// Grading
	PointsAwarded    *float64   `json:"points_awarded"`
	NeedsManualGrade bool       `json:"needs_manual_grade" gorm:"not null;default:false;index"`
	AutoGraded       bool       `json:"auto_graded" gorm:"not null;default:false"`
	GradedAt         *time.Time `json:"graded_at,omitempty"`
	GradedBy         *string    `json:"graded_by,omitempty" gorm:"size:100"`
	GraderNote       *string    `json:"grader_note,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}

var (
	AnswerContentColumns = []string{"text_response", "selected_option_ids", "numeric_response", "answered_at", "updated_at"}
	AnswerGradingColumns = []string{"points_awarded", "needs_manual_grade", "auto_graded", "graded_at", "graded_by", "grader_note", "updated_at"}
)

// HasText reports whether the free-text response is non-blank.
func (a *AttemptAnswer) HasText() bool {
	return a != nil && a.TextResponse != nil && strings.TrimSpace(*a.TextResponse) != ""
}

// IsPendingManual reports whether a grader still has to score the answer.
func (a *AttemptAnswer) IsPendingManual() bool {
	return a.NeedsManualGrade && a.GradedAt == nil
}
