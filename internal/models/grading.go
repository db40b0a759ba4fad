package models

import "time"

type SuggestionStatus string

const (
	SuggestionUnreviewed SuggestionStatus = "UNREVIEWED"
	SuggestionAccepted   SuggestionStatus = "ACCEPTED"
	SuggestionRejected   SuggestionStatus = "REJECTED"
)

// AiGradingSuggestion is advisory. Only accepting it changes the answer score.
type AiGradingSuggestion struct {
	ID              uint             `json:"id" gorm:"primaryKey"`
	AttemptID       uint             `json:"attempt_id" gorm:"not null;uniqueIndex:idx_suggestions_attempt_answer"`
	AnswerID        uint             `json:"answer_id" gorm:"not null;uniqueIndex:idx_suggestions_attempt_answer"`
	SuggestedPoints float64          `json:"suggested_points" gorm:"not null"`
	MaxPoints       float64          `json:"max_points" gorm:"not null"`
	Rationale       string           `json:"rationale" gorm:"type:text"`
	Evidence        *string          `json:"evidence,omitempty" gorm:"type:text"`
	Provider        string           `json:"provider" gorm:"size:100"`
	Status          SuggestionStatus `json:"status" gorm:"size:20;not null;default:UNREVIEWED;index"`
	ReviewedBy      *string          `json:"reviewed_by,omitempty" gorm:"size:100"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (AiGradingSuggestion) TableName() string {
	return "ai_grading_suggestions"
}
