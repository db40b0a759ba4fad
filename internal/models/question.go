package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMCQSingle QuestionType = "MCQ_SINGLE"
	QuestionMCQMulti  QuestionType = "MCQ_MULTI"
	QuestionNumeric   QuestionType = "NUMERIC"
	QuestionShortText QuestionType = "SHORT_TEXT"
	QuestionLongText  QuestionType = "LONG_TEXT"
)

func (t QuestionType) IsChoice() bool {
	return t == QuestionMCQSingle || t == QuestionMCQMulti
}

func (t QuestionType) IsFreeResponse() bool {
	return t == QuestionShortText || t == QuestionLongText
}

func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionMCQSingle, QuestionMCQMulti, QuestionNumeric, QuestionShortText, QuestionLongText:
		return true
	}
	return false
}

type Question struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	TestID      uint         `json:"test_id" gorm:"not null;index"`
	Position    int          `json:"position" gorm:"not null;default:0"`
	Type        QuestionType `json:"type" gorm:"size:20;not null"`
	Prompt      string       `json:"prompt" gorm:"type:text;not null"`
	Explanation *string      `json:"explanation,omitempty" gorm:"type:text"`
	Points      float64      `json:"points" gorm:"not null;default:1"`

	// NUMERIC answer key
	Tolerance      *float64                    `json:"tolerance,omitempty"`
	AcceptedValues datatypes.JSONSlice[float64] `json:"accepted_values,omitempty" gorm:"type:jsonb"`

	Options []QuestionOption `json:"options,omitempty" gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectOptionIDs returns the ids of all options flagged correct.
func (q *Question) CorrectOptionIDs() []uint {
	ids := make([]uint, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func (q *Question) HasOption(id uint) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

type QuestionOption struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Position   int    `json:"position" gorm:"not null;default:0"`
	Label      string `json:"label" gorm:"type:text;not null"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}
