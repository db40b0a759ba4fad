package validator

import (
	"fmt"
	"math"
	"strings"

	"github.com/teamhub/assessment-engine/internal/errors"
	"github.com/teamhub/assessment-engine/internal/models"
)

// QuestionValidator checks that a question definition can be graded
type QuestionValidator struct{}

func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{}
}

// ValidateQuestion returns every structural problem of the definition.
func (v *QuestionValidator) ValidateQuestion(q *models.Question) ValidationErrors {
	return v.validate("", q)
}

// ValidateForPublish checks that a test has at least one question and that
// all of them are gradable.
func (v *QuestionValidator) ValidateForPublish(questions []models.Question) ValidationErrors {
	if len(questions) == 0 {
		return ValidationErrors{*errors.NewValidationError("questions", "must contain at least one question", nil)}
	}

	var errs ValidationErrors
	for i := range questions {
		errs = append(errs, v.validate(fmt.Sprintf("questions[%d].", i), &questions[i])...)
	}
	return errs
}

func (v *QuestionValidator) validate(prefix string, q *models.Question) ValidationErrors {
	var errs ValidationErrors
	add := func(field, message string, value interface{}) {
		errs = append(errs, *errors.NewValidationError(prefix+field, message, value))
	}

	if strings.TrimSpace(q.Prompt) == "" {
		add("prompt", "is required", nil)
	}
	if q.Points <= 0 || math.IsNaN(q.Points) || math.IsInf(q.Points, 0) {
		add("points", "must be a positive number", q.Points)
	}
	if !q.Type.IsValid() {
		add("type", "is not a supported question type", q.Type)
		return errs
	}

	switch {
	case q.Type.IsChoice():
		if len(q.Options) < 2 {
			add("options", "must contain at least two options", len(q.Options))
		}
		for i, opt := range q.Options {
			if strings.TrimSpace(opt.Label) == "" {
				add(fmt.Sprintf("options[%d].label", i), "is required", nil)
			}
		}
		correct := 0
		for _, opt := range q.Options {
			if opt.IsCorrect {
				correct++
			}
		}
		if q.Type == models.QuestionMCQSingle && correct != 1 {
			add("options", "single choice questions need exactly one correct option", correct)
		}
		if q.Type == models.QuestionMCQMulti && correct == 0 {
			add("options", "multiple choice questions need at least one correct option", correct)
		}
		if len(q.AcceptedValues) > 0 || q.Tolerance != nil {
			add("accepted_values", "only numeric questions take accepted values", nil)
		}

	case q.Type == models.QuestionNumeric:
		if len(q.AcceptedValues) == 0 {
			add("accepted_values", "must contain at least one value", nil)
		}
		for i, val := range q.AcceptedValues {
			if math.IsNaN(val) || math.IsInf(val, 0) {
				add(fmt.Sprintf("accepted_values[%d]", i), "must be a finite number", nil)
			}
		}
		if q.Tolerance != nil && (*q.Tolerance < 0 || math.IsNaN(*q.Tolerance) || math.IsInf(*q.Tolerance, 0)) {
			add("tolerance", "must be a non-negative number", *q.Tolerance)
		}
		if len(q.Options) > 0 {
			add("options", "only choice questions take options", len(q.Options))
		}

	default:
		if len(q.Options) > 0 {
			add("options", "only choice questions take options", len(q.Options))
		}
		if len(q.AcceptedValues) > 0 || q.Tolerance != nil {
			add("accepted_values", "only numeric questions take accepted values", nil)
		}
	}

	return errs
}
