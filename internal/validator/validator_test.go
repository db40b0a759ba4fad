package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamhub/assessment-engine/internal/models"
	"gorm.io/datatypes"
)

func f64(v float64) *float64 { return &v }

func TestValidateCustomTags(t *testing.T) {
	type payload struct {
		Type   string  `json:"type" validate:"question_type"`
		Scope  string  `json:"scope" validate:"assignment_scope"`
		Policy string  `json:"policy" validate:"release_policy"`
		Kind   string  `json:"kind" validate:"proctor_event_kind"`
		Value  float64 `json:"value" validate:"finite"`
	}

	v := New()

	require.NoError(t, v.Validate(&payload{
		Type:   "NUMERIC",
		Scope:  "EVENT",
		Policy: "AFTER_CLOSE",
		Kind:   "tab_hidden",
		Value:  1.5,
	}))

	err := v.Validate(&payload{Type: "ESSAY", Scope: "CLUB", Policy: "NEVER", Kind: "Tab Hidden"})
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)

	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Rule
	}
	assert.Equal(t, "question_type", fields["type"])
	assert.Equal(t, "assignment_scope", fields["scope"])
	assert.Equal(t, "release_policy", fields["policy"])
	assert.Equal(t, "proctor_event_kind", fields["kind"])

	for _, e := range errs {
		if e.Field == "scope" {
			assert.Equal(t, "must be one of (TEAM, SUBTEAM, PERSONAL, EVENT)", e.Message)
		}
	}
}

func TestValidateQuestion(t *testing.T) {
	qv := NewQuestionValidator()

	tests := []struct {
		name     string
		question models.Question
		fields   []string
	}{
		{
			name: "valid single choice",
			question: models.Question{
				Type: models.QuestionMCQSingle, Prompt: "2+2?", Points: 1,
				Options: []models.QuestionOption{{Label: "3"}, {Label: "4", IsCorrect: true}},
			},
		},
		{
			name: "single choice with two keys",
			question: models.Question{
				Type: models.QuestionMCQSingle, Prompt: "pick", Points: 1,
				Options: []models.QuestionOption{{Label: "a", IsCorrect: true}, {Label: "b", IsCorrect: true}},
			},
			fields: []string{"options"},
		},
		{
			name: "multi choice without key",
			question: models.Question{
				Type: models.QuestionMCQMulti, Prompt: "pick", Points: 1,
				Options: []models.QuestionOption{{Label: "a"}, {Label: ""}},
			},
			fields: []string{"options[1].label", "options"},
		},
		{
			name: "valid numeric",
			question: models.Question{
				Type: models.QuestionNumeric, Prompt: "g?", Points: 2,
				AcceptedValues: datatypes.JSONSlice[float64]{9.81}, Tolerance: f64(0.01),
			},
		},
		{
			name: "numeric without values and negative tolerance",
			question: models.Question{
				Type: models.QuestionNumeric, Prompt: "g?", Points: 2, Tolerance: f64(-1),
			},
			fields: []string{"accepted_values", "tolerance"},
		},
		{
			name: "text question with options",
			question: models.Question{
				Type: models.QuestionLongText, Prompt: "essay", Points: 5,
				Options: []models.QuestionOption{{Label: "a"}},
			},
			fields: []string{"options"},
		},
		{
			name:     "missing prompt and points",
			question: models.Question{Type: models.QuestionShortText},
			fields:   []string{"prompt", "points"},
		},
		{
			name:     "unknown type",
			question: models.Question{Type: "MATCHING", Prompt: "p", Points: 1},
			fields:   []string{"type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := qv.ValidateQuestion(&tt.question)
			var got []string
			for _, e := range errs {
				got = append(got, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestValidateForPublish(t *testing.T) {
	qv := NewQuestionValidator()

	errs := qv.ValidateForPublish(nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "questions", errs[0].Field)

	errs = qv.ValidateForPublish([]models.Question{
		{Type: models.QuestionShortText, Prompt: "ok", Points: 1},
		{Type: models.QuestionShortText, Points: 1},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "questions[1].prompt", errs[0].Field)
}
