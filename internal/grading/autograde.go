// Package grading scores objective questions deterministically and routes
// free-response answers to manual review.
package grading

import (
	"math"

	"github.com/teamhub/assessment-engine/internal/models"
)

const (
	ReasonCorrect        = "correct"
	ReasonIncorrect      = "incorrect"
	ReasonUnanswered     = "unanswered"
	ReasonManualRequired = "manual_required"
	ReasonInvalidKey     = "invalid_key"
	ReasonUnknownType    = "unknown_type"
)

// Outcome is the result of grading one question.
type Outcome struct {
	QuestionID  uint    `json:"question_id"`
	Points      float64 `json:"points"`
	MaxPoints   float64 `json:"max_points"`
	NeedsManual bool    `json:"needs_manual"`
	Answered    bool    `json:"answered"`
	Reason      string  `json:"reason"`
}

// Summary aggregates the outcomes of a whole attempt.
type Summary struct {
	Earned        float64          `json:"earned"`
	Possible      float64          `json:"possible"`
	PendingManual int              `json:"pending_manual"`
	Outcomes      map[uint]Outcome `json:"outcomes"`
}

// Fully reports whether every question received a final score.
func (s Summary) Fully() bool {
	return s.PendingManual == 0
}

type strategy func(q *models.Question, a *models.AttemptAnswer) Outcome

var strategies = map[models.QuestionType]strategy{
	models.QuestionMCQSingle: gradeChoice,
	models.QuestionMCQMulti:  gradeChoice,
	models.QuestionNumeric:   gradeNumeric,
	models.QuestionShortText: gradeFreeResponse,
	models.QuestionLongText:  gradeFreeResponse,
}

// Grade scores a single answer. a may be nil when the learner never
// answered. The function has no side effects.
func Grade(q *models.Question, a *models.AttemptAnswer) Outcome {
	grade, ok := strategies[q.Type]
	if !ok {
		if a == nil {
			return Outcome{QuestionID: q.ID, MaxPoints: q.Points, Reason: ReasonUnanswered}
		}
		return manual(q, true, ReasonUnknownType)
	}
	out := grade(q, a)
	out.QuestionID = q.ID
	out.MaxPoints = q.Points
	return out
}

// GradeAll grades every question of a test against the attempt's answers.
// Questions without an answer row score zero.
func GradeAll(questions []models.Question, answers []models.AttemptAnswer) Summary {
	byQuestion := make(map[uint]*models.AttemptAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	summary := Summary{Outcomes: make(map[uint]Outcome, len(questions))}
	for i := range questions {
		q := &questions[i]
		out := Grade(q, byQuestion[q.ID])
		summary.Outcomes[q.ID] = out
		summary.Possible += q.Points
		summary.Earned += out.Points
		if out.NeedsManual {
			summary.PendingManual++
		}
	}
	return summary
}

func gradeChoice(q *models.Question, a *models.AttemptAnswer) Outcome {
	if a == nil || len(a.SelectedOptionIDs) == 0 {
		return Outcome{Reason: ReasonUnanswered}
	}

	correct := q.CorrectOptionIDs()
	if len(correct) == 0 {
		return manual(q, true, ReasonInvalidKey)
	}
	if q.Type == models.QuestionMCQSingle && len(correct) != 1 {
		return manual(q, true, ReasonInvalidKey)
	}

	selected := dedupe(a.SelectedOptionIDs)
	if q.Type == models.QuestionMCQSingle && len(selected) > 1 {
		return Outcome{Answered: true, Reason: ReasonIncorrect}
	}
	if sameSet(selected, correct) {
		return Outcome{Points: q.Points, Answered: true, Reason: ReasonCorrect}
	}
	return Outcome{Answered: true, Reason: ReasonIncorrect}
}

func gradeNumeric(q *models.Question, a *models.AttemptAnswer) Outcome {
	if a == nil || a.NumericResponse == nil {
		return Outcome{Reason: ReasonUnanswered}
	}

	tolerance := 0.0
	if q.Tolerance != nil {
		tolerance = *q.Tolerance
	}
	if len(q.AcceptedValues) == 0 || tolerance < 0 || math.IsNaN(tolerance) {
		return manual(q, true, ReasonInvalidKey)
	}

	v := *a.NumericResponse
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Outcome{Answered: true, Reason: ReasonIncorrect}
	}
	for _, c := range q.AcceptedValues {
		if math.Abs(v-c) <= tolerance {
			return Outcome{Points: q.Points, Answered: true, Reason: ReasonCorrect}
		}
	}
	return Outcome{Answered: true, Reason: ReasonIncorrect}
}

func gradeFreeResponse(q *models.Question, a *models.AttemptAnswer) Outcome {
	if !a.HasText() {
		return Outcome{Reason: ReasonUnanswered}
	}
	return Outcome{Answered: true, NeedsManual: true, Reason: ReasonManualRequired}
}

func manual(q *models.Question, answered bool, reason string) Outcome {
	return Outcome{
		QuestionID:  q.ID,
		MaxPoints:   q.Points,
		NeedsManual: true,
		Answered:    answered,
		Reason:      reason,
	}
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameSet(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uint]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
