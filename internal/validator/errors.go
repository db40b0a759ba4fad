package validator

import (
	"fmt"
	"strings"

	"github.com/teamhub/assessment-engine/internal/errors"
	"github.com/teamhub/assessment-engine/internal/models"
)

type ValidationError = errors.ValidationError
type ValidationErrors = errors.ValidationErrors

var (
	questionTypes = []models.QuestionType{
		models.QuestionMCQSingle, models.QuestionMCQMulti, models.QuestionNumeric,
		models.QuestionShortText, models.QuestionLongText,
	}
	testStatuses     = []models.TestStatus{models.TestStatusDraft, models.TestStatusPublished, models.TestStatusClosed}
	assignmentScopes = []models.AssignmentScope{models.ScopeTeam, models.ScopeSubteam, models.ScopePersonal, models.ScopeEvent}
	releasePolicies  = []models.ReleasePolicy{models.ReleaseImmediate, models.ReleaseAfterClose, models.ReleaseManual}
)

// tagMessages words the failures of the engine's own tags.
var tagMessages = map[string]string{
	"question_type":      "must be one of " + join(questionTypes),
	"test_status":        "must be one of " + join(testStatuses),
	"assignment_scope":   "must be one of " + join(assignmentScopes),
	"release_policy":     "must be one of " + join(releasePolicies),
	"proctor_event_kind": "must be a lowercase event kind of at most 40 characters",
	"finite":             "must be a finite number",
}

// ToValidationErrors converts struct tag failures, rewording the custom tags.
func ToValidationErrors(err error) ValidationErrors {
	errs := errors.ToValidationErrors(err)
	for i := range errs {
		if msg, ok := tagMessages[errs[i].Rule]; ok {
			errs[i].Message = msg
		}
	}
	return errs
}

func join[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}
