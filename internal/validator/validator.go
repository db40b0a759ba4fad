package validator

import (
	"math"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/teamhub/assessment-engine/internal/models"
)

// Validator combines struct tag validation with question definition checks
type Validator struct {
	structValidator   *validator.Validate
	questionValidator *QuestionValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:   structValidator,
		questionValidator: NewQuestionValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Validate validates struct tags and converts failures to ValidationErrors
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		if errs := ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

// Question returns the question validator
func (v *Validator) Question() *QuestionValidator {
	return v.questionValidator
}

var eventKindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,39}$`)

func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", validateQuestionType)
	validate.RegisterValidation("test_status", validateTestStatus)
	validate.RegisterValidation("assignment_scope", validateAssignmentScope)
	validate.RegisterValidation("release_policy", validateReleasePolicy)
	validate.RegisterValidation("proctor_event_kind", validateProctorEventKind)
	validate.RegisterValidation("finite", validateFinite)

	// Report json field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateQuestionType(fl validator.FieldLevel) bool {
	return models.QuestionType(fl.Field().String()).IsValid()
}

func validateTestStatus(fl validator.FieldLevel) bool {
	return slices.Contains(testStatuses, models.TestStatus(fl.Field().String()))
}

func validateAssignmentScope(fl validator.FieldLevel) bool {
	return slices.Contains(assignmentScopes, models.AssignmentScope(fl.Field().String()))
}

func validateReleasePolicy(fl validator.FieldLevel) bool {
	return slices.Contains(releasePolicies, models.ReleasePolicy(fl.Field().String()))
}

func validateProctorEventKind(fl validator.FieldLevel) bool {
	return eventKindPattern.MatchString(fl.Field().String())
}

func validateFinite(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		f := field.Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return true
}
