package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

var answerConflictColumns = []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}}

func (a *AnswerPostgreSQL) UpsertContent(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error {
	return a.upsert(ctx, tx, answers, models.AnswerContentColumns)
}

func (a *AnswerPostgreSQL) UpsertGrades(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error {
	return a.upsert(ctx, tx, answers, models.AnswerGradingColumns)
}

func (a *AnswerPostgreSQL) upsert(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer, columns []string) error {
	if len(answers) == 0 {
		return nil
	}
	db := a.helpers.GetDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   answerConflictColumns,
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(&answers).Error
}

func (a *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error) {
	db := a.helpers.GetDB(tx)
	var answer models.AttemptAnswer
	if err := db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AttemptAnswer, error) {
	db := a.helpers.GetDB(tx)
	var answers []models.AttemptAnswer
	err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error
	return answers, err
}

func (a *AnswerPostgreSQL) ListPendingManual(ctx context.Context, tx *gorm.DB, testID uint) ([]models.AttemptAnswer, error) {
	db := a.helpers.GetDB(tx)
	var answers []models.AttemptAnswer
	err := db.WithContext(ctx).
		Joins("JOIN test_attempts ON test_attempts.id = attempt_answers.attempt_id").
		Where("test_attempts.test_id = ?", testID).
		Where("attempt_answers.needs_manual_grade = ? AND attempt_answers.graded_at IS NULL", true).
		Order("attempt_answers.attempt_id ASC, attempt_answers.question_id ASC").
		Find(&answers).Error
	return answers, err
}
