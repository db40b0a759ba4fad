package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
)

type QuestionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.helpers.GetDB(tx)
	return db.WithContext(ctx).Create(question).Error
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.helpers.GetDB(tx)
	var question models.Question
	err := db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&question, id).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.helpers.GetDB(tx).WithContext(ctx)

	if err := db.Omit("Options").Save(question).Error; err != nil {
		return err
	}
	if err := db.Where("question_id = ?", question.ID).Delete(&models.QuestionOption{}).Error; err != nil {
		return err
	}
	if len(question.Options) == 0 {
		return nil
	}

	for i := range question.Options {
		question.Options[i].ID = 0
		question.Options[i].QuestionID = question.ID
	}
	return db.Create(&question.Options).Error
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.helpers.GetDB(tx).WithContext(ctx)

	if err := db.Where("question_id = ?", id).Delete(&models.QuestionOption{}).Error; err != nil {
		return err
	}
	result := db.Delete(&models.Question{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (q *QuestionPostgreSQL) ListByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]models.Question, error) {
	db := q.helpers.GetDB(tx)
	var questions []models.Question
	err := db.WithContext(ctx).
		Where("test_id = ?", testID).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Order("position ASC, id ASC").
		Find(&questions).Error
	return questions, err
}

func (q *QuestionPostgreSQL) NextPosition(ctx context.Context, tx *gorm.DB, testID uint) (int, error) {
	db := q.helpers.GetDB(tx)
	var maxPos *int
	err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("test_id = ?", testID).
		Select("MAX(position)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, err
	}
	if maxPos == nil {
		return 1, nil
	}
	return *maxPos + 1, nil
}
