package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	db := a.helpers.GetDB(tx)
	return db.WithContext(ctx).Omit("Answers").Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	db := a.helpers.GetDB(tx)
	var attempt models.TestAttempt
	err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_id ASC")
		}).
		First(&attempt, id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	db := a.helpers.GetDB(tx)
	var attempt models.TestAttempt
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, membershipID, testID uint) (*models.TestAttempt, error) {
	db := a.helpers.GetDB(tx)
	var attempt models.TestAttempt
	err := db.WithContext(ctx).
		Where("active_key = ?", models.ActiveAttemptKey(membershipID, testID)).
		First(&attempt).Error
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountFinished(ctx context.Context, tx *gorm.DB, membershipID, testID uint) (int64, error) {
	db := a.helpers.GetDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("membership_id = ? AND test_id = ?", membershipID, testID).
		Where("status IN ?", []models.AttemptStatus{models.AttemptSubmitted, models.AttemptGraded}).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	db := a.helpers.GetDB(tx)
	return db.WithContext(ctx).Omit("Answers").Save(attempt).Error
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	db := a.helpers.GetDB(tx)
	var attempts []*models.TestAttempt
	var total int64

	query := db.WithContext(ctx).Model(&models.TestAttempt{})
	query = a.applyFiltersAttempt(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.applyPaginationAndSortAttempt(query, filters)
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

func (a *AttemptPostgreSQL) applyFiltersAttempt(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	return a.helpers.ApplyAttemptFilters(query, filters)
}

func (a *AttemptPostgreSQL) applyPaginationAndSortAttempt(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	return a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset,
		"created_at", "submitted_at", "grade_earned")
}
