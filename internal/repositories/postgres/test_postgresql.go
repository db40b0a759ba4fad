package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
)

type TestPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewTestPostgreSQL(db *gorm.DB) repositories.TestRepository {
	return &TestPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (t *TestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := t.helpers.GetDB(tx)
	return db.WithContext(ctx).Omit("Questions", "Assignments").Create(test).Error
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	db := t.helpers.GetDB(tx)
	var test models.Test
	if err := db.WithContext(ctx).First(&test, id).Error; err != nil {
		return nil, err
	}
	test.HasPassword = test.RequiresPassword()
	return &test, nil
}

func (t *TestPostgreSQL) GetWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	db := t.helpers.GetDB(tx)
	var test models.Test
	err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Assignments").
		First(&test, id).Error
	if err != nil {
		return nil, err
	}
	test.HasPassword = test.RequiresPassword()
	return &test, nil
}

func (t *TestPostgreSQL) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := t.helpers.GetDB(tx)
	test.Version++
	return db.WithContext(ctx).Omit("Questions", "Assignments").Save(test).Error
}

func (t *TestPostgreSQL) ListByTeam(ctx context.Context, tx *gorm.DB, teamID uint, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	db := t.helpers.GetDB(tx)
	var tests []*models.Test
	var total int64

	query := db.WithContext(ctx).Model(&models.Test{}).Where("team_id = ?", teamID)
	query = t.helpers.ApplyTestFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset,
		"created_at", "title", "start_at")
	if err := query.Find(&tests).Error; err != nil {
		return nil, 0, err
	}

	for _, test := range tests {
		test.HasPassword = test.RequiresPassword()
	}
	return tests, total, nil
}
