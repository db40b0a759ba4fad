package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
)

type AssignmentPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAssignmentPostgreSQL(db *gorm.DB) repositories.AssignmentRepository {
	return &AssignmentPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

// ReplaceForTest swaps the whole assignment set of a test. Callers should
// pass a transaction so readers never observe an empty set.
func (a *AssignmentPostgreSQL) ReplaceForTest(ctx context.Context, tx *gorm.DB, testID uint, assignments []models.TestAssignment) error {
	db := a.helpers.GetDB(tx).WithContext(ctx)

	if err := db.Where("test_id = ?", testID).Delete(&models.TestAssignment{}).Error; err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}
	for i := range assignments {
		assignments[i].ID = 0
		assignments[i].TestID = testID
	}
	return db.Create(&assignments).Error
}

func (a *AssignmentPostgreSQL) ListByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]models.TestAssignment, error) {
	db := a.helpers.GetDB(tx)
	var assignments []models.TestAssignment
	err := db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("id ASC").
		Find(&assignments).Error
	return assignments, err
}
