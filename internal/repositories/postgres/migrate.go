package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the engine tables. Membership and roster
// tables are included so a standalone deployment can run.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&models.Membership{},
		&models.RosterEntry{},
		&models.Test{},
		&models.Question{},
		&models.QuestionOption{},
		&models.TestAssignment{},
		&models.TestAttempt{},
		&models.AttemptAnswer{},
		&models.ProctorEvent{},
		&models.AiGradingSuggestion{},
	)
}
