package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
)

const proctorEventBatchSize = 200

type ProctorEventPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewProctorEventPostgreSQL(db *gorm.DB) repositories.ProctorEventRepository {
	return &ProctorEventPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (p *ProctorEventPostgreSQL) Append(ctx context.Context, tx *gorm.DB, events []*models.ProctorEvent) error {
	if len(events) == 0 {
		return nil
	}
	db := p.helpers.GetDB(tx)
	return db.WithContext(ctx).CreateInBatches(events, proctorEventBatchSize).Error
}

func (p *ProctorEventPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.ProctorEvent, error) {
	db := p.helpers.GetDB(tx)
	var events []models.ProctorEvent
	err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
