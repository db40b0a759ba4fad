package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
)

type DirectoryPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewDirectoryPostgreSQL(db *gorm.DB) repositories.DirectoryRepository {
	return &DirectoryPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (d *DirectoryPostgreSQL) GetMembership(ctx context.Context, tx *gorm.DB, teamID uint, userID string) (*models.Membership, error) {
	db := d.helpers.GetDB(tx)
	var membership models.Membership
	err := db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (d *DirectoryPostgreSQL) ListEventIDs(ctx context.Context, tx *gorm.DB, membershipID uint) ([]uint, error) {
	db := d.helpers.GetDB(tx)
	var ids []uint
	err := db.WithContext(ctx).
		Model(&models.RosterEntry{}).
		Where("membership_id = ?", membershipID).
		Order("event_id ASC").
		Pluck("event_id", &ids).Error
	return ids, err
}
