package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SuggestionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewSuggestionPostgreSQL(db *gorm.DB) repositories.SuggestionRepository {
	return &SuggestionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

// Upsert stores a fresh suggestion. A regenerated suggestion goes back to
// UNREVIEWED and loses its review stamps; an ACCEPTED row is left untouched
// and stored reports false.
func (s *SuggestionPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, suggestion *models.AiGradingSuggestion) (bool, error) {
	db := s.helpers.GetDB(tx)
	suggestion.Status = models.SuggestionUnreviewed
	suggestion.ReviewedBy = nil
	suggestion.ReviewedAt = nil
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "answer_id"}},
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "ai_grading_suggestions.status <> ?", Vars: []any{models.SuggestionAccepted}},
			}},
			DoUpdates: clause.AssignmentColumns([]string{
				"suggested_points", "max_points", "rationale", "evidence", "provider",
				"status", "reviewed_by", "reviewed_at", "updated_at",
			}),
		}).
		Create(suggestion)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *SuggestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AiGradingSuggestion, error) {
	db := s.helpers.GetDB(tx)
	var suggestion models.AiGradingSuggestion
	if err := db.WithContext(ctx).First(&suggestion, id).Error; err != nil {
		return nil, err
	}
	return &suggestion, nil
}

func (s *SuggestionPostgreSQL) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.AiGradingSuggestion, error) {
	db := s.helpers.GetDB(tx)
	var suggestion models.AiGradingSuggestion
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&suggestion, id).Error
	if err != nil {
		return nil, err
	}
	return &suggestion, nil
}

func (s *SuggestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, suggestion *models.AiGradingSuggestion) error {
	db := s.helpers.GetDB(tx)
	return db.WithContext(ctx).Save(suggestion).Error
}

func (s *SuggestionPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AiGradingSuggestion, error) {
	db := s.helpers.GetDB(tx)
	var suggestions []models.AiGradingSuggestion
	err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("answer_id ASC").
		Find(&suggestions).Error
	return suggestions, err
}
