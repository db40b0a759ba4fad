package postgres

import (
	"fmt"
	"strings"

	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// SharedHelpers holds query helpers used by several repositories
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// GetDB returns the transaction handle when present
func (h *SharedHelpers) GetDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return h.db
}

// ApplyPaginationAndSort orders by a whitelisted column and pages the query.
// Unknown sort columns fall back to the first allowed column.
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int, allowed ...string) *gorm.DB {
	column := allowed[0]
	for _, c := range allowed {
		if c == sortBy {
			column = c
			break
		}
	}

	order := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		order = "ASC"
	}
	query = query.Order(fmt.Sprintf("%s %s, id %s", column, order, order))

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return query.Limit(limit).Offset(offset)
}

func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.TestID != nil {
		query = query.Where("test_id = ?", *filters.TestID)
	}
	if filters.MembershipID != nil {
		query = query.Where("membership_id = ?", *filters.MembershipID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return query
}

func (h *SharedHelpers) ApplyTestFilters(query *gorm.DB, filters repositories.TestFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return query
}
