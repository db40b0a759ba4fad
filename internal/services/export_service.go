package services

import (
	"context"
	"fmt"
	"time"

	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/xuri/excelize/v2"
)

const exportPageSize = 500

var resultHeaders = []string{
	"Attempt ID", "Membership ID", "Status", "Started At", "Submitted At",
	"Grade Earned", "Points Possible", "Proctoring Score", "Tab Switches",
	"Time Off Page (s)", "Proctoring Divergent",
}

type exportService struct {
	repo     repositories.Repository
	identity IdentityResolver
	log      *ServiceLogger
}

func NewExportService(deps Dependencies) ExportService {
	return &exportService{
		repo:     deps.Repo,
		identity: deps.Identity,
		log:      NewServiceLogger(deps.Logger, LogConfig{Service: "assessment-engine", Component: "export"}),
	}
}

// ExportResults renders one spreadsheet row per attempt of the test.
func (s *exportService) ExportResults(ctx context.Context, testID uint, caller Caller) (data []byte, err error) {
	op := s.log.WithOperation(ctx, "export_results", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		return nil, notFound(err, ErrTestNotFound, "test")
	}
	if _, err := requireElevated(ctx, s.identity, test.TeamID, caller, testID, "test", "export results of"); err != nil {
		return nil, err
	}

	attempts, err := s.allAttempts(ctx, testID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Results"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &resultHeaders); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for i, attempt := range attempts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := resultRow(attempt)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write attempt %d: %w", attempt.ID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *exportService) allAttempts(ctx context.Context, testID uint) ([]*models.TestAttempt, error) {
	var all []*models.TestAttempt
	for offset := 0; ; offset += exportPageSize {
		page, total, err := s.repo.Attempt().List(ctx, nil, repositories.AttemptFilters{
			TestID:    &testID,
			Limit:     exportPageSize,
			Offset:    offset,
			SortBy:    "created_at",
			SortOrder: "asc",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list attempts: %w", err)
		}
		all = append(all, page...)
		if len(page) < exportPageSize || int64(len(all)) >= total {
			return all, nil
		}
	}
}

func resultRow(a *models.TestAttempt) []interface{} {
	return []interface{}{
		a.ID,
		a.MembershipID,
		string(a.Status),
		formatTime(a.StartedAt),
		formatTime(a.SubmittedAt),
		optionalFloat(a.GradeEarned),
		a.PointsPossible,
		optionalFloat(a.ProctoringScore),
		a.TabSwitchCount,
		a.TimeOffPageSeconds,
		a.ProctoringDivergent,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalFloat(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
