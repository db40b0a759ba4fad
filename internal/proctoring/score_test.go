package proctoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/teamhub/assessment-engine/internal/models"
	"gorm.io/datatypes"
)

func event(kind models.ProctorEventKind, meta string) models.ProctorEvent {
	ev := models.ProctorEvent{Kind: kind, OccurredAt: time.Now()}
	if meta != "" {
		ev.Metadata = datatypes.JSON(meta)
	}
	return ev
}

func TestScore(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name   string
		events []models.ProctorEvent
		score  float64
		tabs   int
		away   int
	}{
		{"no events", nil, 100, 0, 0},
		{"single blur", []models.ProctorEvent{event(models.ProctorWindowBlur, "")}, 97, 0, 0},
		{
			"tab hidden with duration",
			[]models.ProctorEvent{event(models.ProctorTabHidden, `{"duration_seconds": 30}`)},
			92, 1, 30,
		},
		{
			"time away deduction is capped",
			[]models.ProctorEvent{event(models.ProctorTabHidden, `{"duration_seconds": 600}`)},
			85, 1, 600,
		},
		{
			"malformed metadata counts the event only",
			[]models.ProctorEvent{event(models.ProctorTabHidden, `not json`)},
			95, 1, 0,
		},
		{
			"huge duration is bounded per event",
			[]models.ProctorEvent{
				event(models.ProctorTabHidden, `{"duration_seconds": 1e300}`),
				event(models.ProctorTabHidden, `{"duration_seconds": 1e300}`),
			},
			70, 2, 2 * MaxSecondsAwayPerEvent,
		},
		{"unknown kind uses default weight", []models.ProctorEvent{event("webcam_lost", "")}, 99, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := policy.Score(tt.events)
			assert.InDelta(t, tt.score, res.Score, 1e-9)
			assert.Equal(t, tt.tabs, res.TabSwitches)
			assert.Equal(t, tt.away, res.TimeOffPageSeconds)
		})
	}
}

func TestScoreFloor(t *testing.T) {
	var events []models.ProctorEvent
	for i := 0; i < 50; i++ {
		events = append(events, event(models.ProctorDevtoolsOpen, ""))
	}

	res := DefaultPolicy().Score(events)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 50, res.Counts[models.ProctorDevtoolsOpen])
}

func TestScoreIsMonotonic(t *testing.T) {
	policy := DefaultPolicy()
	kinds := []models.ProctorEventKind{
		models.ProctorTabHidden, models.ProctorCopy, "unknown", models.ProctorPaste,
		models.ProctorFullscreenExit, models.ProctorContextMenu, models.ProctorMultipleDisplays,
	}

	var events []models.ProctorEvent
	prev := policy.Score(events).Score
	for i := 0; i < 60; i++ {
		events = append(events, event(kinds[i%len(kinds)], `{"duration_seconds": 4}`))
		next := policy.Score(events).Score
		assert.LessOrEqual(t, next, prev)
		assert.GreaterOrEqual(t, next, policy.Floor)
		prev = next
	}
}

func TestNegativeWeightsAreIgnored(t *testing.T) {
	policy := DefaultPolicy()
	policy.Weights[models.ProctorCopy] = -20

	res := policy.Score([]models.ProctorEvent{event(models.ProctorCopy, "")})
	assert.Equal(t, 100.0, res.Score)
}

func TestReconcile(t *testing.T) {
	res := DefaultPolicy().Score([]models.ProctorEvent{
		event(models.ProctorTabHidden, `{"duration_seconds": 12}`),
		event(models.ProctorTabHidden, `{"duration_seconds": 3}`),
	})

	assert.False(t, Reconcile(res, 2, 15).Divergent)

	d := Reconcile(res, 5, 15)
	assert.True(t, d.Divergent)
	assert.Equal(t, 2, d.LoggedTabSwitches)
	assert.Equal(t, 5, d.ReportedTabSwitches)
}
