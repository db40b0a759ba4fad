// Package proctoring turns an attempt's telemetry log into a single
// integrity score.
package proctoring

import (
	"encoding/json"
	"math"

	"github.com/teamhub/assessment-engine/internal/models"
)

// Policy is the penalty table. Every weight must be non-negative so that
// the score never increases as events are added.
type Policy struct {
	Baseline            float64
	Floor               float64
	Weights             map[models.ProctorEventKind]float64
	DefaultWeight       float64
	TimeAwayPerSecond   float64
	TimeAwayCapPerEvent float64
}

func DefaultPolicy() Policy {
	return Policy{
		Baseline: 100,
		Floor:    0,
		Weights: map[models.ProctorEventKind]float64{
			models.ProctorTabHidden:         5,
			models.ProctorWindowBlur:        3,
			models.ProctorFullscreenExit:    5,
			models.ProctorCopy:              2,
			models.ProctorPaste:             4,
			models.ProctorContextMenu:       1,
			models.ProctorDevtoolsOpen:      10,
			models.ProctorScreenshotAttempt: 8,
			models.ProctorMultipleDisplays:  8,
		},
		DefaultWeight:       1,
		TimeAwayPerSecond:   0.1,
		TimeAwayCapPerEvent: 10,
	}
}

// KnownKind reports whether the kind has an explicit weight.
func (p Policy) KnownKind(kind models.ProctorEventKind) bool {
	_, ok := p.Weights[kind]
	return ok
}

type Result struct {
	Score              float64                         `json:"score"`
	Deduction          float64                         `json:"deduction"`
	Counts             map[models.ProctorEventKind]int `json:"counts"`
	TabSwitches        int                             `json:"tab_switches"`
	TimeOffPageSeconds int                             `json:"time_off_page_seconds"`
}

// MaxSecondsAwayPerEvent bounds the duration a single tab_hidden event can
// report. No attempt window is longer than a day.
const MaxSecondsAwayPerEvent = 24 * 60 * 60

type tabHiddenMetadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

// Score aggregates the full event log of an attempt.
func (p Policy) Score(events []models.ProctorEvent) Result {
	res := Result{Counts: make(map[models.ProctorEventKind]int)}
	var away float64

	for _, ev := range events {
		res.Counts[ev.Kind]++
		res.Deduction += p.weight(ev.Kind)

		if ev.Kind != models.ProctorTabHidden {
			continue
		}
		res.TabSwitches++

		seconds := durationOf(ev)
		away += seconds
		res.Deduction += math.Min(seconds*p.TimeAwayPerSecond, p.TimeAwayCapPerEvent)
	}

	res.TimeOffPageSeconds = int(math.Round(away))
	res.Score = math.Max(p.Floor, p.Baseline-res.Deduction)
	return res
}

func (p Policy) weight(kind models.ProctorEventKind) float64 {
	if w, ok := p.Weights[kind]; ok {
		return math.Max(0, w)
	}
	return math.Max(0, p.DefaultWeight)
}

func durationOf(ev models.ProctorEvent) float64 {
	if len(ev.Metadata) == 0 {
		return 0
	}
	var meta tabHiddenMetadata
	if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
		return 0
	}
	if math.IsNaN(meta.DurationSeconds) || meta.DurationSeconds < 0 {
		return 0
	}
	return math.Min(meta.DurationSeconds, MaxSecondsAwayPerEvent)
}

// Divergence describes a mismatch between the event log and the counters
// reported through autosave.
type Divergence struct {
	Divergent           bool `json:"divergent"`
	LoggedTabSwitches   int  `json:"logged_tab_switches"`
	ReportedTabSwitches int  `json:"reported_tab_switches"`
	LoggedSecondsAway   int  `json:"logged_seconds_away"`
	ReportedSecondsAway int  `json:"reported_seconds_away"`
}

// Reconcile compares the log-derived totals with the reported counters. The
// log stays authoritative for the score either way.
func Reconcile(res Result, reportedTabSwitches, reportedSeconds int) Divergence {
	return Divergence{
		Divergent:           res.TabSwitches != reportedTabSwitches || res.TimeOffPageSeconds != reportedSeconds,
		LoggedTabSwitches:   res.TabSwitches,
		ReportedTabSwitches: reportedTabSwitches,
		LoggedSecondsAway:   res.TimeOffPageSeconds,
		ReportedSecondsAway: reportedSeconds,
	}
}
