package models

import (
	"time"

	"gorm.io/datatypes"
)

type ProctorEventKind string

const (
	ProctorTabHidden         ProctorEventKind = "tab_hidden"
	ProctorWindowBlur        ProctorEventKind = "window_blur"
	ProctorFullscreenExit    ProctorEventKind = "fullscreen_exit"
	ProctorCopy              ProctorEventKind = "copy"
	ProctorPaste             ProctorEventKind = "paste"
	ProctorContextMenu       ProctorEventKind = "context_menu"
	ProctorDevtoolsOpen      ProctorEventKind = "devtools_open"
	ProctorScreenshotAttempt ProctorEventKind = "screenshot_attempt"
	ProctorMultipleDisplays  ProctorEventKind = "multiple_displays"
)

// ProctorEvent is an append-only telemetry record of an attempt.
type ProctorEvent struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	AttemptID  uint             `json:"attempt_id" gorm:"not null;index"`
	Kind       ProctorEventKind `json:"kind" gorm:"size:40;not null;index"`
	Metadata   datatypes.JSON   `json:"metadata,omitempty" gorm:"type:jsonb"`
	OccurredAt time.Time        `json:"occurred_at" gorm:"not null"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (ProctorEvent) TableName() string {
	return "proctor_events"
}
