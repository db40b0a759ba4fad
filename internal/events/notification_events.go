package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the domain events the engine records
type EventType string

const (
	// Test lifecycle events
	EventTestPublished EventType = "test.published"
	EventTestClosed    EventType = "test.closed"

	// Attempt events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptGraded    EventType = "attempt.graded"

	// Grading events
	EventManualGradingRequired EventType = "grading.manual_required"
	EventSuggestionCreated     EventType = "grading.suggestion_created"
)

const (
	eventSource  = "assessment-engine"
	eventVersion = "1.0"
)

// NotificationEvent is the envelope of every published event
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type TestPublishedEvent struct {
	TestID      uint       `json:"test_id"`
	TeamID      uint       `json:"team_id"`
	Title       string     `json:"title"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	EndAt       *time.Time `json:"end_at,omitempty"`
	Duration    int        `json:"duration"` // minutes
	PublishedBy string     `json:"published_by"`
}

type TestClosedEvent struct {
	TestID   uint      `json:"test_id"`
	TeamID   uint      `json:"team_id"`
	Title    string    `json:"title"`
	ClosedAt time.Time `json:"closed_at"`
	ClosedBy string    `json:"closed_by"`
}

type AttemptStartedEvent struct {
	AttemptID    uint      `json:"attempt_id"`
	TestID       uint      `json:"test_id"`
	MembershipID uint      `json:"membership_id"`
	StartedAt    time.Time `json:"started_at"`
	Duration     int       `json:"duration"` // minutes
}

type AttemptSubmittedEvent struct {
	AttemptID       uint      `json:"attempt_id"`
	TestID          uint      `json:"test_id"`
	MembershipID    uint      `json:"membership_id"`
	SubmittedAt     time.Time `json:"submitted_at"`
	GradeEarned     float64   `json:"grade_earned"`
	PointsPossible  float64   `json:"points_possible"`
	ProctoringScore float64   `json:"proctoring_score"`
	GradingRequired bool      `json:"grading_required"`
}

type AttemptGradedEvent struct {
	AttemptID      uint      `json:"attempt_id"`
	TestID         uint      `json:"test_id"`
	MembershipID   uint      `json:"membership_id"`
	GradedAt       time.Time `json:"graded_at"`
	GradeEarned    float64   `json:"grade_earned"`
	PointsPossible float64   `json:"points_possible"`
	GradedBy       string    `json:"graded_by"`
}

type ManualGradingRequiredEvent struct {
	AttemptID    uint   `json:"attempt_id"`
	TestID       uint   `json:"test_id"`
	TeamID       uint   `json:"team_id"`
	PendingCount int    `json:"pending_count"`
	QuestionIDs  []uint `json:"question_ids"`
}

type SuggestionCreatedEvent struct {
	SuggestionID    uint    `json:"suggestion_id"`
	AttemptID       uint    `json:"attempt_id"`
	AnswerID        uint    `json:"answer_id"`
	SuggestedPoints float64 `json:"suggested_points"`
	MaxPoints       float64 `json:"max_points"`
	Provider        string  `json:"provider"`
}

// NewEvent wraps a payload in the common envelope.
func NewEvent(eventType EventType, data interface{}) *NotificationEvent {
	return &NotificationEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

func NewTestPublishedEvent(data TestPublishedEvent) *NotificationEvent {
	return NewEvent(EventTestPublished, data)
}

func NewTestClosedEvent(data TestClosedEvent) *NotificationEvent {
	return NewEvent(EventTestClosed, data)
}

func NewAttemptStartedEvent(data AttemptStartedEvent) *NotificationEvent {
	return NewEvent(EventAttemptStarted, data)
}

func NewAttemptSubmittedEvent(data AttemptSubmittedEvent) *NotificationEvent {
	return NewEvent(EventAttemptSubmitted, data)
}

func NewAttemptGradedEvent(data AttemptGradedEvent) *NotificationEvent {
	return NewEvent(EventAttemptGraded, data)
}

func NewManualGradingRequiredEvent(data ManualGradingRequiredEvent) *NotificationEvent {
	return NewEvent(EventManualGradingRequired, data)
}

func NewSuggestionCreatedEvent(data SuggestionCreatedEvent) *NotificationEvent {
	return NewEvent(EventSuggestionCreated, data)
}
