package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, event *NotificationEvent) error
	Close() error
}

// KafkaEventPublisher implements EventPublisher using Watermill with Kafka
type KafkaEventPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
	topicName string
}

// PublisherConfig holds configuration for the event publisher
type PublisherConfig struct {
	KafkaBrokers []string
	TopicName    string
	Logger       *slog.Logger
}

// NewKafkaEventPublisher creates a new Kafka-based event publisher using Watermill
func NewKafkaEventPublisher(config PublisherConfig) (*KafkaEventPublisher, error) {
	logger := watermill.NewSlogLogger(config.Logger)

	publisherConfig := kafka.PublisherConfig{
		Brokers:               config.KafkaBrokers,
		Marshaler:             kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSyncPublisherConfig(),
	}

	publisher, err := kafka.NewPublisher(publisherConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	return &KafkaEventPublisher{
		publisher: publisher,
		logger:    config.Logger,
		topicName: config.TopicName,
	}, nil
}

// Publish marshals the event and sends it to the configured topic
func (p *KafkaEventPublisher) Publish(ctx context.Context, event *NotificationEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, eventBytes)
	msg.SetContext(ctx)

	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topicName, msg); err != nil {
		p.logger.Error("Failed to publish event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("Published event",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", p.topicName)

	return nil
}

// Close closes the publisher and releases resources
func (p *KafkaEventPublisher) Close() error {
	return p.publisher.Close()
}

// MockEventPublisher keeps events in memory
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []NotificationEvent
	Logger *slog.Logger
}

// NewMockEventPublisher creates a new mock event publisher
func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{
		Events: make([]NotificationEvent, 0),
		Logger: logger,
	}
}

func (m *MockEventPublisher) Publish(ctx context.Context, event *NotificationEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, *event)
	m.mu.Unlock()

	m.Logger.Debug("Mock: Published event",
		"event_id", event.ID,
		"event_type", event.Type)
	return nil
}

// Close is a no-op for the mock publisher
func (m *MockEventPublisher) Close() error {
	return nil
}

// GetPublishedEvents returns a copy of all published events
func (m *MockEventPublisher) GetPublishedEvents() []NotificationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotificationEvent, len(m.Events))
	copy(out, m.Events)
	return out
}

// EventsOfType filters published events by type
func (m *MockEventPublisher) EventsOfType(eventType EventType) []NotificationEvent {
	var out []NotificationEvent
	for _, ev := range m.GetPublishedEvents() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// ClearEvents clears all published events
func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	m.Events = make([]NotificationEvent, 0)
	m.mu.Unlock()
}
