package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/teamhub/assessment-engine/internal/events"
)

const (
	EventSinkKafka = "kafka"
	EventSinkLog   = "mock"
)

// EventConfig decides where test, attempt and grading lifecycle events go.
// With publishing disabled, or the log sink, events are only logged.
type EventConfig struct {
	Enabled bool
	Sink    string
	Brokers []string
	Topic   string
}

func loadEventConfig() EventConfig {
	return EventConfig{
		Enabled: getEnvBool("EVENTS_ENABLED", true),
		Sink:    strings.ToLower(getEnv("EVENTS_PUBLISHER", EventSinkKafka)),
		Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		Topic:   getEnv("EVENTS_TOPIC", "test-engine-events"),
	}
}

// Validate reports a kafka sink that has nowhere to publish.
func (c EventConfig) Validate() error {
	if !c.Enabled || c.Sink != EventSinkKafka {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("events: kafka sink needs at least one broker")
	}
	if c.Topic == "" {
		return fmt.Errorf("events: kafka sink needs a topic")
	}
	return nil
}

// NewPublisher builds the publisher for the configured sink. Unknown sinks
// fall back to the log sink.
func (c EventConfig) NewPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Lifecycle events disabled, logging only")
		return events.NewMockEventPublisher(logger), nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Sink {
	case EventSinkKafka:
		logger.Info("Publishing lifecycle events to Kafka", "brokers", c.Brokers, "topic", c.Topic)
		publisher, err := events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: c.Brokers,
			TopicName:    c.Topic,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case EventSinkLog:
		return events.NewMockEventPublisher(logger), nil
	default:
		logger.Warn("Unknown event sink, logging only", "sink", c.Sink)
		return events.NewMockEventPublisher(logger), nil
	}
}
