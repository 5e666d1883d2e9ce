// Package bus provides event bus implementations for txmon.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/txmon/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" is in-process; "nats" and "kafka" reach external brokers.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "kafka":
		return NewKafkaBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON marshals v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return b.Publish(ctx, topic, payload)
}

func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}
