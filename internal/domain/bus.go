package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels, NATS or Kafka.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "kafka"
	Type string `yaml:"type"`

	// Channel settings
	ChannelBufferSize int `yaml:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `yaml:"nats_url"`
	NATSToken         string `yaml:"nats_token"`
	NATSMaxReconnects int    `yaml:"nats_max_reconnects"`
	NATSReconnectWait int    `yaml:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup, when set, load-balances each topic across subscribers
	// sharing the group.
	NATSQueueGroup string `yaml:"nats_queue_group"`

	// Kafka settings
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaGroupID string   `yaml:"kafka_group_id"`
}

// Standard topic names for the monitoring pipeline.
const (
	TopicRunRequested = "txmon.run.requested"
	TopicRunCompleted = "txmon.run.completed"
	TopicRunFailed    = "txmon.run.failed"
	TopicFlagRaised   = "txmon.flag.raised"
)

// RunRequest is the payload of a TopicRunRequested message.
type RunRequest struct {
	RequestID   string `json:"requestId"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

// RunEvent is the payload of TopicRunCompleted and TopicRunFailed messages.
type RunEvent struct {
	RunID               string `json:"runId"`
	Status              string `json:"status"`
	TransactionCount    int    `json:"transactionCount"`
	FlagCount           int    `json:"flagCount"`
	FlaggedTransactions int    `json:"flaggedTransactions"`
	Error               string `json:"error,omitempty"`
}

// FlagEvent is the payload of a TopicFlagRaised message.
type FlagEvent struct {
	RunID string `json:"runId"`
	Flag  Flag   `json:"flag"`
}
