package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/segmentio/kafka-go"
)

// KafkaBus implements EventBus on Kafka. One writer serves every topic;
// each subscription runs its own consumer-group reader.
type KafkaBus struct {
	mu      sync.Mutex
	writer  *kafka.Writer
	brokers []string
	groupID string
	readers map[string]*kafkaSubscription
	closed  bool
}

type kafkaSubscription struct {
	id     string
	topic  string
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
	bus    *KafkaBus
}

// NewKafkaBus creates a Kafka bus for the configured brokers.
// Connections are opened lazily on first publish or subscribe.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "txmon"
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			slog.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	slog.Info("kafka bus initialized",
		"brokers", cfg.KafkaBrokers,
		"group", groupID,
	)

	return &KafkaBus{
		writer:  writer,
		brokers: cfg.KafkaBrokers,
		groupID: groupID,
		readers: make(map[string]*kafkaSubscription),
	}, nil
}

// Publish writes a JSON message envelope to the topic, keyed by message ID.
func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("bus is closed")
	}

	msg := newMessage(topic, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(msg.ID),
		Value: data,
		Time:  time.Now(),
	})
}

// Subscribe starts a consumer-group reader for the topic. Offsets are
// committed after the handler returns, whatever its result.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        b.brokers,
		GroupID:        b.groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			slog.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{
		id:     uuid.New().String(),
		topic:  topic,
		reader: reader,
		cancel: cancel,
		done:   make(chan struct{}),
		bus:    b,
	}

	go sub.consume(subCtx, handler)

	b.readers[sub.id] = sub
	return sub, nil
}

func (s *kafkaSubscription) consume(ctx context.Context, handler domain.MessageHandler) {
	defer close(s.done)

	for {
		km, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("failed to fetch kafka message", "topic", s.topic, "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		var msg domain.Message
		if err := json.Unmarshal(km.Value, &msg); err != nil {
			slog.Error("failed to unmarshal kafka message",
				"topic", km.Topic,
				"offset", km.Offset,
				"error", err,
			)
		} else if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error",
				"topic", km.Topic,
				"message_id", msg.ID,
				"error", err,
			)
		}

		if err := s.reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
			slog.Warn("failed to commit kafka offset", "topic", km.Topic, "offset", km.Offset, "error", err)
		}
	}
}

// Ping dials the first reachable broker.
func (b *KafkaBus) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range b.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return fmt.Errorf("kafka: no broker reachable: %w", lastErr)
}

// Close stops all readers and flushes the writer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*kafkaSubscription, 0, len(b.readers))
	for _, s := range b.readers {
		subs = append(subs, s)
	}
	b.readers = make(map[string]*kafkaSubscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return b.writer.Close()
}

func (s *kafkaSubscription) stop() error {
	s.cancel()
	<-s.done
	return s.reader.Close()
}

// Unsubscribe stops the reader and leaves the consumer group.
func (s *kafkaSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.readers, s.id)
	s.bus.mu.Unlock()
	return s.stop()
}

// Topic returns the subscribed topic.
func (s *kafkaSubscription) Topic() string {
	return s.topic
}
