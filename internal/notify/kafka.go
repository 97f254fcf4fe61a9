package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string // topic = prefix + "." + class
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes notifications as JSON, one topic per class, keyed so that
// a location's notifications stay in order.
type Kafka struct {
	writer       messageWriter
	prefix       string
	writeTimeout time.Duration
	logger       *zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewKafka(cfg KafkaConfig, logger *zerolog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "axs.notifications"
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: cfg.BatchTimeout,
		// Topic is set per message.
		AllowAutoTopicCreation: true,
		Logger:                 kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error().Msgf(msg, args...)
		}),
	}
	return newKafka(w, cfg, logger), nil
}

func newKafka(w messageWriter, cfg KafkaConfig, logger *zerolog.Logger) *Kafka {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Kafka{
		writer:       w,
		prefix:       cfg.TopicPrefix,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
	}
}

// Topic returns the topic a notification class is published to.
func (k *Kafka) Topic(c Class) string {
	return k.prefix + "." + string(c)
}

func (k *Kafka) Notify(ctx context.Context, n Notification) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, k.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Topic: k.Topic(n.Class),
		Key:   []byte(n.Key()),
		Value: value,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Warn().Err(err).Str("type", n.Type).Str("topic", msg.Topic).Msg("notification publish failed")
		return fmt.Errorf("publish %s: %w", n.Type, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.writer.Close()
}
