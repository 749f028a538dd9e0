package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
)

// Config holds publisher settings.
type Config struct {
	Brokers []string
	// WriteTimeout bounds one publish. Defaults to 5s.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON events to Kafka. Messages with the same key land on the same
// partition, so one user's order events stay ordered.
type Publisher struct {
	writer       messageWriter
	writeTimeout time.Duration
	logger       *slog.Logger
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, cfg), nil
}

func newPublisher(w messageWriter, cfg Config) *Publisher {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{
		writer:       w,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger.With("component", "kafka-publisher"),
	}
}

// Publish encodes event as JSON and writes it to topic under key.
func (p *Publisher) Publish(ctx context.Context, topic string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to write to %s: %w", topic, err)
	}
	p.logger.Debug("event published", "topic", topic, "key", key)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
