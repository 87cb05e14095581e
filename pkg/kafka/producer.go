package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes keyed JSON messages to the live-moment topic synchronously.
type Producer struct {
	w writer
}

// NewProducer builds a producer for the configured live-moment topic.
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 || cfg.LiveMomentsTopic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	return &Producer{w: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.LiveMomentsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}, nil
}

// PublishJSON marshals v and writes it under key.
func (p *Producer) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body, Time: time.Now().UTC()})
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.w.Close()
}
