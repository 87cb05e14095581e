// Package kafka wraps segmentio/kafka-go for the live-moment feed.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// Handler returns nil only when the message is fully applied and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fans fetched messages out to a fixed worker pool and commits each
// offset after its handler succeeds.
type Consumer struct {
	r       reader
	workers int
	logg    *logger.Logger
	backoff time.Duration
}

// NewConsumer builds a group consumer for the configured topic.
func NewConsumer(cfg config.KafkaConfig, logg *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.LiveMomentsTopic == "" || cfg.GroupID == "" {
		return nil, errors.New("kafka topic and group id are required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.LiveMomentsTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return newConsumer(r, cfg.Workers, logg), nil
}

func newConsumer(r reader, workers int, logg *logger.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Consumer{r: r, workers: workers, logg: logg, backoff: 200 * time.Millisecond}
}

// Start blocks until ctx is cancelled or the reader fails.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers*4)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, worker, h, m)
			}
		}(i)
	}

	err := c.dispatch(ctx, jobs)
	close(jobs)
	wg.Wait()
	return err
}

func (c *Consumer) dispatch(ctx context.Context, jobs chan<- kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) {
	msgCtx := c.logg.WithFields(ctx, map[string]any{
		"worker":    worker,
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
		"key":       string(m.Key),
	})
	if err := h(msgCtx, m); err != nil {
		c.logg.Error(msgCtx, "kafka.handle_failed", err)
		c.pause(ctx)
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		c.logg.Error(msgCtx, "kafka.commit_failed", err)
	}
}

func (c *Consumer) pause(ctx context.Context) {
	timer := time.NewTimer(c.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
