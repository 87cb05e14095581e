package moments

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"

	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/kafka"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
)

// Ingest results recorded on the feed counter.
const (
	IngestCreated   = "created"
	IngestDuplicate = "duplicate"
	IngestFinalized = "finalized"
	IngestInvalid   = "invalid"
)

// FeedMessage is one record on the live moment topic. A message with
// Finalized set settles the moment, creating it first when unseen.
type FeedMessage struct {
	CreateInput
	Finalized bool `json:"finalized"`
}

// Ingestor applies feed messages to the moment service.
type Ingestor struct {
	svc      Service
	validate *validator.Validate
	metrics  *metrics.MarketplaceMetrics
	logg     *logger.Logger
}

// NewIngestor builds the feed consumer handler.
func NewIngestor(svc Service, m *metrics.MarketplaceMetrics, logg *logger.Logger) *Ingestor {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ingestor{svc: svc, validate: validator.New(), metrics: m, logg: logg}
}

// Handler adapts the ingestor to the kafka consumer. Malformed messages are
// logged and committed so they cannot wedge the partition.
func (i *Ingestor) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafkago.Message) error {
		return i.Apply(ctx, msg.Value)
	}
}

// Apply decodes and applies one feed message.
func (i *Ingestor) Apply(ctx context.Context, body []byte) error {
	var msg FeedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		i.reject(ctx, err)
		return nil
	}
	if err := i.validate.Struct(msg.CreateInput); err != nil {
		i.reject(i.logg.WithField(ctx, "moment_id", msg.ID), err)
		return nil
	}

	_, created, err := i.svc.Create(ctx, msg.CreateInput)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			i.reject(ctx, err)
			return nil
		}
		return err
	}

	if msg.Finalized {
		if _, err := i.svc.Finalize(ctx, msg.ID, msg.ResultSummary); err != nil {
			return err
		}
		i.metrics.LiveMomentIngested(IngestFinalized)
		return nil
	}
	if created {
		i.metrics.LiveMomentIngested(IngestCreated)
	} else {
		i.metrics.LiveMomentIngested(IngestDuplicate)
	}
	return nil
}

func (i *Ingestor) reject(ctx context.Context, err error) {
	i.metrics.LiveMomentIngested(IngestInvalid)
	i.logg.Warn(i.logg.WithField(ctx, "error", err.Error()), "moments.feed_message_rejected")
}
