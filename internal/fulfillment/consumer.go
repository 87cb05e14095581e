package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/idempotency"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/registry"
)

const paymentConsumer = "payment-confirmations"

type applier interface {
	Apply(ctx context.Context, evt payloads.PaymentConfirmedEvent) (*Result, error)
}

type decoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

// Consumer applies payment_confirmed messages from the payment subscription.
type Consumer struct {
	applier      applier
	decoder      decoder
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

func NewConsumer(a applier, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if a == nil {
		return nil, fmt.Errorf("payment applier required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("payment subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		applier:      a,
		decoder:      registry.NewInboundRegistry(),
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked. Malformed and
// permanently rejected messages are acked so they do not redeliver forever;
// transient failures release the claim and nack.
func (c *Consumer) process(ctx context.Context, messageID, eventType string, data []byte) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})
	if eventType != string(enums.EventPaymentConfirmed) {
		c.logg.Debug(logCtx, "fulfillment.skip_event")
		return true
	}

	envelope, err := outbox.OpenEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "fulfillment.decode_envelope_failed", err)
		return true
	}
	decoded, err := c.decoder.Decode(enums.EventPaymentConfirmed, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "fulfillment.decode_payload_failed", err)
		return true
	}
	evt, ok := decoded.(*payloads.PaymentConfirmedEvent)
	if !ok {
		c.logg.Error(logCtx, "fulfillment.unexpected_payload", fmt.Errorf("got %T", decoded))
		return true
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": envelope.EventID,
		"order_id": evt.OrderID.String(),
	})
	claimed, err := c.idempotency.Claim(ctx, paymentConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "fulfillment.idempotency_failed", err)
		return false
	}
	if !claimed {
		c.logg.Info(logCtx, "fulfillment.duplicate_delivery")
		return true
	}

	_, err = c.applier.Apply(ctx, *evt)
	switch {
	case err != nil && !permanent(err):
		c.logg.Error(logCtx, "fulfillment.apply_failed", err)
		if relErr := c.idempotency.Release(ctx, paymentConsumer, envelope.EventID); relErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", relErr.Error()), "fulfillment.release_failed")
		}
		return false
	case err != nil:
		c.logg.Error(logCtx, "fulfillment.rejected", err)
	}
	// A lost done mark only shortens the dedupe window to the claim ttl.
	if err := c.idempotency.Complete(ctx, paymentConsumer, envelope.EventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "fulfillment.complete_failed")
	}
	return true
}

// permanent is true only for typed errors whose code says retrying is futile.
func permanent(err error) bool {
	return pkgerrors.As(err) != nil && !pkgerrors.Retryable(err)
}
