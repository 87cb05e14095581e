package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its data
// decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a row that passed validation, with its data decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes outbox rows to topics.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func describe[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	agg, _ := outbox.AggregateOf(eventType)
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  agg,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes buyer nudges to the notification topic and every
// other event to the domain topic. It fails if an event type the outbox can
// emit has no route.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.DomainTopic == "":
		return nil, errors.New("domain topic is required")
	case cfg.NotificationTopic == "":
		return nil, errors.New("notification topic is required")
	}
	domain, notify := cfg.DomainTopic, cfg.NotificationTopic

	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		describe[payloads.OrderReservedEvent](enums.EventOrderReserved, domain),
		describe[payloads.OrderCancelledEvent](enums.EventOrderCancelled, domain),
		describe[payloads.OrderPaidEvent](enums.EventOrderPaid, domain),
		describe[payloads.OrderShippedEvent](enums.EventOrderShipped, domain),
		describe[payloads.OrderCompletedEvent](enums.EventOrderCompleted, domain),
		describe[payloads.BuyerCopyRelinkedEvent](enums.EventBuyerCopyRelinked, domain),
		describe[payloads.ListingStatusChangedEvent](enums.EventListingStatusSet, domain),
		describe[payloads.LiveMomentFinalizedEvent](enums.EventLiveMomentFinalize, domain),
		describe[payloads.OrderPendingNudgeEvent](enums.EventOrderPendingNudge, notify),
	} {
		if d.AggregateType == "" {
			return nil, fmt.Errorf("%s is not an emittable event", d.EventType)
		}
		reg.entries[d.EventType] = d
	}
	for _, t := range outbox.EmittableTypes() {
		if _, ok := reg.entries[t]; !ok {
			return nil, fmt.Errorf("no topic route for %s", t)
		}
	}
	return reg, nil
}

// Topics returns the distinct topics the registry publishes to, sorted.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, d := range r.entries {
		if !slices.Contains(topics, d.Topic) {
			topics = append(topics, d.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve validates the row and decodes its typed payload. Every failure is
// a NonRetryableError: the row's bytes will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	fail := func(format string, args ...any) (*ResolvedEvent, error) {
		return nil, NewNonRetryableError(fmt.Errorf(format, args...))
	}

	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return fail("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return fail("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return fail("missing aggregate_id")
	}

	envelope, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		return fail("%s: %w", event.EventType, err)
	}
	if event.ID != uuid.Nil && envelope.EventID != event.ID.String() {
		return fail("%s: envelope id %q does not match row %s", event.EventType, envelope.EventID, event.ID)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return fail("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
