package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	orderID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.OrderReservedEvent{
		OrderID:     orderID,
		ListingID:   uuid.New(),
		BuyerID:     "buyer-a",
		SellerID:    "seller-1",
		TotalAmount: decimal.NewFromInt(30000),
	})

	event := models.OutboxEvent{
		EventType:     enums.EventOrderReserved,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "domain-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.OrderReservedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.OrderID != orderID || !payload.TotalAmount.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", resolved.Envelope)
	}
}

func TestEventRegistryRoutesNudgesToNotifications(t *testing.T) {
	reg := newTestEventRegistry(t)
	event := models.OutboxEvent{
		EventType:     enums.EventOrderPendingNudge,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.OrderPendingNudgeEvent{OrderID: uuid.New()})),
	}
	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "notification-topic" {
		t.Fatalf("expected notification topic, got %q", resolved.Descriptor.Topic)
	}
}

func TestEventRegistryRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	cases := map[string]models.OutboxEvent{
		"inbound only type": {
			EventType:     enums.EventPaymentConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderReserved,
			AggregateType: enums.AggregateListing,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderReserved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.Nil,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"future envelope version": {
			EventType:     enums.EventOrderReserved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustVersionedEnvelope(t, 2, uuid.NewString(), []byte(`{}`)),
		},
		"envelope id mismatch": {
			ID:            uuid.New(),
			EventType:     enums.EventOrderReserved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventOrderReserved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "n"}); err == nil {
		t.Fatal("expected error without domain topic")
	}
	if _, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "d"}); err == nil {
		t.Fatal("expected error without notification topic")
	}
}

func TestInboundRegistryDecodesPaymentConfirmation(t *testing.T) {
	reg := NewInboundRegistry()
	orderID := uuid.New()
	raw := mustMarshal(t, payloads.PaymentConfirmedEvent{OrderID: orderID, PaymentRef: "pi_1", SkipLink: true})

	decoded, err := reg.Decode(enums.EventPaymentConfirmed, 1, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	evt, ok := decoded.(*payloads.PaymentConfirmedEvent)
	if !ok || evt.OrderID != orderID || !evt.SkipLink {
		t.Fatalf("unexpected decode result %#v", decoded)
	}
	if _, err := reg.Decode(enums.EventPaymentConfirmed, 2, raw); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected unknown message for v2, got %v", err)
	}
	if _, err := reg.Decode(enums.EventOrderPaid, 1, raw); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("outbound types are not decodable inbound, got %v", err)
	}
	if _, err := reg.Decode(enums.EventPaymentConfirmed, 1, json.RawMessage(" null ")); err == nil {
		t.Fatal("expected error for null payload")
	}
}

func TestEventRegistryAcceptsMatchingRowID(t *testing.T) {
	reg := newTestEventRegistry(t)
	rowID := uuid.New()
	event := models.OutboxEvent{
		ID:            rowID,
		EventType:     enums.EventListingStatusSet,
		AggregateType: enums.AggregateListing,
		AggregateID:   uuid.New(),
		Payload:       mustVersionedEnvelope(t, 1, rowID.String(), []byte(`{"listing_id":"`+uuid.NewString()+`"}`)),
	}
	if _, err := reg.Resolve(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventRegistryCoversEveryEmittableType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range outbox.EmittableTypes() {
		if _, ok := reg.entries[eventType]; !ok {
			t.Fatalf("%s has no route", eventType)
		}
	}
	topics := reg.Topics()
	if len(topics) != 2 || topics[0] != "domain-topic" || topics[1] != "notification-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		DomainTopic:       "domain-topic",
		NotificationTopic: "notification-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	return mustVersionedEnvelope(t, 1, uuid.NewString(), payload)
}

func mustVersionedEnvelope(t *testing.T, version int, eventID string, payload []byte) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
