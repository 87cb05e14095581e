package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/db/models"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// aggregateOf pins every emittable event to the record it describes.
// payment_confirmed is inbound only and has no entry.
var aggregateOf = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventOrderReserved:      enums.AggregateOrder,
	enums.EventOrderCancelled:     enums.AggregateOrder,
	enums.EventOrderPaid:          enums.AggregateOrder,
	enums.EventOrderShipped:       enums.AggregateOrder,
	enums.EventOrderCompleted:     enums.AggregateOrder,
	enums.EventOrderPendingNudge:  enums.AggregateOrder,
	enums.EventBuyerCopyRelinked:  enums.AggregateOrder,
	enums.EventListingStatusSet:   enums.AggregateListing,
	enums.EventLiveMomentFinalize: enums.AggregateLiveMoment,
}

// DomainEvent is what services hand to Emit inside their transaction.
// AggregateType may be left empty; it is derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

// Emitter is the narrow surface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes the event in the caller's transaction so it commits or rolls
// back with the state change it describes. The row id doubles as the
// envelope's eventId, which is what subscribers dedupe on.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	aggregate, err := resolveAggregate(event)
	if err != nil {
		return err
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("%s: aggregate id required", event.EventType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("%s: encode data: %w", event.EventType, err)
	}
	eventID := uuid.New()
	envelope := PayloadEnvelope{
		Version:    CurrentVersion,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now().UTC()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("%s: encode envelope: %w", event.EventType, err)
	}

	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: aggregate,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("%s: insert outbox row: %w", event.EventType, err)
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": aggregate,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}

// AggregateOf reports the aggregate an emittable event type belongs to.
func AggregateOf(eventType enums.OutboxEventType) (enums.OutboxAggregateType, bool) {
	agg, ok := aggregateOf[eventType]
	return agg, ok
}

// EmittableTypes lists every event type Emit accepts, sorted.
func EmittableTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(aggregateOf))
	for t := range aggregateOf {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func resolveAggregate(event DomainEvent) (enums.OutboxAggregateType, error) {
	want, ok := aggregateOf[event.EventType]
	if !ok {
		return "", fmt.Errorf("event type %q cannot be emitted", event.EventType)
	}
	if event.AggregateType != "" && event.AggregateType != want {
		return "", fmt.Errorf("%s belongs to aggregate %s, not %s", event.EventType, want, event.AggregateType)
	}
	return want, nil
}
