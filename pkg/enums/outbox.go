package enums

import "fmt"

// OutboxAggregateType names the record an outbox event is about.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateListing    OutboxAggregateType = "listing"
	AggregateLiveMoment OutboxAggregateType = "live_moment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateListing,
	AggregateLiveMoment,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType names a domain event queued through the outbox.
type OutboxEventType string

const (
	EventOrderReserved      OutboxEventType = "order_reserved"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderShipped       OutboxEventType = "order_shipped"
	EventOrderCompleted     OutboxEventType = "order_completed"
	EventOrderPendingNudge  OutboxEventType = "order_pending_nudge"
	EventBuyerCopyRelinked  OutboxEventType = "buyer_copy_relinked"
	EventListingStatusSet   OutboxEventType = "listing_status_changed"
	EventLiveMomentFinalize OutboxEventType = "live_moment_finalized"

	// EventPaymentConfirmed arrives from the payment pipeline; it is decoded
	// here but never written to the outbox.
	EventPaymentConfirmed OutboxEventType = "payment_confirmed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderReserved,
	EventOrderCancelled,
	EventOrderPaid,
	EventOrderShipped,
	EventOrderCompleted,
	EventOrderPendingNudge,
	EventBuyerCopyRelinked,
	EventListingStatusSet,
	EventLiveMomentFinalize,
	EventPaymentConfirmed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an outbox row was parked.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
