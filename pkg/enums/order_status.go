package enums

// OrderStatus tracks a single purchase attempt against one listing.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusPaid             OrderStatus = "paid"
	OrderStatusAwaitingShipping OrderStatus = "awaiting_shipping"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusAwaitingShipping,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// orderForward lists the single forward step allowed from each status.
// Cancellation is handled separately because it is reachable from every open status.
var orderForward = map[OrderStatus]OrderStatus{
	OrderStatusPending:          OrderStatusPaid,
	OrderStatusPaid:             OrderStatusAwaitingShipping,
	OrderStatusAwaitingShipping: OrderStatusShipped,
	OrderStatusShipped:          OrderStatusDelivered,
	OrderStatusDelivered:        OrderStatusCompleted,
}

// OpenOrderStatuses are the statuses that block other buyers from reserving a
// listing. The storage layer enforces at most one such order per listing.
func OpenOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusAwaitingShipping,
		OrderStatusShipped,
		OrderStatusDelivered,
	}
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsSold reports whether payment has been taken, making the sale permanent
// from a competing buyer's point of view.
func (s OrderStatus) IsSold() bool {
	switch s {
	case OrderStatusPaid, OrderStatusAwaitingShipping, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return orderForward[s] == next
}
