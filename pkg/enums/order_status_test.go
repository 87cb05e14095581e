package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPaid, OrderStatusAwaitingShipping, true},
		{OrderStatusAwaitingShipping, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusPending, OrderStatus("refunded"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestOpenStatusesAreNeitherTerminalNorInvalid(t *testing.T) {
	for _, status := range OpenOrderStatuses() {
		if status.IsTerminal() {
			t.Fatalf("%s should not be terminal", status)
		}
		if !status.IsValid() {
			t.Fatalf("%s should be valid", status)
		}
	}
	if OrderStatusPending.IsSold() {
		t.Fatal("pending is a hold, not a sale")
	}
	if !OrderStatusAwaitingShipping.IsSold() {
		t.Fatal("awaiting_shipping is a sale")
	}
}

func TestParseListingStatus(t *testing.T) {
	got, err := ParseListingStatus("display")
	if err != nil || got != ListingStatusDisplay {
		t.Fatalf("unexpected parse result %q, %v", got, err)
	}
	if _, err := ParseListingStatus("sold"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	if ListingStatusDraft.Reservable() {
		t.Fatal("draft listings are not reservable")
	}
}
