package enums

import "fmt"

// ListingStatus controls whether a listing can be reserved.
type ListingStatus string

const (
	ListingStatusDraft   ListingStatus = "draft"
	ListingStatusDisplay ListingStatus = "display"
	ListingStatusActive  ListingStatus = "active"
	// ListingStatusCompleted is shown to the owner after a sale; it is the
	// state of both the seller's sold listing and a freshly cloned buyer copy.
	ListingStatusCompleted ListingStatus = "completed"
)

var validListingStatuses = []ListingStatus{
	ListingStatusDraft,
	ListingStatusDisplay,
	ListingStatusActive,
	ListingStatusCompleted,
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ListingStatus.
func (s ListingStatus) IsValid() bool {
	for _, candidate := range validListingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Reservable reports whether buyers may start checkout against the listing.
func (s ListingStatus) Reservable() bool {
	return s == ListingStatusActive
}

// ParseListingStatus converts raw input into a ListingStatus.
func ParseListingStatus(value string) (ListingStatus, error) {
	for _, candidate := range validListingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing status %q", value)
}
