package listings

import (
	"strings"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
)

// NotFound reasons shared by every history mutation.
const (
	ReasonItem   = "item"
	ReasonMoment = "moment"
	ReasonMemory = "memory"
	ReasonOrder  = "order"
)

// MomentRef addresses a moment inside a history, by id when present and by
// position otherwise. Index exists for clients that predate stable ids.
type MomentRef struct {
	ID    string `json:"moment_id,omitempty"`
	Index *int   `json:"moment_index,omitempty"`
}

// Locate returns the position of the referenced moment. An id that is not
// in the history falls back to the index when one was supplied.
func (r MomentRef) Locate(history dbtypes.MomentHistory) (int, error) {
	id := strings.TrimSpace(r.ID)
	if idx := history.IndexOf(id); idx >= 0 {
		return idx, nil
	}
	if r.Index == nil {
		if id == "" {
			return -1, pkgerrors.New(pkgerrors.CodeValidation, "moment id or index is required")
		}
		return -1, pkgerrors.WithReason(pkgerrors.CodeNotFound, ReasonMoment, "moment not found")
	}
	if *r.Index < 0 || *r.Index >= len(history) {
		return -1, pkgerrors.WithReason(pkgerrors.CodeNotFound, ReasonMoment, "invalid moment index")
	}
	return *r.Index, nil
}

// ItemNotFound is the error for a missing or invisible listing.
func ItemNotFound() error {
	return pkgerrors.WithReason(pkgerrors.CodeNotFound, ReasonItem, "item not found")
}
