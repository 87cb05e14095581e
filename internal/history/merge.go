// Package history folds reservation snapshots into listing provenance and
// assembles the per-viewer detail view.
package history

import (
	"github.com/google/uuid"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// Merge appends every snapshot moment whose id is not yet in history,
// stamped with the order that captured it. It returns the merged history and
// the number of moments appended. Running it again on its own output appends
// nothing.
func Merge(history dbtypes.MomentHistory, snapshot dbtypes.MomentSnapshot, orderID uuid.UUID) (dbtypes.MomentHistory, int) {
	out := history
	appended := 0
	for _, m := range snapshot.Moments {
		if m.ID == "" || out.Contains(m.ID) {
			continue
		}
		stamped := m.Clone()
		owner := orderID
		stamped.OwnerAtTime = &owner
		stamped.Status = enums.MomentStatusFinalized
		stamped.IsVirtual = false
		if stamped.Memories == nil {
			stamped.Memories = []dbtypes.Memory{}
		}
		out = append(out, stamped)
		appended++
	}
	return out, appended
}
