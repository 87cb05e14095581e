package history

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

func momentIDs() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{"m1", "m2", "m3", "m4", "m5"})
}

func TestMergeIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		historyIDs := rapid.SliceOfDistinct(momentIDs(), func(id string) string { return id }).Draw(t, "history")
		snapshotIDs := rapid.SliceOfN(momentIDs(), 0, 6).Draw(t, "snapshot")

		history := dbtypes.MomentHistory{}
		for _, id := range historyIDs {
			history = append(history, dbtypes.Moment{ID: id, Status: enums.MomentStatusLive})
		}
		var moments []dbtypes.Moment
		for _, id := range snapshotIDs {
			moments = append(moments, dbtypes.Moment{ID: id, Title: "snap " + id})
		}
		snapshot := dbtypes.NewMomentSnapshot(moments)
		orderID := uuid.New()

		once, added := Merge(history.Clone(), snapshot, orderID)
		twice, again := Merge(once.Clone(), snapshot, orderID)

		if again != 0 {
			t.Fatalf("second merge appended %d moments", again)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("second merge changed history:\n%+v\n%+v", once, twice)
		}
		if len(once) != len(history)+added {
			t.Fatalf("expected %d entries, got %d", len(history)+added, len(once))
		}
		seen := map[string]bool{}
		for i, m := range once {
			if seen[m.ID] {
				t.Fatalf("duplicate moment %s", m.ID)
			}
			seen[m.ID] = true
			if i < len(history) && !reflect.DeepEqual(m, history[i]) {
				t.Fatalf("existing entry %d rewritten", i)
			}
		}
		for _, id := range snapshotIDs {
			if !seen[id] {
				t.Fatalf("snapshot moment %s missing after merge", id)
			}
		}
	})
}

func TestMergeStampsAppendedMoments(t *testing.T) {
	orderID := uuid.New()
	snapshot := dbtypes.NewMomentSnapshot([]dbtypes.Moment{{ID: "m1", Status: enums.MomentStatusLive, IsVirtual: true}})

	merged, added := Merge(nil, snapshot, orderID)
	if added != 1 || len(merged) != 1 {
		t.Fatalf("expected one appended moment, got %d", added)
	}
	m := merged[0]
	if m.OwnerAtTime == nil || *m.OwnerAtTime != orderID {
		t.Fatalf("expected owner at time %s, got %v", orderID, m.OwnerAtTime)
	}
	if m.Status != enums.MomentStatusFinalized || m.IsVirtual || m.Memories == nil {
		t.Fatalf("unexpected stamped moment %+v", m)
	}
	if snapshot.Moments[0].OwnerAtTime != nil {
		t.Fatal("merge mutated the snapshot")
	}
}
