package dbtypes

import (
	"encoding/json"
	"testing"
)

func TestMomentSnapshotDecodesEveryShape(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		shape SnapshotShape
		ids   []string
	}{
		{name: "null", raw: `null`, shape: SnapshotEmpty},
		{name: "empty array", raw: `[]`, shape: SnapshotEmpty},
		{name: "single object", raw: `{"moment_id":"m1","title":"walk-off"}`, shape: SnapshotSingle, ids: []string{"m1"}},
		{name: "array", raw: `[{"moment_id":"m1"},{"moment_id":"m2"}]`, shape: SnapshotSequence, ids: []string{"m1", "m2"}},
		{name: "legacy key", raw: `[{"id":"m9"}]`, shape: SnapshotSequence, ids: []string{"m9"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var snap MomentSnapshot
			if err := json.Unmarshal([]byte(tc.raw), &snap); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if snap.Shape != tc.shape {
				t.Fatalf("expected shape %d got %d", tc.shape, snap.Shape)
			}
			if snap.Len() != len(tc.ids) {
				t.Fatalf("expected %d moments got %d", len(tc.ids), snap.Len())
			}
			for i, id := range tc.ids {
				if snap.Moments[i].ID != id {
					t.Fatalf("moment %d: expected %s got %s", i, id, snap.Moments[i].ID)
				}
			}
		})
	}
}

func TestMomentSnapshotRejectsScalars(t *testing.T) {
	var snap MomentSnapshot
	if err := json.Unmarshal([]byte(`"m1"`), &snap); err == nil {
		t.Fatal("expected error for scalar snapshot")
	}
}

func TestMomentSnapshotAlwaysWritesArray(t *testing.T) {
	var snap MomentSnapshot
	if err := snap.Scan(`{"moment_id":"m1"}`); err != nil {
		t.Fatalf("scan: %v", err)
	}
	value, err := snap.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	text, ok := value.(string)
	if !ok || text[0] != '[' {
		t.Fatalf("expected array encoding, got %v", value)
	}

	empty, err := MomentSnapshot{}.Value()
	if err != nil || empty != nil {
		t.Fatalf("expected NULL for empty snapshot, got %v %v", empty, err)
	}
}

func TestMomentHistoryLegacyIdentity(t *testing.T) {
	var history MomentHistory
	if err := history.Scan([]byte(`[{"id":"m1","title":"old"},{"moment_id":"m2"}]`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !history.Contains("m1") || !history.Contains("m2") {
		t.Fatalf("expected both ids to resolve, got %+v", history)
	}
	if history.Contains("") {
		t.Fatal("blank id must never match")
	}

	value, err := history.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var rewritten []map[string]any
	if err := json.Unmarshal([]byte(value.(string)), &rewritten); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rewritten[0]["moment_id"] != "m1" {
		t.Fatalf("expected canonical key on write, got %v", rewritten[0])
	}
	if _, ok := rewritten[0]["id"]; ok {
		t.Fatalf("legacy key should not be written back: %v", rewritten[0])
	}
}

func TestMomentCloneDoesNotAliasMemories(t *testing.T) {
	original := Moment{ID: "m1", Memories: []Memory{{ID: "a", Text: "first"}}}
	clone := original.Clone()
	clone.Memories[0].Text = "changed"
	if original.Memories[0].Text != "first" {
		t.Fatal("clone mutated the original memory")
	}
	if clone.MemoryIndex("a") != 0 || clone.MemoryIndex("z") != -1 {
		t.Fatal("unexpected memory index results")
	}
}

func TestMomentVirtualFlagIsNotPersisted(t *testing.T) {
	payload, err := json.Marshal(Moment{ID: "m1", IsVirtual: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Moment
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.IsVirtual {
		t.Fatal("virtual flag should not round-trip through storage")
	}
}
