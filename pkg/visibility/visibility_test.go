package visibility

import (
	"testing"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
)

func hiddenHistory() []dbtypes.Moment {
	return []dbtypes.Moment{
		{
			ID: "m1",
			Memories: []dbtypes.Memory{
				{ID: "mem-1", AuthorID: "buyer", Text: "was in the stands", IsHidden: true},
				{ID: "mem-2", AuthorID: "owner", Text: "walk-off"},
			},
		},
		{ID: "m2", IsHidden: true},
	}
}

func TestRenderHiddenMemoryPerViewer(t *testing.T) {
	cases := []struct {
		name       string
		viewer     Viewer
		wantText   string
		wantEdit   bool
		wantToggle bool
		moments    int
	}{
		{name: "owner", viewer: NewViewer("owner", true, nil), wantText: "was in the stands", wantToggle: true, moments: 2},
		{name: "author", viewer: NewViewer("buyer", false, nil), wantText: "was in the stands", wantEdit: true, wantToggle: true, moments: 1},
		{name: "stranger", viewer: NewViewer("someone", false, nil), wantText: HiddenPlaceholder, moments: 1},
		{name: "stranger peeking", viewer: NewViewer("someone", false, []string{"mem-1", " "}), wantText: "was in the stands", moments: 1},
		{name: "anonymous", viewer: NewViewer("", false, nil), wantText: HiddenPlaceholder, moments: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			views := Render(tc.viewer, hiddenHistory())
			if len(views) != tc.moments {
				t.Fatalf("expected %d moments, got %d", tc.moments, len(views))
			}
			mem := views[0].Memories[0]
			if mem.Text != tc.wantText {
				t.Fatalf("expected text %q, got %q", tc.wantText, mem.Text)
			}
			if mem.CanEdit != tc.wantEdit || mem.CanDelete != tc.wantEdit {
				t.Fatalf("expected edit/delete %v, got %v/%v", tc.wantEdit, mem.CanEdit, mem.CanDelete)
			}
			if mem.CanToggleHide != tc.wantToggle {
				t.Fatalf("expected toggle %v, got %v", tc.wantToggle, mem.CanToggleHide)
			}
		})
	}
}

func TestRenderVirtualMomentGrantsNothing(t *testing.T) {
	views := Render(NewViewer("owner", true, nil), []dbtypes.Moment{{
		ID:        "live-1",
		IsVirtual: true,
		Memories:  []dbtypes.Memory{{ID: "x", AuthorID: "owner"}},
	}})
	if !views[0].IsVirtual {
		t.Fatal("expected virtual flag in view")
	}
	if views[0].Memories[0].CanEdit || views[0].Memories[0].CanToggleHide {
		t.Fatal("virtual moments are read-only")
	}
}
