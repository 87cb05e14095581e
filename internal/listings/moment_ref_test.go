package listings

import (
	"testing"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	pkgerrors "github.com/stadiumcard/stadiumcard-backend/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestMomentRefLocate(t *testing.T) {
	history := dbtypes.MomentHistory{{ID: "m1"}, {ID: "m2"}}
	cases := []struct {
		name   string
		ref    MomentRef
		want   int
		reason string
		code   pkgerrors.Code
	}{
		{name: "by id", ref: MomentRef{ID: "m2"}, want: 1},
		{name: "id wins over index", ref: MomentRef{ID: "m2", Index: intPtr(0)}, want: 1},
		{name: "unknown id falls back to index", ref: MomentRef{ID: "gone", Index: intPtr(0)}, want: 0},
		{name: "by index", ref: MomentRef{Index: intPtr(1)}, want: 1},
		{name: "unknown id", ref: MomentRef{ID: "gone"}, want: -1, reason: ReasonMoment, code: pkgerrors.CodeNotFound},
		{name: "index out of range", ref: MomentRef{Index: intPtr(2)}, want: -1, reason: ReasonMoment, code: pkgerrors.CodeNotFound},
		{name: "negative index", ref: MomentRef{Index: intPtr(-1)}, want: -1, reason: ReasonMoment, code: pkgerrors.CodeNotFound},
		{name: "nothing", ref: MomentRef{}, want: -1, code: pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ref.Locate(history)
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
			if tc.code == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != tc.code || typed.Reason() != tc.reason {
				t.Fatalf("expected %s/%q, got %v", tc.code, tc.reason, err)
			}
		})
	}
}
