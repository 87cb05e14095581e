package moments

import (
	"context"
	"fmt"
	"strings"
	"time"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/matching"
)

// Snapshotter freezes the live moments relevant to a subject. Matching is
// deliberately loose: a spurious moment costs less than a missing one.
type Snapshotter struct {
	repo  Repository
	clock func() time.Time
}

// NewSnapshotter builds a snapshotter over the live moment store.
func NewSnapshotter(repo Repository) (*Snapshotter, error) {
	if repo == nil {
		return nil, fmt.Errorf("moments repository required")
	}
	return &Snapshotter{repo: repo, clock: time.Now}, nil
}

// Snapshot returns copies of every moment that occurred within lookback of
// now and whose subject fuzzily matches subjectName, oldest first.
func (s *Snapshotter) Snapshot(ctx context.Context, subjectName string, lookback time.Duration) ([]dbtypes.Moment, error) {
	if strings.TrimSpace(subjectName) == "" || lookback <= 0 {
		return nil, nil
	}
	live, err := s.repo.FindOccurredSince(ctx, s.clock().UTC().Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("load live moments: %w", err)
	}
	var out []dbtypes.Moment
	for _, m := range live {
		if matching.SubjectMatches(subjectName, m.SubjectName) {
			out = append(out, m.ToMoment())
		}
	}
	return out, nil
}
