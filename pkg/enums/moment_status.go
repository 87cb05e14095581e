package enums

// MomentStatus distinguishes events still in progress from settled ones.
type MomentStatus string

const (
	MomentStatusLive      MomentStatus = "live"
	MomentStatusFinalized MomentStatus = "finalized"
)

// IsValid reports whether the value is a known MomentStatus.
func (s MomentStatus) IsValid() bool {
	return s == MomentStatusLive || s == MomentStatusFinalized
}
