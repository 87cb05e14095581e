package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MomentHistory is the ordered, owner-visible provenance of a listing. It is
// stored as a JSON array.
type MomentHistory []Moment

// IndexOf returns the position of the moment with id, or -1.
func (h MomentHistory) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range h {
		if h[i].ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether a moment with id is already recorded.
func (h MomentHistory) Contains(id string) bool {
	return h.IndexOf(id) >= 0
}

// Clone deep-copies the history.
func (h MomentHistory) Clone() MomentHistory {
	if h == nil {
		return nil
	}
	out := make(MomentHistory, len(h))
	for i := range h {
		out[i] = h[i].Clone()
	}
	return out
}

// Value implements driver.Valuer.
func (h MomentHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	payload, err := json.Marshal([]Moment(h))
	if err != nil {
		return nil, fmt.Errorf("moment history: %w", err)
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (h *MomentHistory) Scan(value any) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("moment history: %w", err)
	}
	if len(raw) == 0 {
		*h = MomentHistory{}
		return nil
	}
	var moments []Moment
	if err := json.Unmarshal(raw, &moments); err != nil {
		return fmt.Errorf("moment history: %w", err)
	}
	if moments == nil {
		moments = []Moment{}
	}
	*h = moments
	return nil
}

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
