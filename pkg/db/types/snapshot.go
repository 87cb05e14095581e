package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SnapshotShape records how a snapshot was encoded when it was read.
type SnapshotShape uint8

const (
	SnapshotEmpty SnapshotShape = iota
	SnapshotSingle
	SnapshotSequence
)

// MomentSnapshot is the frozen copy of live moments taken at reservation
// time. Older rows hold either a bare object or an array; both decode into
// Moments and everything is written back as an array.
type MomentSnapshot struct {
	Moments []Moment
	Shape   SnapshotShape
}

// NewMomentSnapshot wraps moments as a sequence snapshot.
func NewMomentSnapshot(moments []Moment) MomentSnapshot {
	if len(moments) == 0 {
		return MomentSnapshot{}
	}
	return MomentSnapshot{Moments: moments, Shape: SnapshotSequence}
}

// Len returns the number of frozen moments.
func (s MomentSnapshot) Len() int {
	return len(s.Moments)
}

// Find returns the snapshot moment with id.
func (s MomentSnapshot) Find(id string) (Moment, bool) {
	if id == "" {
		return Moment{}, false
	}
	for _, m := range s.Moments {
		if m.ID == id {
			return m, true
		}
	}
	return Moment{}, false
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *MomentSnapshot) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = MomentSnapshot{}
		return nil
	}

	switch trimmed[0] {
	case '{':
		var single Moment
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return fmt.Errorf("moment snapshot: %w", err)
		}
		*s = MomentSnapshot{Moments: []Moment{single}, Shape: SnapshotSingle}
	case '[':
		var many []Moment
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return fmt.Errorf("moment snapshot: %w", err)
		}
		shape := SnapshotSequence
		if len(many) == 0 {
			shape = SnapshotEmpty
		}
		*s = MomentSnapshot{Moments: many, Shape: shape}
	default:
		return fmt.Errorf("moment snapshot: unexpected json %q", trimmed[0])
	}
	return nil
}

// MarshalJSON always emits an array.
func (s MomentSnapshot) MarshalJSON() ([]byte, error) {
	if s.Moments == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Moments)
}

// Value implements driver.Valuer. An empty snapshot is stored as NULL.
func (s MomentSnapshot) Value() (driver.Value, error) {
	if len(s.Moments) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(s.Moments)
	if err != nil {
		return nil, fmt.Errorf("moment snapshot: %w", err)
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (s *MomentSnapshot) Scan(value any) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("moment snapshot: %w", err)
	}
	return s.UnmarshalJSON(raw)
}
