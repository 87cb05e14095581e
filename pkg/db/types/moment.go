package dbtypes

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// Moment is one provenance event embedded in a listing history or an order
// snapshot. Identity is ID alone.
type Moment struct {
	ID            string             `json:"moment_id"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	SubjectName   string             `json:"subject_name"`
	Intensity     int                `json:"intensity"`
	ResultSummary string             `json:"result_summary,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	Status        enums.MomentStatus `json:"status"`
	IsHidden      bool               `json:"is_hidden"`
	Memories      []Memory           `json:"memories"`
	OwnerAtTime   *uuid.UUID         `json:"owner_at_time,omitempty"`

	// IsVirtual marks a live event injected into a read view only.
	IsVirtual bool `json:"-"`
}

// Memory is a short annotation nested under a Moment.
type Memory struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"author_id"`
	AuthorName string     `json:"author_name"`
	Text       string     `json:"text"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	IsHidden   bool       `json:"is_hidden"`
}

type momentAlias Moment

// UnmarshalJSON reads rows written before moment ids moved to moment_id.
// The rewrite_legacy_moment_keys migration converts those rows; drop the id
// fallback once it has run everywhere.
func (m *Moment) UnmarshalJSON(data []byte) error {
	var raw struct {
		momentAlias
		LegacyID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Moment(raw.momentAlias)
	if m.ID == "" {
		m.ID = raw.LegacyID
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing memories.
func (m Moment) Clone() Moment {
	out := m
	if m.Memories != nil {
		out.Memories = make([]Memory, len(m.Memories))
		copy(out.Memories, m.Memories)
	}
	if m.OwnerAtTime != nil {
		id := *m.OwnerAtTime
		out.OwnerAtTime = &id
	}
	return out
}

// MemoryIndex returns the position of the memory with id, or -1.
func (m Moment) MemoryIndex(id string) int {
	for i := range m.Memories {
		if m.Memories[i].ID == id {
			return i
		}
	}
	return -1
}
