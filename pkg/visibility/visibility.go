package visibility

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// HiddenPlaceholder replaces the text of a hidden memory the viewer may not read.
const HiddenPlaceholder = "This memory has been hidden."

// Viewer describes who is reading a listing's history.
type Viewer struct {
	UserID  string
	IsOwner bool
	// Peek holds memory ids the viewer explicitly asked to reveal.
	Peek map[string]struct{}
}

// NewViewer builds a viewer from a caller id and the raw peek ids.
func NewViewer(userID string, isOwner bool, peek []string) Viewer {
	v := Viewer{UserID: strings.TrimSpace(userID), IsOwner: isOwner}
	for _, id := range peek {
		if id = strings.TrimSpace(id); id != "" {
			if v.Peek == nil {
				v.Peek = map[string]struct{}{}
			}
			v.Peek[id] = struct{}{}
		}
	}
	return v
}

func (v Viewer) isAuthor(m dbtypes.Memory) bool {
	return v.UserID != "" && v.UserID == m.AuthorID
}

func (v Viewer) peeked(id string) bool {
	_, ok := v.Peek[id]
	return ok
}

// CanEditMemory reports whether the viewer may change the memory text or delete it.
func CanEditMemory(v Viewer, m dbtypes.Memory) bool {
	return v.isAuthor(m)
}

// CanToggleMemory reports whether the viewer may hide or unhide the memory.
func CanToggleMemory(v Viewer, m dbtypes.Memory) bool {
	return v.isAuthor(m) || v.IsOwner
}

// CanReadMemory reports whether the memory text is shown. Peeking reveals
// content without granting any capability.
func CanReadMemory(v Viewer, m dbtypes.Memory) bool {
	if !m.IsHidden {
		return true
	}
	return v.IsOwner || v.isAuthor(m) || v.peeked(m.ID)
}

// CanSeeMoment reports whether a moment appears in the viewer's history at all.
func CanSeeMoment(v Viewer, m dbtypes.Moment) bool {
	return !m.IsHidden || v.IsOwner
}

// MemoryView is one memory as rendered for a specific viewer.
type MemoryView struct {
	ID            string     `json:"id"`
	AuthorID      string     `json:"author_id"`
	AuthorName    string     `json:"author_name"`
	Text          string     `json:"text"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	IsHidden      bool       `json:"is_hidden"`
	Redacted      bool       `json:"redacted"`
	CanEdit       bool       `json:"can_edit"`
	CanDelete     bool       `json:"can_delete"`
	CanToggleHide bool       `json:"can_toggle_hide"`
}

// MomentView is one moment as rendered for a specific viewer.
type MomentView struct {
	ID            string             `json:"moment_id"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	SubjectName   string             `json:"subject_name"`
	Intensity     int                `json:"intensity"`
	ResultSummary string             `json:"result_summary,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	Status        enums.MomentStatus `json:"status"`
	IsHidden      bool               `json:"is_hidden"`
	IsVirtual     bool               `json:"is_virtual"`
	OwnerAtTime   *uuid.UUID         `json:"owner_at_time,omitempty"`
	Memories      []MemoryView       `json:"memories"`
}

// Render applies the visibility rules to a history. Hidden moments are
// dropped for non-owners; hidden memories keep their slot with placeholder text.
func Render(v Viewer, moments []dbtypes.Moment) []MomentView {
	out := make([]MomentView, 0, len(moments))
	for _, m := range moments {
		if !CanSeeMoment(v, m) {
			continue
		}
		view := MomentView{
			ID:            m.ID,
			Title:         m.Title,
			Description:   m.Description,
			SubjectName:   m.SubjectName,
			Intensity:     m.Intensity,
			ResultSummary: m.ResultSummary,
			Timestamp:     m.Timestamp,
			Status:        m.Status,
			IsHidden:      m.IsHidden,
			IsVirtual:     m.IsVirtual,
			OwnerAtTime:   m.OwnerAtTime,
			Memories:      make([]MemoryView, 0, len(m.Memories)),
		}
		for _, mem := range m.Memories {
			view.Memories = append(view.Memories, renderMemory(v, mem, m.IsVirtual))
		}
		out = append(out, view)
	}
	return out
}

func renderMemory(v Viewer, m dbtypes.Memory, virtual bool) MemoryView {
	view := MemoryView{
		ID:         m.ID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		IsHidden:   m.IsHidden,
	}
	if !CanReadMemory(v, m) {
		view.Text = HiddenPlaceholder
		view.Redacted = true
	}
	if !virtual {
		view.CanEdit = CanEditMemory(v, m)
		view.CanDelete = view.CanEdit
		view.CanToggleHide = CanToggleMemory(v, m)
	}
	return view
}
