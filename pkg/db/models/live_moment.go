package models

import (
	"time"

	"gorm.io/gorm"

	dbtypes "github.com/stadiumcard/stadiumcard-backend/pkg/db/types"
	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// LiveMoment is an externally sourced real-world event. IDs come from the
// feed so ingestion stays idempotent.
type LiveMoment struct {
	ID            string             `gorm:"column:id;primaryKey" json:"moment_id"`
	Title         string             `gorm:"column:title;not null" json:"title"`
	Description   string             `gorm:"column:description;not null;default:''" json:"description,omitempty"`
	SubjectName   string             `gorm:"column:subject_name;not null" json:"subject_name"`
	Intensity     int                `gorm:"column:intensity;not null;default:0" json:"intensity"`
	ResultSummary string             `gorm:"column:result_summary;not null;default:''" json:"result_summary,omitempty"`
	Status        enums.MomentStatus `gorm:"column:status;type:text;not null" json:"status"`
	OccurredAt    time.Time          `gorm:"column:occurred_at;not null" json:"occurred_at"`
	FinalizedAt   *time.Time         `gorm:"column:finalized_at" json:"finalized_at,omitempty"`
	CreatedAt     time.Time          `gorm:"column:created_at" json:"created_at"`
}

// BeforeCreate stamps the ingestion time.
func (m *LiveMoment) BeforeCreate(*gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = m.CreatedAt
	}
	if m.Status == "" {
		m.Status = enums.MomentStatusLive
	}
	return nil
}

// IsFinalized reports whether the event has settled.
func (m LiveMoment) IsFinalized() bool {
	return m.Status == enums.MomentStatusFinalized
}

// ToMoment copies the event into its embedded history form.
func (m LiveMoment) ToMoment() dbtypes.Moment {
	return dbtypes.Moment{
		ID:            m.ID,
		Title:         m.Title,
		Description:   m.Description,
		SubjectName:   m.SubjectName,
		Intensity:     m.Intensity,
		ResultSummary: m.ResultSummary,
		Timestamp:     m.OccurredAt,
		Status:        m.Status,
		Memories:      []dbtypes.Memory{},
	}
}
