package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableStatus represents lifecycle phases of a stored envelope.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// TimetableKey identifies the version line an envelope belongs to.
type TimetableKey struct {
	Course     string     `json:"course" form:"course"`
	Year       string     `json:"year" form:"year"`
	CohortMode CohortMode `json:"cohort_mode" form:"mode"`
	Semester   int        `json:"semester" form:"semester"`
}

// Key returns the version line of an envelope.
func (e ResultEnvelope) Key() TimetableKey {
	return TimetableKey{Course: e.Course, Year: e.Year, CohortMode: e.CohortMode, Semester: e.Semester}
}

// String renders the key for logs and cache keys.
func (k TimetableKey) String() string {
	return fmt.Sprintf("%s/%s/%s/s%d", k.Course, k.Year, k.CohortMode, k.Semester)
}

// TimetableRecord is a persisted, version-stamped envelope.
type TimetableRecord struct {
	ID          string           `db:"id" json:"id"`
	Course      string           `db:"course" json:"course"`
	Year        string           `db:"academic_year" json:"year"`
	CohortMode  CohortMode       `db:"cohort_mode" json:"cohort_mode"`
	Semester    int              `db:"semester" json:"semester"`
	Version     int              `db:"version" json:"version"`
	Status      TimetableStatus  `db:"status" json:"status"`
	Validity    ValidationStatus `db:"validity" json:"validity"`
	CalendarRef string           `db:"calendar_ref" json:"calendar_ref"`
	Payload     types.JSONText   `db:"payload" json:"-"`
	GeneratedAt time.Time        `db:"generated_at" json:"generated_at"`
	PublishedAt *time.Time       `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`

	Envelope *ResultEnvelope `db:"-" json:"envelope,omitempty"`
}

// Key returns the record's version line.
func (r TimetableRecord) Key() TimetableKey {
	return TimetableKey{Course: r.Course, Year: r.Year, CohortMode: r.CohortMode, Semester: r.Semester}
}

// DecodeEnvelope unmarshals the stored payload into Envelope.
func (r *TimetableRecord) DecodeEnvelope() (*ResultEnvelope, error) {
	if r.Envelope != nil {
		return r.Envelope, nil
	}
	if len(r.Payload) == 0 {
		return nil, fmt.Errorf("timetable %s has no payload", r.ID)
	}
	var env ResultEnvelope
	if err := json.Unmarshal(r.Payload, &env); err != nil {
		return nil, fmt.Errorf("decode timetable %s: %w", r.ID, err)
	}
	r.Envelope = &env
	return r.Envelope, nil
}

// TimetableFilter narrows record listings. Zero values match everything.
type TimetableFilter struct {
	Course     string          `form:"course"`
	Year       string          `form:"year"`
	CohortMode CohortMode      `form:"mode"`
	Semester   int             `form:"semester"`
	Status     TimetableStatus `form:"status"`
	Page       int             `form:"page"`
	PageSize   int             `form:"page_size"`
}
