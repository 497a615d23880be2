package models

import "time"

// ResultEnvelope is the exportable record of one generation run. It is never
// mutated once built; a new run yields a new envelope.
type ResultEnvelope struct {
	Course         string           `json:"course"`
	Year           string           `json:"year"`
	CohortMode     CohortMode       `json:"cohort_mode"`
	Semester       int              `json:"semester"`
	CalendarRef    string           `json:"calendar_ref"`
	CalendarStart  time.Time        `json:"calendar_start"`
	CalendarEnd    time.Time        `json:"calendar_end"`
	SessionMinutes int              `json:"session_minutes"`
	SlotCount      int              `json:"slot_count"`
	Assignment     Assignment       `json:"assignment"`
	Report         ValidationReport `json:"report"`
	GeneratedAt    time.Time        `json:"generated_at"`
}
