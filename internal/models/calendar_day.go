package models

import "time"

// ExclusionReason explains why a date is not available for teaching.
type ExclusionReason string

const (
	ExclusionNone            ExclusionReason = "NONE"
	ExclusionWeekend         ExclusionReason = "WEEKEND"
	ExclusionHoliday         ExclusionReason = "HOLIDAY"
	ExclusionOptionalHoliday ExclusionReason = "OPTIONAL_HOLIDAY"
)

// CalendarDay is one date of a scheduling run. IsTeachingEligible holds iff
// ExclusionReason is NONE and the cohort mode permits the weekday.
type CalendarDay struct {
	Date               time.Time       `json:"date"`
	IsTeachingEligible bool            `json:"is_teaching_eligible"`
	ExclusionReason    ExclusionReason `json:"exclusion_reason"`
	HolidayName        string          `json:"holiday_name,omitempty"`
}

// HolidayKey identifies a recurring holiday by day of month and month.
type HolidayKey struct {
	Day   int
	Month time.Month
}

// KeyOf returns the holiday key of a date.
func KeyOf(date time.Time) HolidayKey {
	return HolidayKey{Day: date.Day(), Month: date.Month()}
}

// HolidayTable maps (day, month) to holiday names, split into mandatory
// holidays and optional ("ponto facultativo") days.
type HolidayTable struct {
	Mandatory map[HolidayKey]string
	Optional  map[HolidayKey]string
}

// HolidaySummary counts the entries of a holiday table.
type HolidaySummary struct {
	Mandatory int `json:"mandatory"`
	Optional  int `json:"optional"`
	Total     int `json:"total"`
}

// NewHolidayTable returns an empty, writable table.
func NewHolidayTable() HolidayTable {
	return HolidayTable{
		Mandatory: make(map[HolidayKey]string),
		Optional:  make(map[HolidayKey]string),
	}
}

// AddMandatory registers a mandatory holiday. It also clears an optional
// entry for the same date.
func (t HolidayTable) AddMandatory(key HolidayKey, name string) {
	t.Mandatory[key] = name
	delete(t.Optional, key)
}

// AddOptional registers an optional day unless the date is already a
// mandatory holiday.
func (t HolidayTable) AddOptional(key HolidayKey, name string) {
	if _, ok := t.Mandatory[key]; ok {
		return
	}
	t.Optional[key] = name
}

// Merge copies the entries of other into t, keeping mandatory precedence.
func (t HolidayTable) Merge(other HolidayTable) {
	for key, name := range other.Mandatory {
		t.AddMandatory(key, name)
	}
	for key, name := range other.Optional {
		t.AddOptional(key, name)
	}
}

// Lookup classifies date against the table.
func (t HolidayTable) Lookup(date time.Time) (ExclusionReason, string) {
	key := KeyOf(date)
	if name, ok := t.Mandatory[key]; ok {
		return ExclusionHoliday, name
	}
	if name, ok := t.Optional[key]; ok {
		return ExclusionOptionalHoliday, name
	}
	return ExclusionNone, ""
}

// Summary returns totals per holiday kind.
func (t HolidayTable) Summary() HolidaySummary {
	return HolidaySummary{
		Mandatory: len(t.Mandatory),
		Optional:  len(t.Optional),
		Total:     len(t.Mandatory) + len(t.Optional),
	}
}
