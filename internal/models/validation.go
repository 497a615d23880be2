package models

// IssueKind classifies a conflict or warning in a validation report.
type IssueKind string

const (
	// Conflicts.
	IssueDoubleBooked     IssueKind = "DOUBLE_BOOKED"
	IssueHolidayConflict  IssueKind = "HOLIDAY_CONFLICT"
	IssueCapacityExceeded IssueKind = "CAPACITY_EXCEEDED"
	IssueUnknownSlot      IssueKind = "UNKNOWN_SLOT"

	// Warnings.
	IssueHourShortfall       IssueKind = "HOUR_SHORTFALL"
	IssueOverallocation      IssueKind = "OVERALLOCATION"
	IssueMalformedRow        IssueKind = "MALFORMED_ROW"
	IssueDuplicateDiscipline IssueKind = "DUPLICATE_DISCIPLINE"
	IssueCalendarExhausted   IssueKind = "CALENDAR_EXHAUSTED"
)

// Issue describes one conflict or warning.
type Issue struct {
	Kind           IssueKind `json:"kind"`
	Message        string    `json:"message"`
	DisciplineCode string    `json:"discipline_code,omitempty"`
	SlotKey        string    `json:"slot_key,omitempty"`
	RowID          string    `json:"row_id,omitempty"`
	Semester       int       `json:"semester,omitempty"`
}

// ValidationStatus is invalid iff a report holds at least one conflict.
type ValidationStatus string

const (
	ValidationStatusValid   ValidationStatus = "VALID"
	ValidationStatusInvalid ValidationStatus = "INVALID"
)

// HourSummary compares a discipline's requirement with what was booked.
type HourSummary struct {
	DisciplineCode    string  `json:"discipline_code"`
	DisciplineName    string  `json:"discipline_name"`
	RequiredHours     float64 `json:"required_hours"`
	RequiredSessions  int     `json:"required_sessions"`
	AllocatedSessions int     `json:"allocated_sessions"`
	AllocatedHours    float64 `json:"allocated_hours"`
	ShortfallHours    float64 `json:"shortfall_hours"`
}

// ValidationReport is the outcome of checking an assignment.
type ValidationReport struct {
	Status         ValidationStatus `json:"status"`
	Conflicts      []Issue          `json:"conflicts"`
	Warnings       []Issue          `json:"warnings"`
	HourSummary    []HourSummary    `json:"hour_summary"`
	CapacityHours  float64          `json:"capacity_hours"`
	AllocatedHours float64          `json:"allocated_hours"`
}

// Valid reports whether the report carries no conflicts.
func (r ValidationReport) Valid() bool {
	return r.Status == ValidationStatusValid
}

// CountByKind tallies conflicts and warnings per kind.
func (r ValidationReport) CountByKind() map[IssueKind]int {
	counts := make(map[IssueKind]int)
	for _, issue := range r.Conflicts {
		counts[issue.Kind]++
	}
	for _, issue := range r.Warnings {
		counts[issue.Kind]++
	}
	return counts
}

// WarningsOf returns the warnings of one kind.
func (r ValidationReport) WarningsOf(kind IssueKind) []Issue {
	out := make([]Issue, 0)
	for _, issue := range r.Warnings {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}

// ConflictsOf returns the conflicts of one kind.
func (r ValidationReport) ConflictsOf(kind IssueKind) []Issue {
	out := make([]Issue, 0)
	for _, issue := range r.Conflicts {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}
