package dto

import (
	"time"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
)

// DisciplineRowRequest is one raw catalog row supplied inline.
type DisciplineRowRequest struct {
	RowID      string `json:"rowId"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Hours      string `json:"hours"`
	Encounters string `json:"encounters"`
}

// GenerateTimetableRequest asks for one timetable proposal. When Disciplines
// is empty the course catalog configured in the plan is used. CapacityHours
// overrides the plan's semester ceiling; zero or negative disables the check.
type GenerateTimetableRequest struct {
	Course        string                 `json:"course" validate:"required"`
	Year          string                 `json:"year" validate:"required,numeric,len=4"`
	CohortMode    string                 `json:"cohortMode" validate:"required"`
	Semester      int                    `json:"semester" validate:"required,min=1,max=12"`
	StartDate     string                 `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string                 `json:"endDate" validate:"required,datetime=2006-01-02"`
	CapacityHours *float64               `json:"capacityHours,omitempty"`
	Disciplines   []DisciplineRowRequest `json:"disciplines" validate:"omitempty,dive"`
}

// CatalogOverview summarises the normalised catalog of a run.
type CatalogOverview struct {
	Disciplines int               `json:"disciplines"`
	TotalHours  float64           `json:"totalHours"`
	LoadTiers   []models.LoadTier `json:"loadTiers"`
}

// GenerateTimetableResponse returns a proposal kept in memory until saved or expired.
type GenerateTimetableResponse struct {
	ProposalID string                `json:"proposalId"`
	ExpiresAt  time.Time             `json:"expiresAt"`
	Catalog    CatalogOverview       `json:"catalog"`
	Envelope   models.ResultEnvelope `json:"envelope"`
}

// BatchGenerateRequest runs several generation requests independently.
type BatchGenerateRequest struct {
	Items []GenerateTimetableRequest `json:"items" validate:"required,min=1,max=64,dive"`
}

// ItemError reports why one batch item failed.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchItemResult carries either a proposal or the item's error.
type BatchItemResult struct {
	Index    int                        `json:"index"`
	Key      string                     `json:"key"`
	Proposal *GenerateTimetableResponse `json:"proposal,omitempty"`
	Error    *ItemError                 `json:"error,omitempty"`
}

// BatchGenerateResponse lists item results in request order.
type BatchGenerateResponse struct {
	Items     []BatchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// SaveTimetableRequest persists a proposal as a new draft version.
type SaveTimetableRequest struct {
	ProposalID string `json:"proposalId" validate:"required,uuid"`
}

// CalendarQuery previews a calendar for one cohort mode.
type CalendarQuery struct {
	Start string `form:"start" validate:"required,datetime=2006-01-02"`
	End   string `form:"end" validate:"required,datetime=2006-01-02"`
	Mode  string `form:"mode" validate:"required"`
}

// CalendarPreviewResponse is the calendar of a range with eligibility counts.
type CalendarPreviewResponse struct {
	CohortMode   models.CohortMode     `json:"cohortMode"`
	Start        string                `json:"start"`
	End          string                `json:"end"`
	EligibleDays int                   `json:"eligibleDays"`
	ExcludedDays map[string]int        `json:"excludedDays"`
	CalendarRef  string                `json:"calendarRef"`
	Holidays     models.HolidaySummary `json:"holidays"`
	Days         []models.CalendarDay  `json:"days"`
}

// CompareQuery names the two stored versions to diff.
type CompareQuery struct {
	From string `form:"from" validate:"required"`
	To   string `form:"to" validate:"required"`
}

// SessionMove is a discipline session that changed slot between versions.
type SessionMove struct {
	Number int    `json:"number"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// DisciplineDiff lists slot changes of one discipline.
type DisciplineDiff struct {
	DisciplineCode string        `json:"disciplineCode"`
	Added          []string      `json:"added"`
	Removed        []string      `json:"removed"`
	Moved          []SessionMove `json:"moved"`
}

// TimetableComparison contrasts two stored versions.
type TimetableComparison struct {
	FromID              string                  `json:"fromId"`
	ToID                string                  `json:"toId"`
	FromVersion         int                     `json:"fromVersion"`
	ToVersion           int                     `json:"toVersion"`
	FromStatus          models.ValidationStatus `json:"fromStatus"`
	ToStatus            models.ValidationStatus `json:"toStatus"`
	StatusChanged       bool                    `json:"statusChanged"`
	AllocatedHoursDelta float64                 `json:"allocatedHoursDelta"`
	SessionDelta        int                     `json:"sessionDelta"`
	ConflictDelta       int                     `json:"conflictDelta"`
	WarningDelta        int                     `json:"warningDelta"`
	CalendarChanged     bool                    `json:"calendarChanged"`
	Disciplines         []DisciplineDiff        `json:"disciplines"`
}

// PublishResponse acknowledges a publication.
type PublishResponse struct {
	Timetable  models.TimetableRecord `json:"timetable"`
	ArchivedID string                 `json:"archivedId,omitempty"`
	JobID      string                 `json:"jobId,omitempty"`
}

// ExportQuery selects an export format.
type ExportQuery struct {
	Format string `form:"format" validate:"required,oneof=csv pdf xlsx ics json"`
}
