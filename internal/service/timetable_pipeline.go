package service

import (
	"time"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
)

// PipelineInput is everything one generation run depends on. Runs sharing a
// holiday table or raw rows never modify them, so independent runs may
// execute concurrently.
type PipelineInput struct {
	Course        string
	Year          string
	Semester      int
	Start         time.Time
	End           time.Time
	Holidays      models.HolidayTable
	Pattern       models.SlotPattern
	CapacityHours float64
	Rows          []models.RawDisciplineRow
	GeneratedAt   time.Time
}

// PipelineResult keeps the intermediate values of a run next to its envelope.
type PipelineResult struct {
	Envelope models.ResultEnvelope
	Calendar []models.CalendarDay
	Slots    []models.SlotInstance
	Catalog  models.DisciplineCatalog
}

// RunPipeline builds the calendar, expands the slot grid, normalises the
// catalog, assigns sessions and validates the result. Invalid ranges, unknown
// semesters, broken patterns and empty catalogs abort the run; every other
// problem ends up in the envelope's report.
func RunPipeline(in PipelineInput) (*PipelineResult, error) {
	calendar, err := BuildCalendar(in.Start, in.End, in.Holidays, in.Pattern.CohortMode)
	if err != nil {
		return nil, err
	}
	slots, expansionWarnings, err := ExpandSlots(calendar, in.Pattern, in.Semester)
	if err != nil {
		return nil, err
	}
	catalog, err := NormalizeCatalog(in.Rows)
	if err != nil {
		return nil, err
	}

	assignment := Assign(slots, catalog.Disciplines)
	carried := make([]models.Issue, 0, len(catalog.Warnings)+len(expansionWarnings))
	carried = append(carried, catalog.Warnings...)
	carried = append(carried, expansionWarnings...)
	report := Validate(ValidationInput{
		Assignment:     assignment,
		Slots:          slots,
		Disciplines:    catalog.Disciplines,
		CapacityHours:  in.CapacityHours,
		SessionMinutes: in.Pattern.SessionMinutes(),
		Carried:        carried,
	})

	envelope := models.ResultEnvelope{
		Course:         in.Course,
		Year:           in.Year,
		CohortMode:     in.Pattern.CohortMode,
		Semester:       in.Semester,
		CalendarRef:    CalendarReference(calendar),
		CalendarStart:  dateOnly(in.Start),
		CalendarEnd:    dateOnly(in.End),
		SessionMinutes: in.Pattern.SessionMinutes(),
		SlotCount:      len(slots),
		Assignment:     assignment,
		Report:         report,
		GeneratedAt:    in.GeneratedAt.UTC(),
	}

	return &PipelineResult{Envelope: envelope, Calendar: calendar, Slots: slots, Catalog: catalog}, nil
}
