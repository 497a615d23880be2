package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
)

func TestValidateDetectsStructuralConflicts(t *testing.T) {
	slots := mustSlots(t, 2)
	require.Len(t, slots, 4)
	disciplines := []models.Discipline{{Code: "A", Name: "A", RequiredHours: 100.0 / 60 * 2}}

	excluded := slots[1]
	excluded.Day.IsTeachingEligible = false
	excluded.Day.ExclusionReason = models.ExclusionHoliday
	excluded.Day.HolidayName = "Carnaval"
	slots[1] = excluded

	stray := slots[0]
	stray.Key = "2026-03-03@19:00"

	assignment := models.Assignment{Sessions: []models.Session{
		{Slot: slots[0], DisciplineCode: "A", Number: 1},
		{Slot: slots[0], DisciplineCode: "B", Number: 1},
		{Slot: slots[1], DisciplineCode: "A", Number: 2},
		{Slot: stray, DisciplineCode: "C", Number: 1},
	}}

	report := Validate(ValidationInput{
		Assignment:     assignment,
		Slots:          slots,
		Disciplines:    disciplines,
		SessionMinutes: 100,
	})

	assert.Equal(t, models.ValidationStatusInvalid, report.Status)
	require.Len(t, report.ConflictsOf(models.IssueDoubleBooked), 1)
	assert.Contains(t, report.ConflictsOf(models.IssueDoubleBooked)[0].Message, "A and B")
	holiday := report.ConflictsOf(models.IssueHolidayConflict)
	require.Len(t, holiday, 1)
	assert.Contains(t, holiday[0].Message, "Carnaval")
	assert.Len(t, report.ConflictsOf(models.IssueUnknownSlot), 1)
	assert.Empty(t, report.ConflictsOf(models.IssueCapacityExceeded))
}

func TestValidateUsesExpandedDayOverSessionCopy(t *testing.T) {
	slots := mustSlots(t, 1)
	stale := slots[0]
	slots[0].Day.IsTeachingEligible = false

	report := Validate(ValidationInput{
		Assignment:     models.Assignment{Sessions: []models.Session{{Slot: stale, DisciplineCode: "A", Number: 1}}},
		Slots:          slots,
		SessionMinutes: 100,
	})
	assert.Len(t, report.ConflictsOf(models.IssueHolidayConflict), 1)
}

func TestValidateOverallocationAndCarriedWarnings(t *testing.T) {
	slots := mustSlots(t, 16)
	disciplines := []models.Discipline{{Code: "ODD", Name: "Odd", RequiredHours: 41}}
	carried := []models.Issue{{Kind: models.IssueMalformedRow, RowID: "7", Message: "row 7"}}

	report := Validate(ValidationInput{
		Assignment:     Assign(slots, disciplines),
		Slots:          slots,
		Disciplines:    disciplines,
		CapacityHours:  64,
		SessionMinutes: 100,
		Carried:        carried,
	})

	assert.True(t, report.Valid())
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, models.IssueMalformedRow, report.Warnings[0].Kind)
	assert.Equal(t, models.IssueOverallocation, report.Warnings[1].Kind)
	assert.Equal(t, 25, report.HourSummary[0].AllocatedSessions)
	assert.Equal(t, 41.67, report.HourSummary[0].AllocatedHours)
	assert.Equal(t, 0.0, report.HourSummary[0].ShortfallHours)
	assert.Equal(t, map[models.IssueKind]int{models.IssueMalformedRow: 1, models.IssueOverallocation: 1}, report.CountByKind())
}

func TestValidateCapacityPerSemester(t *testing.T) {
	slots := mustSlots(t, 16)
	second := append([]models.SlotInstance(nil), slots[16:]...)
	for i := range second {
		second[i].Semester = 2
	}
	all := append(append([]models.SlotInstance(nil), slots[:16]...), second...)
	disciplines := []models.Discipline{{Code: "A", Name: "A", RequiredHours: 100.0 / 60 * 32}}

	report := Validate(ValidationInput{
		Assignment:     Assign(all, disciplines),
		Slots:          all,
		Disciplines:    disciplines,
		CapacityHours:  26.67,
		SessionMinutes: 100,
	})

	assert.True(t, report.Valid(), "16 sessions per semester fit in 26.67 h")

	report = Validate(ValidationInput{
		Assignment:     Assign(all, disciplines),
		Slots:          all,
		Disciplines:    disciplines,
		CapacityHours:  26,
		SessionMinutes: 100,
	})
	conflicts := report.ConflictsOf(models.IssueCapacityExceeded)
	require.Len(t, conflicts, 2)
	assert.Equal(t, 1, conflicts[0].Semester)
	assert.Equal(t, 2, conflicts[1].Semester)
}

func TestValidateReportsShortfallForExtremeHours(t *testing.T) {
	slots := mustSlots(t, 1)
	disciplines := []models.Discipline{
		{Code: "TINY", Name: "Tiny", RequiredHours: 0.001},
		{Code: "HUGE", Name: "Huge", RequiredHours: 1e20},
	}

	report := Validate(ValidationInput{
		Slots:          slots,
		Disciplines:    disciplines,
		CapacityHours:  1e20,
		SessionMinutes: 100,
	})

	assert.True(t, report.Valid())
	require.Len(t, report.Warnings, 2)
	for _, warning := range report.Warnings {
		assert.Equal(t, models.IssueHourShortfall, warning.Kind)
	}
	assert.Equal(t, 1, report.HourSummary[0].RequiredSessions)
	assert.Equal(t, 6000, report.HourSummary[1].RequiredSessions)
	assert.Empty(t, report.ConflictsOf(models.IssueCapacityExceeded))
}
