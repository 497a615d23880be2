package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dayOf(t *testing.T, days []models.CalendarDay, when time.Time) models.CalendarDay {
	t.Helper()
	for _, d := range days {
		if d.Date.Equal(when) {
			return d
		}
	}
	t.Fatalf("date %s not in calendar", when.Format(dateLayout))
	return models.CalendarDay{}
}

func TestBuildCalendarRejectsInvertedRange(t *testing.T) {
	_, err := BuildCalendar(date(2026, 3, 10), date(2026, 3, 1), models.NewHolidayTable(), models.CohortModeWeekly)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidRange)
}

func TestBuildCalendarSingleDay(t *testing.T) {
	days, err := BuildCalendar(date(2026, 3, 2), date(2026, 3, 2), models.NewHolidayTable(), models.CohortModeWeekly)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.True(t, days[0].IsTeachingEligible)
}

func TestBuildCalendarWeekendDependsOnMode(t *testing.T) {
	holidays := models.NewHolidayTable()
	start, end := date(2026, 3, 2), date(2026, 3, 8)

	weekly, err := BuildCalendar(start, end, holidays, models.CohortModeWeekly)
	require.NoError(t, err)
	require.Len(t, weekly, 7)

	saturday := dayOf(t, weekly, date(2026, 3, 7))
	assert.Equal(t, models.ExclusionWeekend, saturday.ExclusionReason)
	assert.False(t, saturday.IsTeachingEligible)

	tuesday := dayOf(t, weekly, date(2026, 3, 3))
	assert.Equal(t, models.ExclusionNone, tuesday.ExclusionReason)
	assert.False(t, tuesday.IsTeachingEligible, "tuesday is not a weekly teaching day")
	assert.True(t, dayOf(t, weekly, date(2026, 3, 2)).IsTeachingEligible)
	assert.True(t, dayOf(t, weekly, date(2026, 3, 4)).IsTeachingEligible)

	biweekly, err := BuildCalendar(start, end, holidays, models.CohortModeBiweekly)
	require.NoError(t, err)
	saturday = dayOf(t, biweekly, date(2026, 3, 7))
	assert.Equal(t, models.ExclusionNone, saturday.ExclusionReason)
	assert.True(t, saturday.IsTeachingEligible)
	assert.Equal(t, models.ExclusionWeekend, dayOf(t, biweekly, date(2026, 3, 8)).ExclusionReason)
	assert.False(t, dayOf(t, biweekly, date(2026, 3, 2)).IsTeachingEligible)
}

func TestBuildCalendarHolidaysExcludeEveryMode(t *testing.T) {
	holidays := models.NewHolidayTable()
	holidays.AddMandatory(models.HolidayKey{Day: 21, Month: time.April}, "Tiradentes")
	holidays.AddOptional(models.HolidayKey{Day: 4, Month: time.June}, "Corpus Christi")
	holidays.AddOptional(models.HolidayKey{Day: 21, Month: time.April}, "ignored")

	weekly, err := BuildCalendar(date(2026, 4, 20), date(2026, 6, 5), holidays, models.CohortModeWeekly)
	require.NoError(t, err)

	tiradentes := dayOf(t, weekly, date(2026, 4, 21))
	assert.Equal(t, models.ExclusionHoliday, tiradentes.ExclusionReason)
	assert.Equal(t, "Tiradentes", tiradentes.HolidayName)

	holidays.AddMandatory(models.HolidayKey{Day: 3, Month: time.June}, "Recesso")
	biweekly, err := BuildCalendar(date(2026, 6, 1), date(2026, 6, 6), holidays, models.CohortModeBiweekly)
	require.NoError(t, err)
	corpus := dayOf(t, biweekly, date(2026, 6, 4))
	assert.Equal(t, models.ExclusionOptionalHoliday, corpus.ExclusionReason)
	assert.False(t, corpus.IsTeachingEligible)

	weekly, err = BuildCalendar(date(2026, 6, 1), date(2026, 6, 6), holidays, models.CohortModeWeekly)
	require.NoError(t, err)
	wednesday := dayOf(t, weekly, date(2026, 6, 3))
	assert.Equal(t, models.ExclusionHoliday, wednesday.ExclusionReason)
	assert.False(t, wednesday.IsTeachingEligible)
}

func TestBuildCalendarIgnoresClockComponent(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	days, err := BuildCalendar(time.Date(2026, 3, 2, 22, 30, 0, 0, loc), time.Date(2026, 3, 4, 1, 0, 0, 0, loc), models.NewHolidayTable(), models.CohortModeWeekly)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, date(2026, 3, 2), days[0].Date)
}

func TestCalendarReferenceIsContentHash(t *testing.T) {
	holidays := models.NewHolidayTable()
	a, err := BuildCalendar(date(2026, 3, 1), date(2026, 3, 31), holidays, models.CohortModeWeekly)
	require.NoError(t, err)
	b, err := BuildCalendar(date(2026, 3, 1), date(2026, 3, 31), holidays, models.CohortModeWeekly)
	require.NoError(t, err)
	assert.Equal(t, CalendarReference(a), CalendarReference(b))

	holidays.AddMandatory(models.HolidayKey{Day: 2, Month: time.March}, "Feriado municipal")
	c, err := BuildCalendar(date(2026, 3, 1), date(2026, 3, 31), holidays, models.CohortModeWeekly)
	require.NoError(t, err)
	assert.NotEqual(t, CalendarReference(a), CalendarReference(c))
	assert.Len(t, CalendarReference(c), 64)
}
