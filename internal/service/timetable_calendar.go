package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

// maxCalendarDays bounds a single run to roughly ten years of dates.
const maxCalendarDays = 3660

// BuildCalendar classifies every date in [start, end] for the given cohort
// mode. Holidays exclude a date for every mode; weekends depend on the mode
// because biweekly cohorts teach on Saturdays. Only dates whose weekday the
// mode permits and that carry no exclusion are teaching eligible.
func BuildCalendar(start, end time.Time, holidays models.HolidayTable, mode models.CohortMode) ([]models.CalendarDay, error) {
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange,
			fmt.Sprintf("end date %s precedes start date %s", end.Format(dateLayout), start.Format(dateLayout)))
	}
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown cohort mode %q", mode))
	}
	span := int(end.Sub(start).Hours()/24) + 1
	if span > maxCalendarDays {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, fmt.Sprintf("range of %d days exceeds %d", span, maxCalendarDays))
	}

	days := make([]models.CalendarDay, 0, span)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		reason, name := classifyDate(d, holidays, mode)
		days = append(days, models.CalendarDay{
			Date:               d,
			IsTeachingEligible: reason == models.ExclusionNone && mode.Permits(d.Weekday()),
			ExclusionReason:    reason,
			HolidayName:        name,
		})
	}
	return days, nil
}

func classifyDate(d time.Time, holidays models.HolidayTable, mode models.CohortMode) (models.ExclusionReason, string) {
	if reason, name := holidays.Lookup(d); reason != models.ExclusionNone {
		return reason, name
	}
	switch d.Weekday() {
	case time.Sunday:
		return models.ExclusionWeekend, ""
	case time.Saturday:
		if !mode.Permits(time.Saturday) {
			return models.ExclusionWeekend, ""
		}
	}
	return models.ExclusionNone, ""
}

// CalendarReference fingerprints a calendar so an envelope can point at the
// exact snapshot it was generated from.
func CalendarReference(days []models.CalendarDay) string {
	h := sha256.New()
	for _, d := range days {
		fmt.Fprintf(h, "%s|%s|%t\n", d.Date.Format(dateLayout), d.ExclusionReason, d.IsTeachingEligible)
	}
	return hex.EncodeToString(h.Sum(nil))
}

const dateLayout = "2006-01-02"

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// isoWeekStart returns the Monday of the week containing t.
func isoWeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return dateOnly(t).AddDate(0, 0, -offset)
}
