package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "domingo": time.Sunday,
	"monday": time.Monday, "segunda": time.Monday, "segunda-feira": time.Monday,
	"tuesday": time.Tuesday, "terca": time.Tuesday, "terça": time.Tuesday, "terça-feira": time.Tuesday,
	"wednesday": time.Wednesday, "quarta": time.Wednesday, "quarta-feira": time.Wednesday,
	"thursday": time.Thursday, "quinta": time.Thursday, "quinta-feira": time.Thursday,
	"friday": time.Friday, "sexta": time.Friday, "sexta-feira": time.Friday,
	"saturday": time.Saturday, "sabado": time.Saturday, "sábado": time.Saturday,
}

// ParseWeekday accepts English or Portuguese weekday names.
func ParseWeekday(raw string) (time.Weekday, error) {
	if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return d, nil
	}
	return 0, appErrors.Clone(appErrors.ErrInvalidPattern, fmt.Sprintf("unknown weekday %q", raw))
}

// NewSlotPattern validates and normalises a slot grid. Slots are sorted by
// weekday (Monday first) and start time; every weekday must be permitted by
// the cohort mode, and all slots must share one duration.
func NewSlotPattern(mode models.CohortMode, slots []models.SlotDefinition, occurrences map[int]int) (models.SlotPattern, error) {
	if !mode.Valid() {
		return models.SlotPattern{}, invalidPattern("unknown cohort mode %q", mode)
	}
	if len(slots) == 0 {
		return models.SlotPattern{}, invalidPattern("slot pattern for %s has no slots", mode)
	}
	if len(occurrences) == 0 {
		return models.SlotPattern{}, invalidPattern("slot pattern for %s has no semesters", mode)
	}

	normalised := make([]models.SlotDefinition, 0, len(slots))
	duration := 0
	for _, slot := range slots {
		if !mode.Permits(slot.Weekday) {
			return models.SlotPattern{}, invalidPattern("%s is not a teaching day for %s cohorts", slot.Weekday, mode)
		}
		start, err := parseClock(slot.StartTime)
		if err != nil {
			return models.SlotPattern{}, err
		}
		end, err := parseClock(slot.EndTime)
		if err != nil {
			return models.SlotPattern{}, err
		}
		if end <= start {
			return models.SlotPattern{}, invalidPattern("slot %s %s-%s ends before it starts", slot.Weekday, slot.StartTime, slot.EndTime)
		}
		length := end - start
		if slot.DurationMinutes != 0 && slot.DurationMinutes != length {
			return models.SlotPattern{}, invalidPattern("slot %s %s-%s declares %d minutes but spans %d",
				slot.Weekday, slot.StartTime, slot.EndTime, slot.DurationMinutes, length)
		}
		if duration == 0 {
			duration = length
		} else if length != duration {
			return models.SlotPattern{}, invalidPattern("slot %s %s-%s lasts %d minutes, expected %d",
				slot.Weekday, slot.StartTime, slot.EndTime, length, duration)
		}
		normalised = append(normalised, models.SlotDefinition{
			Weekday:         slot.Weekday,
			StartTime:       formatClock(start),
			EndTime:         formatClock(end),
			DurationMinutes: length,
		})
	}

	sort.SliceStable(normalised, func(i, j int) bool {
		wi, wj := isoWeekday(normalised[i].Weekday), isoWeekday(normalised[j].Weekday)
		if wi != wj {
			return wi < wj
		}
		return normalised[i].StartTime < normalised[j].StartTime
	})
	for i := 1; i < len(normalised); i++ {
		prev, cur := normalised[i-1], normalised[i]
		if prev.Weekday == cur.Weekday && cur.StartTime < prev.EndTime {
			return models.SlotPattern{}, invalidPattern("slots %s %s and %s overlap", cur.Weekday, prev.StartTime, cur.StartTime)
		}
	}

	counts := make(map[int]int, len(occurrences))
	for semester, count := range occurrences {
		if semester <= 0 || count <= 0 {
			return models.SlotPattern{}, invalidPattern("semester %d must have a positive occurrence count, got %d", semester, count)
		}
		counts[semester] = count
	}

	return models.SlotPattern{CohortMode: mode, Slots: normalised, Occurrences: counts}, nil
}

// ExpandSlots intersects the calendar with the pattern and returns the
// semester's slot instances, strictly ordered by date then start time. The
// calendar is walked in cycles (one week for weekly cohorts, two weeks
// anchored at the calendar's first week for biweekly cohorts, whose encounter
// falls in the first week of each cycle). Expansion stops once the semester's
// occurrence count is reached; a calendar that runs out first yields a
// CalendarExhausted warning.
func ExpandSlots(calendar []models.CalendarDay, pattern models.SlotPattern, semester int) ([]models.SlotInstance, []models.Issue, error) {
	target, ok := pattern.Occurrences[semester]
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidSemester,
			fmt.Sprintf("semester %d is not configured for %s cohorts", semester, pattern.CohortMode))
	}

	days := append([]models.CalendarDay(nil), calendar...)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	byWeekday := make(map[time.Weekday][]models.SlotDefinition)
	for _, slot := range pattern.Slots {
		byWeekday[slot.Weekday] = append(byWeekday[slot.Weekday], slot)
	}

	cycleWeeks := pattern.CohortMode.CycleWeeks()
	instances := make([]models.SlotInstance, 0, target*len(pattern.Slots))
	occurrences := 0
	currentCycle := -1
	var anchor time.Time
	if len(days) > 0 {
		anchor = isoWeekStart(days[0].Date)
	}

	for _, day := range days {
		if !day.IsTeachingEligible {
			continue
		}
		defs := byWeekday[day.Date.Weekday()]
		if len(defs) == 0 {
			continue
		}
		week := int(isoWeekStart(day.Date).Sub(anchor).Hours() / (24 * 7))
		if week%cycleWeeks != 0 {
			continue
		}
		if cycle := week / cycleWeeks; cycle != currentCycle {
			if occurrences == target {
				break
			}
			occurrences++
			currentCycle = cycle
		}
		for _, def := range defs {
			instances = append(instances, models.SlotInstance{
				Key:        models.SlotKey(day.Date, def.StartTime),
				Day:        day,
				Slot:       def,
				Semester:   semester,
				Occurrence: occurrences,
			})
		}
	}

	var warnings []models.Issue
	if occurrences < target {
		warnings = append(warnings, models.Issue{
			Kind:     models.IssueCalendarExhausted,
			Semester: semester,
			Message: fmt.Sprintf("calendar exhausted after %d of %d %s occurrences in semester %d",
				occurrences, target, strings.ToLower(string(pattern.CohortMode)), semester),
		})
	}
	return instances, warnings, nil
}

func invalidPattern(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrInvalidPattern, fmt.Sprintf(format, args...))
}

// parseClock converts HH:MM into minutes after midnight.
func parseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, invalidPattern("time %q is not HH:MM", raw)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, invalidPattern("time %q is not HH:MM", raw)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func isoWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}
