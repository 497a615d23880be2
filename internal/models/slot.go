package models

import (
	"fmt"
	"time"
)

// SlotDefinition is one recurring entry of a slot grid. Times are HH:MM.
type SlotDefinition struct {
	Weekday         time.Weekday `json:"weekday"`
	StartTime       string       `json:"start_time"`
	EndTime         string       `json:"end_time"`
	DurationMinutes int          `json:"duration_minutes"`
}

// SlotPattern is the recurring grid of a cohort together with the number of
// grid cycles (weeks or encounters) each semester has. Build it with
// service.NewSlotPattern so its invariants hold.
type SlotPattern struct {
	CohortMode  CohortMode       `json:"cohort_mode"`
	Slots       []SlotDefinition `json:"slots"`
	Occurrences map[int]int      `json:"occurrences"`
}

// SessionMinutes is the uniform duration of the pattern's slots.
func (p SlotPattern) SessionMinutes() int {
	if len(p.Slots) == 0 {
		return 0
	}
	return p.Slots[0].DurationMinutes
}

// SlotInstance is one dated, bookable teaching occurrence.
type SlotInstance struct {
	Key        string         `json:"key"`
	Day        CalendarDay    `json:"day"`
	Slot       SlotDefinition `json:"slot"`
	Semester   int            `json:"semester"`
	Occurrence int            `json:"occurrence"`
}

// SlotKey builds the unique key of a slot instance.
func SlotKey(date time.Time, startTime string) string {
	return fmt.Sprintf("%s@%s", date.Format("2006-01-02"), startTime)
}
