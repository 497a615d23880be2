package models

import (
	"strings"
	"time"
)

// CohortMode determines which weekdays and time grid a cohort uses.
type CohortMode string

const (
	CohortModeWeekly   CohortMode = "WEEKLY"
	CohortModeBiweekly CohortMode = "BIWEEKLY"
)

var cohortWeekdays = map[CohortMode][]time.Weekday{
	CohortModeWeekly:   {time.Monday, time.Wednesday},
	CohortModeBiweekly: {time.Friday, time.Saturday},
}

// ParseCohortMode accepts the English and Portuguese spellings used in plans
// and spreadsheets.
func ParseCohortMode(raw string) (CohortMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "weekly", "semanal":
		return CohortModeWeekly, true
	case "biweekly", "quinzenal":
		return CohortModeBiweekly, true
	}
	return "", false
}

// Valid reports whether m is a known cohort mode.
func (m CohortMode) Valid() bool {
	_, ok := cohortWeekdays[m]
	return ok
}

// Permits reports whether classes may fall on d.
func (m CohortMode) Permits(d time.Weekday) bool {
	for _, w := range cohortWeekdays[m] {
		if w == d {
			return true
		}
	}
	return false
}

// CycleWeeks is the length in weeks of one grid cycle: weekly cohorts meet
// every week, biweekly cohorts every other week.
func (m CohortMode) CycleWeeks() int {
	if m == CohortModeBiweekly {
		return 2
	}
	return 1
}
