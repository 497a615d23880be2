package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
)

// ValidationInput gathers what Validate checks an assignment against.
// SessionMinutes is the slot pattern's duration; it is required even when no
// slot instance exists so that shortfalls can still be computed. A
// non-positive CapacityHours disables the capacity check. Carried holds
// warnings raised earlier in the run (catalog and expansion) so the report is
// complete.
type ValidationInput struct {
	Assignment     models.Assignment
	Slots          []models.SlotInstance
	Disciplines    []models.Discipline
	CapacityHours  float64
	SessionMinutes int
	Carried        []models.Issue
}

// Validate re-checks an assignment and summarises hour coverage. Structural
// problems (double booking, excluded dates, slots outside the expansion,
// capacity overrun) are conflicts; coverage problems are warnings. The report
// is invalid iff it holds a conflict.
func Validate(in ValidationInput) models.ValidationReport {
	report := models.ValidationReport{
		Conflicts:     make([]models.Issue, 0),
		Warnings:      append(make([]models.Issue, 0, len(in.Carried)), in.Carried...),
		HourSummary:   make([]models.HourSummary, 0, len(in.Disciplines)),
		CapacityHours: in.CapacityHours,
	}

	known := make(map[string]models.SlotInstance, len(in.Slots))
	for _, slot := range in.Slots {
		known[slot.Key] = slot
	}

	booked := make(map[string]string, len(in.Assignment.Sessions))
	allocatedSessions := make(map[string]int)
	minutesBySemester := make(map[int]int)
	totalMinutes := 0

	for _, session := range in.Assignment.Sessions {
		key := session.Slot.Key
		if owner, dup := booked[key]; dup {
			report.Conflicts = append(report.Conflicts, models.Issue{
				Kind:           models.IssueDoubleBooked,
				SlotKey:        key,
				DisciplineCode: session.DisciplineCode,
				Message:        fmt.Sprintf("slot %s booked for %s and %s", key, owner, session.DisciplineCode),
			})
		} else {
			booked[key] = session.DisciplineCode
		}

		day := session.Slot.Day
		slot, ok := known[key]
		if !ok {
			report.Conflicts = append(report.Conflicts, models.Issue{
				Kind:           models.IssueUnknownSlot,
				SlotKey:        key,
				DisciplineCode: session.DisciplineCode,
				Message:        fmt.Sprintf("slot %s is not part of the expanded slot grid", key),
			})
		} else {
			day = slot.Day
		}
		if !day.IsTeachingEligible {
			report.Conflicts = append(report.Conflicts, models.Issue{
				Kind:           models.IssueHolidayConflict,
				SlotKey:        key,
				DisciplineCode: session.DisciplineCode,
				Message:        fmt.Sprintf("%s booked on excluded date %s (%s)", session.DisciplineCode, day.Date.Format(dateLayout), exclusionLabel(day)),
			})
		}

		minutes := session.Slot.Slot.DurationMinutes
		if minutes <= 0 {
			minutes = in.SessionMinutes
		}
		allocatedSessions[session.DisciplineCode]++
		minutesBySemester[session.Slot.Semester] += minutes
		totalMinutes += minutes
	}

	capacityMinutes := math.Round(in.CapacityHours * 60)
	if capacityMinutes > 0 {
		semesters := make([]int, 0, len(minutesBySemester))
		for semester := range minutesBySemester {
			semesters = append(semesters, semester)
		}
		sort.Ints(semesters)
		for _, semester := range semesters {
			if used := minutesBySemester[semester]; float64(used) > capacityMinutes {
				report.Conflicts = append(report.Conflicts, models.Issue{
					Kind:     models.IssueCapacityExceeded,
					Semester: semester,
					Message: fmt.Sprintf("semester %d allocates %s h, above the %s h capacity",
						semester, formatHours(minutesToHours(used)), formatHours(in.CapacityHours)),
				})
			}
		}
	}

	for _, d := range in.Disciplines {
		required := RequiredSessionCount(d, in.SessionMinutes)
		allocated := allocatedSessions[d.Code]
		allocatedHours := minutesToHours(allocated * in.SessionMinutes)
		summary := models.HourSummary{
			DisciplineCode:    d.Code,
			DisciplineName:    d.Name,
			RequiredHours:     d.RequiredHours,
			RequiredSessions:  required,
			AllocatedSessions: allocated,
			AllocatedHours:    allocatedHours,
			ShortfallHours:    math.Max(0, roundHours(d.RequiredHours-allocatedHours)),
		}
		report.HourSummary = append(report.HourSummary, summary)

		switch {
		case allocated < required:
			report.Warnings = append(report.Warnings, models.Issue{
				Kind:           models.IssueHourShortfall,
				DisciplineCode: d.Code,
				Message: fmt.Sprintf("%s has %d of %d sessions (%s h short)",
					d.Code, allocated, required, formatHours(summary.ShortfallHours)),
			})
		case allocated*in.SessionMinutes > requiredMinutes(d):
			report.Warnings = append(report.Warnings, models.Issue{
				Kind:           models.IssueOverallocation,
				DisciplineCode: d.Code,
				Message: fmt.Sprintf("%s needs %s h but %d sessions give %s h",
					d.Code, formatHours(d.RequiredHours), allocated, formatHours(allocatedHours)),
			})
		}
	}

	report.AllocatedHours = minutesToHours(totalMinutes)
	report.Status = models.ValidationStatusValid
	if len(report.Conflicts) > 0 {
		report.Status = models.ValidationStatusInvalid
	}
	return report
}

func exclusionLabel(day models.CalendarDay) string {
	if day.HolidayName != "" {
		return day.HolidayName
	}
	if day.ExclusionReason == models.ExclusionNone {
		return "not a teaching weekday"
	}
	return string(day.ExclusionReason)
}

func minutesToHours(minutes int) float64 {
	return roundHours(float64(minutes) / 60)
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

func formatHours(h float64) string {
	return fmt.Sprintf("%g", roundHours(h))
}
