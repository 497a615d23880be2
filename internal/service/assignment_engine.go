package service

import (
	"sort"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
)

// AllocationOrder returns disciplines sorted by descending required hours,
// breaking ties by catalog position.
func AllocationOrder(disciplines []models.Discipline) []models.Discipline {
	ordered := append([]models.Discipline(nil), disciplines...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].RequiredHours != ordered[j].RequiredHours {
			return ordered[i].RequiredHours > ordered[j].RequiredHours
		}
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

// Assign books slot instances for each discipline in allocation order. A
// single cursor walks the chronologically ordered slots and never rewinds, so
// no slot is booked twice. Disciplines reached after the slots run out get
// fewer sessions than required; the validator reports the shortfall.
func Assign(slots []models.SlotInstance, disciplines []models.Discipline) models.Assignment {
	assignment := models.Assignment{
		Sessions:  make([]models.Session, 0, len(slots)),
		FreeSlots: make([]string, 0),
	}

	cursor := 0
	for _, d := range AllocationOrder(disciplines) {
		if cursor >= len(slots) {
			break
		}
		need := RequiredSessionCount(d, slots[cursor].Slot.DurationMinutes)
		for n := 1; n <= need && cursor < len(slots); n++ {
			assignment.Sessions = append(assignment.Sessions, models.Session{
				Slot:           slots[cursor],
				DisciplineCode: d.Code,
				DisciplineName: d.Name,
				Number:         n,
			})
			cursor++
		}
	}

	for _, slot := range slots[cursor:] {
		assignment.FreeSlots = append(assignment.FreeSlots, slot.Key)
	}
	return assignment
}
