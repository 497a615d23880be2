package models

// Session books one slot instance for one discipline. Number counts the
// discipline's sessions from 1.
type Session struct {
	Slot           SlotInstance `json:"slot"`
	DisciplineCode string       `json:"discipline_code"`
	DisciplineName string       `json:"discipline_name"`
	Number         int          `json:"number"`
}

// Assignment maps slot instances to at most one discipline each. Sessions are
// in slot order; FreeSlots lists the keys of slot instances left unassigned.
type Assignment struct {
	Sessions  []Session `json:"sessions"`
	FreeSlots []string  `json:"free_slots"`
}

// SessionsFor returns the sessions booked for a discipline, in slot order.
func (a Assignment) SessionsFor(code string) []Session {
	out := make([]Session, 0)
	for _, s := range a.Sessions {
		if s.DisciplineCode == code {
			out = append(out, s)
		}
	}
	return out
}

