package models

import "sort"

// RawDisciplineRow is an unvalidated catalog row as read from a source file.
type RawDisciplineRow struct {
	RowID      string `json:"row_id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Hours      string `json:"hours"`
	Encounters string `json:"encounters,omitempty"`
}

// Discipline is a normalised catalog entry.
type Discipline struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	RequiredHours float64 `json:"required_hours"`
	Position      int     `json:"position"`
}

// DisciplineCatalog is the result of normalising raw rows. Warnings hold the
// rows that were skipped.
type DisciplineCatalog struct {
	Disciplines []Discipline `json:"disciplines"`
	Warnings    []Issue      `json:"warnings"`
}

// LoadTier groups disciplines sharing the same hour requirement.
type LoadTier struct {
	Hours      float64  `json:"hours"`
	Count      int      `json:"count"`
	TotalHours float64  `json:"total_hours"`
	Codes      []string `json:"codes"`
}

// TotalHours sums the required hours of the catalog.
func (c DisciplineCatalog) TotalHours() float64 {
	var total float64
	for _, d := range c.Disciplines {
		total += d.RequiredHours
	}
	return total
}

// LoadTiers returns the catalog grouped by required hours, heaviest first.
func (c DisciplineCatalog) LoadTiers() []LoadTier {
	index := make(map[float64]int)
	tiers := make([]LoadTier, 0)
	for _, d := range c.Disciplines {
		i, ok := index[d.RequiredHours]
		if !ok {
			i = len(tiers)
			index[d.RequiredHours] = i
			tiers = append(tiers, LoadTier{Hours: d.RequiredHours})
		}
		tiers[i].Count++
		tiers[i].TotalHours += d.RequiredHours
		tiers[i].Codes = append(tiers[i].Codes, d.Code)
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Hours > tiers[j].Hours })
	return tiers
}
