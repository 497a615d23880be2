package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

// MalformedRowError reports a catalog row that cannot be used. Normalisation
// turns it into a MalformedRow warning and skips the row.
type MalformedRowError struct {
	RowID  string
	Field  string
	Value  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("row %s: %s %q %s", e.RowID, e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match appErrors.ErrMalformedRow.
func (e *MalformedRowError) Unwrap() error {
	return appErrors.ErrMalformedRow
}

// NormalizeCatalog turns raw rows into disciplines. Rows without a usable
// name or code, or whose hour field is not a positive number, are skipped
// with a MalformedRow warning. Duplicate codes keep the first occurrence and
// add a DuplicateDiscipline warning, except that a code derived from a
// different name gets a numeric suffix instead. A catalog left with no
// discipline is fatal.
func NormalizeCatalog(rows []models.RawDisciplineRow) (models.DisciplineCatalog, error) {
	catalog := models.DisciplineCatalog{
		Disciplines: make([]models.Discipline, 0, len(rows)),
		Warnings:    make([]models.Issue, 0),
	}
	seen := make(map[string]string, len(rows))
	names := make(map[string]string, len(rows))

	for i, row := range rows {
		rowID := row.RowID
		if rowID == "" {
			rowID = strconv.Itoa(i + 1)
		}
		discipline, err := normalizeRow(rowID, row)
		if err != nil {
			catalog.Warnings = append(catalog.Warnings, models.Issue{
				Kind:    models.IssueMalformedRow,
				RowID:   rowID,
				Message: err.Error(),
			})
			continue
		}
		derived := strings.TrimSpace(row.Code) == ""
		if first, dup := seen[discipline.Code]; dup {
			if !derived || strings.EqualFold(names[discipline.Code], discipline.Name) {
				origin := ""
				if derived {
					origin = " (code derived from name)"
				}
				catalog.Warnings = append(catalog.Warnings, models.Issue{
					Kind:           models.IssueDuplicateDiscipline,
					RowID:          rowID,
					DisciplineCode: discipline.Code,
					Message: fmt.Sprintf("row %s repeats discipline %s%s first seen in row %s",
						rowID, discipline.Code, origin, first),
				})
				continue
			}
			discipline.Code = nextFreeCode(discipline.Code, seen)
		}
		seen[discipline.Code] = rowID
		names[discipline.Code] = discipline.Name
		discipline.Position = len(catalog.Disciplines)
		catalog.Disciplines = append(catalog.Disciplines, discipline)
	}

	if len(catalog.Disciplines) == 0 {
		return catalog, appErrors.Clone(appErrors.ErrEmptyCatalog,
			fmt.Sprintf("none of %d catalog rows is usable", len(rows)))
	}
	return catalog, nil
}

func normalizeRow(rowID string, row models.RawDisciplineRow) (models.Discipline, error) {
	name := strings.Join(strings.Fields(row.Name), " ")
	code := strings.ToUpper(strings.Join(strings.Fields(row.Code), ""))
	if code == "" {
		code = deriveCode(name)
	}
	if code == "" {
		return models.Discipline{}, &MalformedRowError{RowID: rowID, Field: "name", Value: row.Name, Reason: "has neither name nor code"}
	}
	if name == "" {
		name = code
	}
	hours, err := ParseHours(row.Hours)
	if err != nil {
		return models.Discipline{}, &MalformedRowError{RowID: rowID, Field: "hours", Value: row.Hours, Reason: "is not numeric"}
	}
	if hours <= 0 {
		return models.Discipline{}, &MalformedRowError{RowID: rowID, Field: "hours", Value: row.Hours, Reason: "must be positive"}
	}
	if hours > MaxRequiredHours {
		return models.Discipline{}, &MalformedRowError{RowID: rowID, Field: "hours", Value: row.Hours,
			Reason: fmt.Sprintf("exceeds %d hours", MaxRequiredHours)}
	}
	return models.Discipline{Code: code, Name: name, RequiredHours: hours}, nil
}

// ParseHours reads an hour figure such as "40", "40.5", "40,5" or "40h".
func ParseHours(raw string) (float64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimSuffix(strings.TrimSuffix(value, "horas"), "h")
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	if value == "" {
		return 0, fmt.Errorf("empty hour value")
	}
	hours, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return 0, fmt.Errorf("invalid hour value %q", raw)
	}
	return hours, nil
}

// deriveCode builds an upper-case acronym from a discipline name, skipping
// Portuguese connectives.
func deriveCode(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		switch strings.ToLower(word) {
		case "de", "da", "do", "das", "dos", "e", "em", "a", "o", "na", "no":
			continue
		}
		for _, r := range word {
			b.WriteString(strings.ToUpper(string(r)))
			break
		}
	}
	return b.String()
}

// MaxRequiredHours bounds the hour figure of a single catalog row.
const MaxRequiredHours = 10000

// nextFreeCode appends the smallest suffix from 2 up that is not taken yet.
func nextFreeCode(code string, taken map[string]string) string {
	for n := 2; ; n++ {
		candidate := code + strconv.Itoa(n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// RequiredSessionCount is the number of whole sessions needed to cover the
// discipline's hours, rounding any remainder up to one more session. Any
// positive requirement needs at least one session.
func RequiredSessionCount(d models.Discipline, slotDurationMinutes int) int {
	if slotDurationMinutes <= 0 || !(d.RequiredHours > 0) {
		return 0
	}
	minutes := requiredMinutes(d)
	return (minutes + slotDurationMinutes - 1) / slotDurationMinutes
}

// requiredMinutes rounds the requirement to whole minutes, never below one
// minute for positive hours and never above MaxRequiredHours.
func requiredMinutes(d models.Discipline) int {
	if !(d.RequiredHours > 0) {
		return 0
	}
	minutes := int(math.Round(math.Min(d.RequiredHours, MaxRequiredHours) * 60))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
