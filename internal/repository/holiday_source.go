package repository

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
)

var (
	holidayDatePattern = regexp.MustCompile(`^(\d{1,2})[º°]?\s+de\s+(\p{L}+)`)
	holidayNamePattern = regexp.MustCompile(`,\s*([^(]+?)\s*\(`)

	portugueseMonths = map[string]time.Month{
		"janeiro": time.January, "fevereiro": time.February, "março": time.March, "marco": time.March,
		"abril": time.April, "maio": time.May, "junho": time.June, "julho": time.July,
		"agosto": time.August, "setembro": time.September, "outubro": time.October,
		"novembro": time.November, "dezembro": time.December,
	}
)

// HolidayParseResult is a parsed holiday table plus the number of lines or
// events that could not be used.
type HolidayParseResult struct {
	Table   models.HolidayTable
	Skipped int
}

// ParseHolidayText reads the secretariat's holiday list. The first line is a
// header; each following line looks like
//
//	21 de abril - terça-feira, Tiradentes (feriado nacional);
//
// Lines mentioning "ponto facultativo" are optional days, every other line a
// mandatory holiday.
func ParseHolidayText(r io.Reader) (HolidayParseResult, error) {
	result := HolidayParseResult{Table: models.NewHolidayTable()}
	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if header {
			header = false
			continue
		}
		if line == "" {
			continue
		}
		key, name, optional, ok := parseHolidayLine(line)
		if !ok {
			result.Skipped++
			continue
		}
		if optional {
			result.Table.AddOptional(key, name)
		} else {
			result.Table.AddMandatory(key, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read holiday list: %w", err)
	}
	return result, nil
}

func parseHolidayLine(line string) (models.HolidayKey, string, bool, bool) {
	match := holidayDatePattern.FindStringSubmatch(line)
	if match == nil {
		return models.HolidayKey{}, "", false, false
	}
	day, err := strconv.Atoi(match[1])
	if err != nil {
		return models.HolidayKey{}, "", false, false
	}
	month, ok := portugueseMonths[strings.ToLower(match[2])]
	if !ok || !validDay(day, month) {
		return models.HolidayKey{}, "", false, false
	}

	name := "Feriado"
	if m := holidayNamePattern.FindStringSubmatch(line); m != nil {
		name = strings.TrimSpace(m[1])
	}
	optional := strings.Contains(strings.ToLower(line), "ponto facultativo")
	return models.HolidayKey{Day: day, Month: month}, name, optional, true
}

// validDay accepts 29 February since tables are not tied to a year.
func validDay(day int, month time.Month) bool {
	if day < 1 {
		return false
	}
	return day <= time.Date(2024, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseHolidayICS reads VEVENTs from an iCalendar feed. The summary is the
// holiday name; a summary, description or category mentioning "facultativo"
// or "optional" marks an optional day. Multi-day events cover every date up
// to, but excluding, DTEND.
func ParseHolidayICS(r io.Reader) (HolidayParseResult, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return HolidayParseResult{}, fmt.Errorf("parse holiday calendar: %w", err)
	}

	result := HolidayParseResult{Table: models.NewHolidayTable()}
	for _, event := range cal.Events() {
		name := propertyValue(event, ics.ComponentPropertySummary)
		start, err := icsDate(event, ics.ComponentPropertyDtStart)
		if err != nil || name == "" {
			result.Skipped++
			continue
		}
		end, err := icsDate(event, ics.ComponentPropertyDtEnd)
		if err != nil || !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}

		marker := strings.ToLower(name + " " +
			propertyValue(event, ics.ComponentPropertyDescription) + " " +
			propertyValue(event, ics.ComponentPropertyCategories))
		optional := strings.Contains(marker, "facultativo") || strings.Contains(marker, "optional")

		for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
			if optional {
				result.Table.AddOptional(models.KeyOf(d), name)
			} else {
				result.Table.AddMandatory(models.KeyOf(d), name)
			}
		}
	}
	return result, nil
}

func propertyValue(event *ics.VEvent, prop ics.ComponentProperty) string {
	p := event.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

func icsDate(event *ics.VEvent, prop ics.ComponentProperty) (time.Time, error) {
	raw := propertyValue(event, prop)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s", prop)
	}
	for _, layout := range []string{"20060102", "20060102T150405Z", "20060102T150405"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported %s value %q", prop, raw)
}

// DefaultHolidayTable carries the national holidays and optional days
// published for 2026.
func DefaultHolidayTable() models.HolidayTable {
	table := models.NewHolidayTable()
	mandatory := []struct {
		day   int
		month time.Month
		name  string
	}{
		{1, time.January, "Confraternização Universal"},
		{3, time.April, "Sexta-feira Santa"},
		{21, time.April, "Tiradentes"},
		{1, time.May, "Dia Mundial do Trabalho"},
		{7, time.September, "Independência do Brasil"},
		{12, time.October, "Nossa Senhora Aparecida"},
		{2, time.November, "Finados"},
		{15, time.November, "Proclamação da República"},
		{20, time.November, "Dia da Consciência Negra"},
		{25, time.December, "Natal"},
	}
	optional := []struct {
		day   int
		month time.Month
		name  string
	}{
		{2, time.January, "Ponto Facultativo"},
		{16, time.February, "Carnaval"},
		{17, time.February, "Carnaval"},
		{18, time.February, "Quarta-feira de Cinzas"},
		{2, time.April, "Quinta-feira Santa"},
		{20, time.April, "Ponto Facultativo"},
		{4, time.June, "Corpus Christi"},
		{5, time.June, "Ponto Facultativo"},
		{15, time.August, "Assunção de Nossa Senhora"},
		{30, time.October, "Dia do Servidor Público"},
		{7, time.December, "Ponto Facultativo"},
		{8, time.December, "Imaculada Conceição"},
		{24, time.December, "Ponto Facultativo"},
		{31, time.December, "Ponto Facultativo"},
	}
	for _, h := range mandatory {
		table.AddMandatory(models.HolidayKey{Day: h.day, Month: h.month}, h.name)
	}
	for _, h := range optional {
		table.AddOptional(models.HolidayKey{Day: h.day, Month: h.month}, h.name)
	}
	return table
}

// LoadHolidayTable reads one or more comma-separated holiday files, choosing
// the parser by extension (.ics for iCalendar, anything else as the text
// list), and merges them in order. An empty value yields DefaultHolidayTable.
func LoadHolidayTable(paths string) (HolidayParseResult, error) {
	merged := HolidayParseResult{Table: models.NewHolidayTable()}
	loaded := 0
	for _, path := range strings.Split(paths, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		result, err := loadHolidayFile(path)
		if err != nil {
			return HolidayParseResult{}, err
		}
		merged.Table.Merge(result.Table)
		merged.Skipped += result.Skipped
		loaded++
	}
	if loaded == 0 {
		return HolidayParseResult{Table: DefaultHolidayTable()}, nil
	}
	return merged, nil
}

func loadHolidayFile(path string) (HolidayParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return HolidayParseResult{}, fmt.Errorf("open holiday file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	if strings.EqualFold(filepath.Ext(path), ".ics") {
		return ParseHolidayICS(file)
	}
	return ParseHolidayText(file)
}
