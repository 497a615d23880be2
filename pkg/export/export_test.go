package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Date", "Code", "Discipline"},
		Rows: []map[string]string{
			{"Date": "2026-03-02", "Code": "MPC", "Discipline": "Metodologia da Pesquisa Científica"},
			{"Date": "2026-03-04", "Code": "CRI", "Discipline": "Criminologia; Teoria"},
		},
		Weights: []float64{1, 1, 4},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter(0).Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Code,Discipline", lines[0])
	assert.Equal(t, "2026-03-04,CRI,Criminologia; Teoria", lines[2])
}

func TestCSVExporterSemicolonQuotesFields(t *testing.T) {
	out, err := NewCSVExporter(';').Render(sampleDataset())
	require.NoError(t, err)
	assert.Contains(t, string(out), `2026-03-04;CRI;"Criminologia; Teoria"`)
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter(0).Render(Dataset{})
	assert.Error(t, err)
}

func TestDatasetWidthsNormalise(t *testing.T) {
	widths := sampleDataset().widths(60)
	assert.InDeltaSlice(t, []float64{10, 10, 40}, widths, 0.001)

	even := Dataset{Headers: []string{"a", "b"}}.widths(10)
	assert.InDeltaSlice(t, []float64{5, 5}, even, 0.001)
}

func TestPDFExporterRender(t *testing.T) {
	doc := Document{
		Title:   "Criminologia 2026",
		Summary: []string{"Status: VALID", "Sessions: 24"},
		Tables:  []Table{{Caption: "Sessions", Data: sampleDataset()}},
	}
	out, err := NewPDFExporter().Render(doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterPaginatesLongTables(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 120; i++ {
		data.Rows = append(data.Rows, map[string]string{"Date": "2026-04-01", "Code": "X", "Discipline": "Row"})
	}
	out, err := NewPDFExporter().Render(Document{Title: "Long", Tables: []Table{{Data: data}}, Landscape: true})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestPDFExporterRequiresTables(t *testing.T) {
	_, err := NewPDFExporter().Render(Document{Title: "Empty"})
	assert.Error(t, err)
}

func TestXLSXExporterRender(t *testing.T) {
	doc := Document{
		Title:   "Criminologia 2026",
		Summary: []string{"Status: VALID"},
		Tables: []Table{
			{Caption: "Sessions", Data: sampleDataset()},
			{Caption: "Hours/Summary", Data: Dataset{Headers: []string{"Code", "Required"}, Rows: []map[string]string{{"Code": "MPC", "Required": "40"}}}},
		},
	}
	out, err := NewXLSXExporter().Render(doc)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Sessions", "Hours-Summary"}, f.GetSheetList())
	title, err := f.GetCellValue("Sessions", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Criminologia 2026", title)

	header, err := f.GetCellValue("Sessions", "C4")
	require.NoError(t, err)
	assert.Equal(t, "Discipline", header)
	code, err := f.GetCellValue("Sessions", "B6")
	require.NoError(t, err)
	assert.Equal(t, "CRI", code)
}

func TestSheetNameDeduplicatesAndTruncates(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "Semester 1", sheetName("Semester 1", 0, used))
	assert.Equal(t, "Semester 1 (2)", sheetName("Semester 1", 1, used))
	assert.Equal(t, "Sheet3", sheetName("  ", 2, used))
	long := sheetName(strings.Repeat("x", 40), 3, used)
	assert.Len(t, long, maxSheetName)
}

func TestICSExporterRender(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	stamp := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	exporter := NewICSExporter("", func() time.Time { return stamp })

	out, err := exporter.Render(Calendar{
		Name: "Criminologia 2026",
		Events: []Event{{
			UID:     "2026-03-02@19:00/MPC",
			Summary: "MPC - Metodologia",
			Start:   time.Date(2026, 3, 2, 19, 0, 0, 0, loc),
			End:     time.Date(2026, 3, 2, 20, 40, 0, 0, loc),
		}},
	})
	require.NoError(t, err)

	parsed, err := ics.ParseCalendar(bytes.NewReader(out))
	require.NoError(t, err)
	events := parsed.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "MPC - Metodologia", events[0].GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, "20260302T220000Z", events[0].GetProperty(ics.ComponentPropertyDtStart).Value)
}

func TestICSExporterRejectsInvalidEvents(t *testing.T) {
	exporter := NewICSExporter("", nil)
	_, err := exporter.Render(Calendar{})
	assert.Error(t, err)

	start := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)
	_, err = exporter.Render(Calendar{Events: []Event{{UID: "x", Start: start, End: start}}})
	assert.Error(t, err)
	_, err = exporter.Render(Calendar{Events: []Event{{Start: start, End: start.Add(time.Hour)}}})
	assert.Error(t, err)
}
