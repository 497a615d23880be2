package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// XLSXExporter renders documents into workbooks, one sheet per table.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes the document title and summary at the top of every sheet,
// followed by a styled header row and the table rows.
func (e *XLSXExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one table")
	}

	f := excelize.NewFile()
	defer f.Close()

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 13},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx title style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx header style: %w", err)
	}

	used := map[string]bool{}
	for i, table := range doc.Tables {
		if err := table.Data.validate("xlsx"); err != nil {
			return nil, err
		}
		name := sheetName(table.Caption, i, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}

		row := 1
		if doc.Title != "" {
			if err := f.SetCellValue(name, cellName(1, row), doc.Title); err != nil {
				return nil, err
			}
			_ = f.SetCellStyle(name, cellName(1, row), cellName(1, row), titleStyle)
			row++
		}
		for _, line := range doc.Summary {
			if err := f.SetCellValue(name, cellName(1, row), line); err != nil {
				return nil, err
			}
			row++
		}
		if row > 1 {
			row++
		}

		if err := f.SetSheetRow(name, cellName(1, row), &table.Data.Headers); err != nil {
			return nil, fmt.Errorf("write xlsx headers: %w", err)
		}
		_ = f.SetCellStyle(name, cellName(1, row), cellName(len(table.Data.Headers), row), headerStyle)
		if err := f.SetPanes(name, &excelize.Panes{
			Freeze:      true,
			YSplit:      row,
			TopLeftCell: cellName(1, row+1),
			ActivePane:  "bottomLeft",
		}); err != nil {
			return nil, fmt.Errorf("freeze xlsx header: %w", err)
		}
		row++

		for _, data := range table.Data.Rows {
			record := table.Data.record(data)
			if err := f.SetSheetRow(name, cellName(1, row), &record); err != nil {
				return nil, fmt.Errorf("write xlsx row: %w", err)
			}
			row++
		}

		for col, width := range table.Data.widths(float64(14 * len(table.Data.Headers))) {
			colName, _ := excelize.ColumnNumberToName(col + 1)
			_ = f.SetColWidth(name, colName, colName, width)
		}
	}
	f.SetActiveSheet(0)

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func sheetName(caption string, index int, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, strings.TrimSpace(caption))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	if runes := []rune(name); len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	base := name
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		runes := []rune(base)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		name = string(runes) + suffix
	}
	used[name] = true
	return name
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
