package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	"github.com/adelinocpp/postgraduate-schedules/pkg/config"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

// Column order of the distribution sheets: Disciplina, Hora_aula, Encontros,
// Sigla, Horas. Hora_aula is the class-hour label and is not used.
const (
	colName       = 0
	colEncounters = 2
	colCode       = 3
	colHours      = 4
)

// ReadDisciplineCSV reads distribution rows from CSV. The header line is
// optional; comma and semicolon separators are both accepted. Row ids are
// 1-based line numbers.
func ReadDisciplineCSV(r io.Reader) ([]models.RawDisciplineRow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read discipline csv: %w", err)
	}
	text := strings.TrimPrefix(string(content), "\ufeff")
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectSeparator(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records := make([]sourceRecord, 0)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse discipline csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, sourceRecord{line: line, fields: fields})
	}
	return rowsFromRecords(records), nil
}

// ReadDisciplineXLSX reads distribution rows from a spreadsheet. An empty
// sheet name selects the first sheet.
func ReadDisciplineXLSX(r io.Reader, sheet string) ([]models.RawDisciplineRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open discipline workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	sheetRows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	records := make([]sourceRecord, 0, len(sheetRows))
	for i, fields := range sheetRows {
		records = append(records, sourceRecord{line: i + 1, fields: fields})
	}
	return rowsFromRecords(records), nil
}

// sourceRecord is a row of a source file with its 1-based line number.
type sourceRecord struct {
	line   int
	fields []string
}

func rowsFromRecords(records []sourceRecord) []models.RawDisciplineRow {
	rows := make([]models.RawDisciplineRow, 0, len(records))
	for i, record := range records {
		if i == 0 && isHeader(record.fields) {
			continue
		}
		if blank(record.fields) {
			continue
		}
		rows = append(rows, models.RawDisciplineRow{
			RowID:      strconv.Itoa(record.line),
			Name:       field(record.fields, colName),
			Encounters: field(record.fields, colEncounters),
			Code:       field(record.fields, colCode),
			Hours:      field(record.fields, colHours),
		})
	}
	return rows
}

func isHeader(record []string) bool {
	return strings.EqualFold(field(record, colName), "disciplina")
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func detectSeparator(content string) rune {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

// FileDisciplineSource resolves a course's catalog file from the plan and
// reads it from a base directory.
type FileDisciplineSource struct {
	baseDir string
	plan    config.Plan
}

// NewFileDisciplineSource constructs the source.
func NewFileDisciplineSource(baseDir string, plan config.Plan) *FileDisciplineSource {
	return &FileDisciplineSource{baseDir: baseDir, plan: plan}
}

// LoadRows returns the raw rows of the course's catalog file.
func (s *FileDisciplineSource) LoadRows(ctx context.Context, course string) ([]models.RawDisciplineRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := s.plan.Course(course)
	if !ok || entry.Disciplines == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no discipline catalog configured for course %q", course))
	}
	path := entry.Disciplines
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrEmptyCatalog, fmt.Sprintf("catalog file %s not found", entry.Disciplines))
		}
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadDisciplineXLSX(file, "")
	default:
		return ReadDisciplineCSV(file)
	}
}
