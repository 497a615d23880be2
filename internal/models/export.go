package models

import "strings"

// ExportFormat is a rendering target for a stored timetable.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatICS  ExportFormat = "ics"
	ExportFormatJSON ExportFormat = "json"
)

var exportContentTypes = map[ExportFormat]string{
	ExportFormatCSV:  "text/csv; charset=utf-8",
	ExportFormatPDF:  "application/pdf",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	ExportFormatICS:  "text/calendar; charset=utf-8",
	ExportFormatJSON: "application/json",
}

// ParseExportFormat normalises a format name.
func ParseExportFormat(raw string) (ExportFormat, bool) {
	f := ExportFormat(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := exportContentTypes[f]
	return f, ok
}

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	if ct, ok := exportContentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}
