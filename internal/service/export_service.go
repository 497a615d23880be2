package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
	"github.com/adelinocpp/postgraduate-schedules/pkg/export"
	"github.com/adelinocpp/postgraduate-schedules/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
	Path(filename string) string
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

type calendarRenderer interface {
	Render(cal export.Calendar) ([]byte, error)
}

// Renderers groups the format renderers. Nil members get defaults.
type Renderers struct {
	CSV  csvRenderer
	PDF  documentRenderer
	XLSX documentRenderer
	ICS  calendarRenderer
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	// Location places slot clock times on the timeline for calendar feeds.
	Location *time.Location
	Now      func() time.Time
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string              `json:"path"`
	Token        string              `json:"token"`
	URL          string              `json:"url"`
	Format       models.ExportFormat `json:"format"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// ExportService renders result envelopes and persists the files behind
// signed download tokens.
type ExportService struct {
	storage   fileStorage
	renderers Renderers
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, renderers Renderers, cfg ExportConfig, metrics *MetricsService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if renderers.CSV == nil {
		renderers.CSV = export.NewCSVExporter(0)
	}
	if renderers.PDF == nil {
		renderers.PDF = export.NewPDFExporter()
	}
	if renderers.XLSX == nil {
		renderers.XLSX = export.NewXLSXExporter()
	}
	if renderers.ICS == nil {
		renderers.ICS = export.NewICSExporter("", cfg.Now)
	}
	return &ExportService{
		storage:   store,
		renderers: renderers,
		signer:    signer,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Render produces the bytes of env in the requested format.
func (s *ExportService) Render(env *models.ResultEnvelope, format models.ExportFormat) ([]byte, error) {
	if env == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "envelope is required")
	}
	var (
		payload []byte
		err     error
	)
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.renderers.CSV.Render(sessionDataset(env))
	case models.ExportFormatPDF:
		doc := envelopeDocument(env)
		doc.Landscape = true
		payload, err = s.renderers.PDF.Render(doc)
	case models.ExportFormatXLSX:
		payload, err = s.renderers.XLSX.Render(envelopeDocument(env))
	case models.ExportFormatICS:
		payload, err = s.renderers.ICS.Render(s.envelopeCalendar(env))
	case models.ExportFormatJSON:
		payload, err = json.MarshalIndent(env, "", "  ")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return payload, nil
}

// Export renders a stored timetable and saves it behind a signed token.
func (s *ExportService) Export(ctx context.Context, record *models.TimetableRecord, format models.ExportFormat) (*ExportResult, error) {
	if record == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := record.DecodeEnvelope()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable payload is unreadable")
	}

	payload, err := s.Render(env, format)
	if err != nil {
		s.metrics.ObserveExport(string(format), err)
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(record, format), payload)
	if err != nil {
		s.metrics.ObserveExport(string(format), err)
		return nil, fmt.Errorf("store export: %w", err)
	}

	token, expiresAt, err := s.signer.Sign(record.ID, relPath)
	if err != nil {
		s.metrics.ObserveExport(string(format), err)
		return nil, err
	}
	s.metrics.ObserveExport(string(format), nil)

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("timetable exported",
		zap.String("timetable_id", record.ID),
		zap.String("format", string(format)),
		zap.String("path", relPath),
		zap.Int("bytes", len(payload)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.SignedToken, error) {
	return s.signer.Verify(token, allowExpired)
}

// ExportDownload is an opened export ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
	TimetableID string
}

// Download resolves a signed token to its stored file. The caller closes File.
func (s *ExportService) Download(token string) (*ExportDownload, error) {
	signed, err := s.signer.Verify(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, "download link expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	file, err := s.storage.Open(signed.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export")
	}
	format, _ := models.ParseExportFormat(strings.TrimPrefix(filepath.Ext(signed.Path), "."))
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(signed.Path),
		ContentType: format.ContentType(),
		SizeBytes:   info.Size(),
		TimetableID: signed.Subject,
	}, nil
}

// Path resolves a stored export to its absolute path.
func (s *ExportService) Path(relPath string) string {
	return s.storage.Path(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func (s *ExportService) buildFilename(record *models.TimetableRecord, format models.ExportFormat) string {
	timestamp := s.cfg.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s_s%d_v%d_%s.%s",
		sanitizeFilename(record.Course),
		sanitizeFilename(record.Year),
		strings.ToLower(string(record.CohortMode)),
		record.Semester,
		record.Version,
		timestamp,
		format,
	)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

var sessionHeaders = []string{"Date", "Weekday", "Start", "End", "Code", "Discipline", "Session"}

func sessionDataset(env *models.ResultEnvelope) export.Dataset {
	rows := make([]map[string]string, 0, len(env.Assignment.Sessions))
	for _, session := range env.Assignment.Sessions {
		rows = append(rows, map[string]string{
			"Date":       session.Slot.Day.Date.Format(dateLayout),
			"Weekday":    session.Slot.Day.Date.Weekday().String(),
			"Start":      session.Slot.Slot.StartTime,
			"End":        session.Slot.Slot.EndTime,
			"Code":       session.DisciplineCode,
			"Discipline": session.DisciplineName,
			"Session":    strconv.Itoa(session.Number),
		})
	}
	return export.Dataset{Headers: sessionHeaders, Rows: rows, Weights: []float64{1.2, 1.2, 0.8, 0.8, 0.9, 4, 0.8}}
}

func hourDataset(env *models.ResultEnvelope) export.Dataset {
	headers := []string{"Code", "Discipline", "Required h", "Required sessions", "Allocated sessions", "Allocated h", "Shortfall h"}
	rows := make([]map[string]string, 0, len(env.Report.HourSummary))
	for _, h := range env.Report.HourSummary {
		rows = append(rows, map[string]string{
			"Code":               h.DisciplineCode,
			"Discipline":         h.DisciplineName,
			"Required h":         formatHours(h.RequiredHours),
			"Required sessions":  strconv.Itoa(h.RequiredSessions),
			"Allocated sessions": strconv.Itoa(h.AllocatedSessions),
			"Allocated h":        formatHours(h.AllocatedHours),
			"Shortfall h":        formatHours(h.ShortfallHours),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows, Weights: []float64{0.9, 4, 1, 1, 1, 1, 1}}
}

func issueDataset(env *models.ResultEnvelope) export.Dataset {
	headers := []string{"Severity", "Kind", "Message"}
	rows := make([]map[string]string, 0, len(env.Report.Conflicts)+len(env.Report.Warnings))
	for _, issue := range env.Report.Conflicts {
		rows = append(rows, map[string]string{"Severity": "conflict", "Kind": string(issue.Kind), "Message": issue.Message})
	}
	for _, issue := range env.Report.Warnings {
		rows = append(rows, map[string]string{"Severity": "warning", "Kind": string(issue.Kind), "Message": issue.Message})
	}
	return export.Dataset{Headers: headers, Rows: rows, Weights: []float64{1, 1.6, 6}}
}

func envelopeTitle(env *models.ResultEnvelope) string {
	return fmt.Sprintf("%s %s - %s semester %d", env.Course, env.Year, strings.ToLower(string(env.CohortMode)), env.Semester)
}

func envelopeDocument(env *models.ResultEnvelope) export.Document {
	summary := []string{
		fmt.Sprintf("Status: %s", env.Report.Status),
		fmt.Sprintf("Calendar: %s to %s (%s)", env.CalendarStart.Format(dateLayout), env.CalendarEnd.Format(dateLayout), shortRef(env.CalendarRef)),
		fmt.Sprintf("Slots: %d, sessions: %d, free: %d", env.SlotCount, len(env.Assignment.Sessions), len(env.Assignment.FreeSlots)),
		fmt.Sprintf("Allocated hours: %s of capacity %s", formatHours(env.Report.AllocatedHours), formatHours(env.Report.CapacityHours)),
		fmt.Sprintf("Generated at: %s", env.GeneratedAt.UTC().Format(time.RFC3339)),
	}
	tables := []export.Table{
		{Caption: "Sessions", Data: sessionDataset(env)},
		{Caption: "Hours", Data: hourDataset(env)},
	}
	if issues := issueDataset(env); len(issues.Rows) > 0 {
		tables = append(tables, export.Table{Caption: "Issues", Data: issues})
	}
	return export.Document{Title: envelopeTitle(env), Summary: summary, Tables: tables}
}

func (s *ExportService) envelopeCalendar(env *models.ResultEnvelope) export.Calendar {
	events := make([]export.Event, 0, len(env.Assignment.Sessions))
	for _, session := range env.Assignment.Sessions {
		start, errStart := clockOn(session.Slot.Day.Date, session.Slot.Slot.StartTime, s.cfg.Location)
		end, errEnd := clockOn(session.Slot.Day.Date, session.Slot.Slot.EndTime, s.cfg.Location)
		if errStart != nil || errEnd != nil {
			s.logger.Warn("session skipped in calendar feed", zap.String("slot", session.Slot.Key))
			continue
		}
		events = append(events, export.Event{
			UID:         fmt.Sprintf("%s/%s/%s/%s", session.Slot.Key, session.DisciplineCode, env.Course, env.Year),
			Summary:     fmt.Sprintf("%s - %s", session.DisciplineCode, session.DisciplineName),
			Description: fmt.Sprintf("Session %d, %s", session.Number, envelopeTitle(env)),
			Start:       start,
			End:         end,
		})
	}
	return export.Calendar{
		Name:        envelopeTitle(env),
		Description: fmt.Sprintf("Status %s, generated %s", env.Report.Status, env.GeneratedAt.UTC().Format(time.RFC3339)),
		Events:      events,
	}
}

func clockOn(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	minutes, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}
