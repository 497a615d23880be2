package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	"github.com/adelinocpp/postgraduate-schedules/pkg/jobs"
	"github.com/adelinocpp/postgraduate-schedules/pkg/notify"
)

type publishedTimetableLoader interface {
	FindByID(ctx context.Context, id string) (*models.TimetableRecord, error)
}

type timetableExporter interface {
	Export(ctx context.Context, record *models.TimetableRecord, format models.ExportFormat) (*ExportResult, error)
	Path(relPath string) string
}

// PublishWorker renders a published timetable in every configured format and
// notifies coordinators with the files attached.
type PublishWorker struct {
	repo     publishedTimetableLoader
	exporter timetableExporter
	notifier notify.Notifier
	formats  []models.ExportFormat
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewPublishWorker constructs a worker. Unknown format names are skipped with
// a warning; an empty list falls back to xlsx, pdf and ics.
func NewPublishWorker(repo publishedTimetableLoader, exporter timetableExporter, notifier notify.Notifier, formats []string, metrics *MetricsService, logger *zap.Logger) *PublishWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed := make([]models.ExportFormat, 0, len(formats))
	for _, raw := range formats {
		format, ok := models.ParseExportFormat(raw)
		if !ok {
			logger.Warn("ignoring unknown publish format", zap.String("format", raw))
			continue
		}
		parsed = append(parsed, format)
	}
	if len(parsed) == 0 {
		parsed = []models.ExportFormat{models.ExportFormatXLSX, models.ExportFormatPDF, models.ExportFormatICS}
	}
	return &PublishWorker{
		repo:     repo,
		exporter: exporter,
		notifier: notifier,
		formats:  parsed,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handle processes a publication job. A failed render or notification is
// returned so the queue can retry the job.
func (w *PublishWorker) Handle(ctx context.Context, job jobs.Job) (err error) {
	defer func() { w.metrics.ObservePublish(err) }()

	if job.Type != PublishJobType {
		return fmt.Errorf("job %s: %w %q", job.ID, ErrUnsupportedJob, job.Type)
	}
	payload, ok := job.Payload.(PublishJob)
	if !ok {
		return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	record, err := w.repo.FindByID(ctx, payload.TimetableID)
	if err != nil {
		return fmt.Errorf("load timetable %s: %w", payload.TimetableID, err)
	}
	if record.Status != models.TimetableStatusPublished {
		w.logger.Info("skipping publication of unpublished timetable",
			zap.String("id", record.ID),
			zap.String("status", string(record.Status)),
		)
		return nil
	}
	env, err := record.DecodeEnvelope()
	if err != nil {
		return err
	}

	attachments := make([]notify.Attachment, 0, len(w.formats))
	links := make([]string, 0, len(w.formats))
	for _, format := range w.formats {
		result, err := w.exporter.Export(ctx, record, format)
		if err != nil {
			return fmt.Errorf("render %s: %w", format, err)
		}
		attachments = append(attachments, notify.Attachment{
			Name: result.RelativePath,
			Path: w.exporter.Path(result.RelativePath),
		})
		links = append(links, fmt.Sprintf("%s: %s", strings.ToUpper(string(format)), result.URL))
	}

	if w.notifier != nil {
		msg := notify.Message{
			Subject:     fmt.Sprintf("Timetable published: %s", envelopeTitle(env)),
			Body:        PublicationSummary(record, links),
			Attachments: attachments,
		}
		if err := w.notifier.Notify(ctx, msg); err != nil {
			return fmt.Errorf("notify publication of %s: %w", record.ID, err)
		}
	}

	w.logger.Info("timetable publication delivered",
		zap.String("id", record.ID),
		zap.String("job_id", job.ID),
		zap.String("requested_by", payload.RequestedBy),
		zap.String("request_id", payload.RequestID),
		zap.Int("files", len(attachments)),
	)
	return nil
}

// PublicationSummary renders the plain-text notice sent to coordinators.
func PublicationSummary(record *models.TimetableRecord, links []string) string {
	var b strings.Builder
	env := record.Envelope
	if env == nil {
		env = &models.ResultEnvelope{}
	}

	fmt.Fprintf(&b, "%s\n", envelopeTitle(env))
	fmt.Fprintf(&b, "Version %d, status %s\n", record.Version, env.Report.Status)
	fmt.Fprintf(&b, "Calendar %s to %s (ref %s)\n",
		env.CalendarStart.Format(dateLayout), env.CalendarEnd.Format(dateLayout), shortRef(env.CalendarRef))
	fmt.Fprintf(&b, "Sessions: %d of %d slots, %s h of %s h capacity\n",
		len(env.Assignment.Sessions), env.SlotCount,
		formatHours(env.Report.AllocatedHours), formatHours(env.Report.CapacityHours))

	if len(env.Report.HourSummary) > 0 {
		b.WriteString("\nDisciplines:\n")
		for _, h := range env.Report.HourSummary {
			fmt.Fprintf(&b, "  %s %s: %d sessions, %s h of %s h\n",
				h.DisciplineCode, h.DisciplineName, h.AllocatedSessions,
				formatHours(h.AllocatedHours), formatHours(h.RequiredHours))
		}
	}

	if counts := env.Report.CountByKind(); len(counts) > 0 {
		kinds := make([]string, 0, len(counts))
		for kind := range counts {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		b.WriteString("\nIssues:\n")
		for _, kind := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", kind, counts[models.IssueKind(kind)])
		}
	}

	if len(links) > 0 {
		b.WriteString("\nDownloads:\n")
		for _, link := range links {
			fmt.Fprintf(&b, "  %s\n", link)
		}
	}
	return b.String()
}

// ErrUnsupportedJob is returned for jobs the publish worker does not handle.
var ErrUnsupportedJob = errors.New("unsupported job type")
