package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
	"github.com/adelinocpp/postgraduate-schedules/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{
		APIPrefix: "/api/v1",
		ResultTTL: time.Hour,
		Location:  time.FixedZone("BRT", -3*3600),
		Now:       func() time.Time { return fixedClock },
	}
	return NewExportService(store, signer, Renderers{}, cfg, NewMetricsService(), zap.NewNop()), store
}

func exportEnvelope(t *testing.T) *models.ResultEnvelope {
	t.Helper()
	result, err := RunPipeline(scenarioInput(t, 8, 24, row("1", "CRIM", 20), row("2", "MPC", 20)))
	require.NoError(t, err)
	return &result.Envelope
}

func exportRecord(t *testing.T, env *models.ResultEnvelope) *models.TimetableRecord {
	t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	return &models.TimetableRecord{
		ID:         "tt-1",
		Course:     env.Course,
		Year:       env.Year,
		CohortMode: env.CohortMode,
		Semester:   env.Semester,
		Version:    2,
		Payload:    types.JSONText(payload),
	}
}

func TestExportServiceRenderCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	env := exportEnvelope(t)

	out, err := svc.Render(env, models.ExportFormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, len(env.Assignment.Sessions)+1)
	assert.Equal(t, "Date,Weekday,Start,End,Code,Discipline,Session", lines[0])
	assert.Equal(t, "2026-03-02,Monday,19:00,20:40,CRIM,Disciplina CRIM,1", lines[1])
}

func TestExportServiceRenderXLSXHasSheets(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	env := exportEnvelope(t)

	out, err := svc.Render(env, models.ExportFormatXLSX)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	// 40 h over 24 h capacity yields a conflict, so the issues sheet is present.
	assert.Equal(t, []string{"Sessions", "Hours", "Issues"}, f.GetSheetList())
}

func TestExportServiceRenderPDFAndJSON(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	env := exportEnvelope(t)

	pdf, err := svc.Render(env, models.ExportFormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	raw, err := svc.Render(env, models.ExportFormatJSON)
	require.NoError(t, err)
	var decoded models.ResultEnvelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, env.CalendarRef, decoded.CalendarRef)
}

func TestExportServiceRenderICSUsesLocation(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	env := exportEnvelope(t)

	out, err := svc.Render(env, models.ExportFormatICS)
	require.NoError(t, err)
	cal, err := ics.ParseCalendar(bytes.NewReader(out))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, len(env.Assignment.Sessions))
	assert.Equal(t, "20260302T220000Z", events[0].GetProperty(ics.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20260302T234000Z", events[0].GetProperty(ics.ComponentPropertyDtEnd).Value)
}

func TestExportServiceRenderRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	_, err := svc.Render(exportEnvelope(t), models.ExportFormat("docx"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Render(nil, models.ExportFormatCSV)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceExportStoresSignedFile(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	record := exportRecord(t, exportEnvelope(t))

	result, err := svc.Export(context.Background(), record, models.ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "criminologia_2026_weekly_s1_v2_20260115_120000.pdf", result.RelativePath)
	assert.Equal(t, "/api/v1/exports/"+result.Token, result.URL)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	token, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "tt-1", token.Subject)
	assert.Equal(t, result.RelativePath, token.Path)

	assert.FileExists(t, svc.Path(token.Path))

	assert.Equal(t, uint64(1), svc.metrics.Snapshot().ExportsTotal)
}

func TestExportServiceExportRejectsBrokenPayload(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	record := &models.TimetableRecord{ID: "tt-9", Payload: types.JSONText(`{`)}
	_, err := svc.Export(context.Background(), record, models.ExportFormatCSV)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestExportServiceCleanup(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	_, err := svc.Export(context.Background(), exportRecord(t, exportEnvelope(t)), models.ExportFormatCSV)
	require.NoError(t, err)

	removed, err := svc.Cleanup(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "a_b-c", sanitizeFilename("a b/c"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 150)), 100)
}

func TestExportServiceDownload(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	result, err := svc.Export(context.Background(), exportRecord(t, exportEnvelope(t)), models.ExportFormatICS)
	require.NoError(t, err)

	download, err := svc.Download(result.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, result.RelativePath, download.Filename)
	assert.Equal(t, "text/calendar; charset=utf-8", download.ContentType)
	assert.Equal(t, "tt-1", download.TimetableID)
	assert.Greater(t, download.SizeBytes, int64(0))

	_, err = svc.Download(result.Token + "x")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestExportServiceDownloadExpired(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Minute).WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	svc := NewExportService(store, signer, Renderers{}, ExportConfig{Now: func() time.Time { return fixedClock }}, nil, nil)

	result, err := svc.Export(context.Background(), exportRecord(t, exportEnvelope(t)), models.ExportFormatCSV)
	require.NoError(t, err)
	signer.WithClock(time.Now)
	_, err = svc.Download(result.Token)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}
