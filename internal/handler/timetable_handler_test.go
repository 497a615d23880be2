package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelinocpp/postgraduate-schedules/internal/dto"
	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	"github.com/adelinocpp/postgraduate-schedules/internal/service"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

type timetableServiceMock struct {
	generated  dto.GenerateTimetableRequest
	filter     models.TimetableFilter
	latestKey  models.TimetableKey
	publishErr error
	actor      string
	record     *models.TimetableRecord
}

func (m *timetableServiceMock) Generate(_ context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	m.generated = req
	if req.CohortMode == "monthly" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown cohort mode")
	}
	return &dto.GenerateTimetableResponse{ProposalID: "proposal-1"}, nil
}

func (m *timetableServiceMock) GenerateBatch(_ context.Context, req dto.BatchGenerateRequest) (*dto.BatchGenerateResponse, error) {
	return &dto.BatchGenerateResponse{Succeeded: len(req.Items)}, nil
}

func (m *timetableServiceMock) Save(context.Context, dto.SaveTimetableRequest) (*models.TimetableRecord, error) {
	return m.record, nil
}

func (m *timetableServiceMock) List(_ context.Context, filter models.TimetableFilter) ([]models.TimetableRecord, *models.Pagination, error) {
	m.filter = filter
	return []models.TimetableRecord{*m.record}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *timetableServiceMock) Get(_ context.Context, id string) (*models.TimetableRecord, error) {
	if id != m.record.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	return m.record, nil
}

func (m *timetableServiceMock) Latest(_ context.Context, key models.TimetableKey) (*models.TimetableRecord, error) {
	m.latestKey = key
	return m.record, nil
}

func (m *timetableServiceMock) Compare(_ context.Context, from, to string) (*dto.TimetableComparison, error) {
	return &dto.TimetableComparison{FromID: from, ToID: to}, nil
}

func (m *timetableServiceMock) Publish(_ context.Context, id, actor string) (*dto.PublishResponse, error) {
	m.actor = actor
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	return &dto.PublishResponse{Timetable: *m.record, JobID: "job-1"}, nil
}

func (m *timetableServiceMock) Delete(context.Context, string) error {
	return nil
}

func (m *timetableServiceMock) Calendar(_ context.Context, q dto.CalendarQuery) (*dto.CalendarPreviewResponse, error) {
	return &dto.CalendarPreviewResponse{CohortMode: models.CohortModeWeekly, Start: q.Start, End: q.End}, nil
}

type exportServiceMock struct {
	dir    string
	format models.ExportFormat
}

func (m *exportServiceMock) Export(_ context.Context, record *models.TimetableRecord, format models.ExportFormat) (*service.ExportResult, error) {
	m.format = format
	return &service.ExportResult{RelativePath: "tt.csv", Token: "tok", URL: "/api/v1/exports/tok", Format: format}, nil
}

func (m *exportServiceMock) Download(token string) (*service.ExportDownload, error) {
	if token != "tok" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	path := filepath.Join(m.dir, "tt.csv")
	if err := os.WriteFile(path, []byte("a,b\n"), 0o600); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &service.ExportDownload{File: f, Filename: "tt.csv", ContentType: models.ExportFormatCSV.ContentType(), SizeBytes: 4}, nil
}

type tokenStub struct{}

func (tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "coord":
		return &models.JWTClaims{UserID: "u-1", Email: "coord@example.com", Role: models.RoleCoordinator}, nil
	case "viewer":
		return &models.JWTClaims{UserID: "u-2", Role: models.RoleViewer}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newTestRouter(t *testing.T) (*gin.Engine, *timetableServiceMock, *exportServiceMock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &timetableServiceMock{record: &models.TimetableRecord{
		ID: "tt-1", Course: "criminologia", Year: "2026", CohortMode: models.CohortModeWeekly, Semester: 1,
		Version: 1, Status: models.TimetableStatusDraft, Validity: models.ValidationStatusValid,
		GeneratedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}}
	exports := &exportServiceMock{dir: t.TempDir()}
	router := gin.New()
	RegisterRoutes(router, Routes{
		Prefix:     "/api/v1",
		Timetables: NewTimetableHandler(svc),
		Exports:    NewExportHandler(svc, exports),
		Metrics:    NewMetricsHandler(service.NewMetricsService(), nil),
		Tokens:     tokenStub{},
	})
	return router, svc, exports
}

func perform(router *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTimetableHandlerGenerate(t *testing.T) {
	router, svc, _ := newTestRouter(t)

	w := perform(router, http.MethodPost, "/api/v1/timetables/generate", map[string]interface{}{
		"course": "criminologia", "year": "2026", "cohortMode": "weekly", "semester": 1,
		"startDate": "2026-03-02", "endDate": "2026-08-31",
		"disciplines": []map[string]string{{"name": "Criminologia", "hours": "40"}},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "weekly", svc.generated.CohortMode)
	require.Len(t, svc.generated.Disciplines, 1)
	assert.Equal(t, "40", svc.generated.Disciplines[0].Hours)

	body := decodeEnvelope(t, w)
	assert.Equal(t, "proposal-1", body["data"].(map[string]interface{})["proposalId"])
	assert.Equal(t, "preview", body["meta"].(map[string]interface{})["mode"])
}

func TestTimetableHandlerGenerateErrors(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/timetables/generate", bytes.NewReader([]byte(`{"course":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(router, http.MethodPost, "/api/v1/timetables/generate", map[string]interface{}{"cohortMode": "monthly"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]interface{})["code"])
}

func TestTimetableHandlerMutationsRequireRole(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	save := map[string]string{"proposalId": "9b2f1c3e-8a55-4c4e-9f0d-0d2b1b7c1a11"}

	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodPost, "/api/v1/timetables", save, "").Code)
	assert.Equal(t, http.StatusForbidden, perform(router, http.MethodPost, "/api/v1/timetables", save, "viewer").Code)
	assert.Equal(t, http.StatusCreated, perform(router, http.MethodPost, "/api/v1/timetables", save, "coord").Code)

	w := perform(router, http.MethodPost, "/api/v1/timetables/tt-1/publish", nil, "coord")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "coord@example.com", svc.actor)

	svc.publishErr = appErrors.Clone(appErrors.ErrInvalidTimetable, "timetable has conflicts")
	w = perform(router, http.MethodPost, "/api/v1/timetables/tt-1/publish", nil, "coord")
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, http.StatusNoContent, perform(router, http.MethodDelete, "/api/v1/timetables/tt-1", nil, "coord").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodDelete, "/api/v1/timetables/tt-1", nil, "").Code)
}

func TestTimetableHandlerQueries(t *testing.T) {
	router, svc, _ := newTestRouter(t)

	w := perform(router, http.MethodGet, "/api/v1/timetables?course=criminologia&mode=weekly&status=DRAFT&page=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "criminologia", svc.filter.Course)
	assert.Equal(t, models.CohortMode("weekly"), svc.filter.CohortMode)
	assert.Equal(t, models.TimetableStatusDraft, svc.filter.Status)
	assert.Equal(t, 2, svc.filter.Page)
	assert.NotNil(t, decodeEnvelope(t, w)["pagination"])

	w = perform(router, http.MethodGet, "/api/v1/timetables/latest?course=criminologia&year=2026&mode=weekly&semester=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TimetableKey{Course: "criminologia", Year: "2026", CohortMode: "weekly", Semester: 1}, svc.latestKey)

	w = perform(router, http.MethodGet, "/api/v1/timetables/latest?course=criminologia&semester=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(router, http.MethodGet, "/api/v1/timetables/compare?from=a&to=b", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "a", data["fromId"])
	assert.Equal(t, http.StatusBadRequest, perform(router, http.MethodGet, "/api/v1/timetables/compare?from=a", nil, "").Code)

	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/api/v1/timetables/tt-1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, perform(router, http.MethodGet, "/api/v1/timetables/tt-9", nil, "").Code)

	w = perform(router, http.MethodGet, "/api/v1/calendar?start=2026-03-02&end=2026-03-08&mode=weekly", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-03-02", decodeEnvelope(t, w)["data"].(map[string]interface{})["start"])
}

func TestExportHandlerCreateAndDownload(t *testing.T) {
	router, _, exports := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodPost, "/api/v1/timetables/tt-1/exports?format=CSV", nil, "").Code)
	assert.Empty(t, exports.format)

	w := perform(router, http.MethodPost, "/api/v1/timetables/tt-1/exports?format=CSV", nil, "viewer")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ExportFormatCSV, exports.format)
	assert.Equal(t, "/api/v1/exports/tok", decodeEnvelope(t, w)["data"].(map[string]interface{})["url"])

	assert.Equal(t, http.StatusBadRequest, perform(router, http.MethodPost, "/api/v1/timetables/tt-1/exports?format=docx", nil, "coord").Code)
	assert.Equal(t, http.StatusNotFound, perform(router, http.MethodPost, "/api/v1/timetables/tt-9/exports?format=pdf", nil, "coord").Code)

	w = perform(router, http.MethodGet, "/api/v1/exports/tok", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a,b\n", w.Body.String())
	assert.Equal(t, `attachment; filename="tt.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusForbidden, perform(router, http.MethodGet, "/api/v1/exports/bad", nil, "").Code)
}

func TestMetricsHandlerEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/ready", nil, "").Code)
	w := perform(router, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines_total")

	w = perform(router, http.MethodGet, "/api/v1/metrics/summary", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeEnvelope(t, w)["data"], "goroutines")
}

func TestMetricsHandlerReadyReportsFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(context.Context) error { return appErrors.ErrInternal },
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database")
}
