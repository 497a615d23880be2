package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	"github.com/adelinocpp/postgraduate-schedules/internal/service"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
	"github.com/adelinocpp/postgraduate-schedules/pkg/response"
)

type timetableLoader interface {
	Get(ctx context.Context, id string) (*models.TimetableRecord, error)
}

type exportService interface {
	Export(ctx context.Context, record *models.TimetableRecord, format models.ExportFormat) (*service.ExportResult, error)
	Download(token string) (*service.ExportDownload, error)
}

// ExportHandler renders stored timetables and serves signed downloads.
type ExportHandler struct {
	timetables timetableLoader
	exports    exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(timetables timetableLoader, exports exportService) *ExportHandler {
	return &ExportHandler{timetables: timetables, exports: exports}
}

// Create godoc
// @Summary Render a stored timetable
// @Tags Exports
// @Produce json
// @Param id path string true "Timetable ID"
// @Param format query string true "csv, pdf, xlsx, ics or json"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	format, ok := models.ParseExportFormat(c.Query("format"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be one of csv, pdf, xlsx, ics, json"))
		return
	}
	record, err := h.timetables.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.Export(c.Request.Context(), record, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a rendered timetable via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.ContentType, result.File, nil)
}
