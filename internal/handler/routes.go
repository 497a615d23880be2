package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adelinocpp/postgraduate-schedules/internal/middleware"
	"github.com/adelinocpp/postgraduate-schedules/internal/models"
)

// Routes groups the handlers mounted by RegisterRoutes.
type Routes struct {
	Prefix     string
	Timetables *TimetableHandler
	Exports    *ExportHandler
	Metrics    *MetricsHandler
	Tokens     middleware.TokenValidator
	Audit      *zap.Logger
}

// RegisterRoutes mounts the API on r. Mutations of stored timetables need a
// coordinator or admin token; rendering an export needs any valid token.
func RegisterRoutes(r gin.IRouter, routes Routes) {
	if routes.Metrics != nil {
		r.GET("/health", routes.Metrics.Health)
		r.GET("/ready", routes.Metrics.Ready)
		r.GET("/metrics", routes.Metrics.Prometheus)
	}

	api := r.Group(routes.Prefix)
	if routes.Metrics != nil {
		api.GET("/metrics/summary", routes.Metrics.Summary)
	}

	editors := []models.UserRole{models.RoleAdmin, models.RoleCoordinator}
	readers := append([]models.UserRole{models.RoleViewer}, editors...)
	guard := func(action string, roles []models.UserRole, h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{
			middleware.Audit(routes.Audit, action),
			middleware.JWT(routes.Tokens),
			middleware.RequireRoles(roles...),
			h,
		}
	}

	if t := routes.Timetables; t != nil {
		api.GET("/calendar", t.Calendar)
		api.POST("/timetables/generate", t.Generate)
		api.POST("/timetables/batch", t.GenerateBatch)
		api.GET("/timetables", t.List)
		api.GET("/timetables/latest", t.Latest)
		api.GET("/timetables/compare", t.Compare)
		api.GET("/timetables/:id", t.Get)
		api.POST("/timetables", guard("timetable.save", editors, t.Save)...)
		api.POST("/timetables/:id/publish", guard("timetable.publish", editors, t.Publish)...)
		api.DELETE("/timetables/:id", guard("timetable.delete", editors, t.Delete)...)
	}
	if e := routes.Exports; e != nil {
		api.POST("/timetables/:id/exports", guard("timetable.export", readers, e.Create)...)
		api.GET("/exports/:token", e.Download)
	}
}
