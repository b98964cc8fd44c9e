package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler/internal/middleware"
	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// Handlers groups the API handlers mounted under the versioned prefix.
type Handlers struct {
	Availability   *AvailabilityHandler
	Lessons        *LessonHandler
	ChangeRequests *ChangeRequestHandler
	Stats          *StatsHandler
}

// RegisterRoutes mounts every scheduling route on group behind JWT authentication.
func RegisterRoutes(group *gin.RouterGroup, tokens middleware.TokenValidator, h Handlers) {
	admin := middleware.RequireRoles(models.RoleAdmin)

	api := group.Group("")
	api.Use(middleware.JWT(tokens), middleware.WithResponseMeta())

	availability := api.Group("/availability")
	availability.GET("/check", h.Availability.Check)
	availability.GET("/teachers", h.Availability.Teachers)

	teachers := api.Group("/teachers")
	teachers.GET("/:id/availability", h.Availability.GetSlots)
	teachers.PUT("/:id/availability", admin, h.Availability.ReplaceSlots)

	lessons := api.Group("/lessons")
	lessons.GET("", h.Lessons.List)
	lessons.GET("/unseen", h.Lessons.Unseen)
	lessons.GET("/:id", h.Lessons.Get)
	lessons.GET("/:id/history", h.Lessons.History)
	lessons.POST("", admin, h.Lessons.Create)
	lessons.PATCH("/:id", admin, h.Lessons.Update)
	lessons.DELETE("/:id", admin, h.Lessons.Delete)
	lessons.POST("/:id/cancel", admin, h.Lessons.Cancel)
	lessons.POST("/:id/viewed", h.Lessons.MarkViewed)

	stats := api.Group("/stats", admin)
	stats.GET("/weekly", h.Stats.Weekly)
	stats.GET("/weekly/report", h.Stats.Report)

	changeRequests := api.Group("/change-requests")
	changeRequests.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), h.ChangeRequests.Create)
	changeRequests.GET("", h.ChangeRequests.List)
	changeRequests.GET("/:id", h.ChangeRequests.Get)
	changeRequests.POST("/:id/resolve", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.ChangeRequests.Resolve)
}
