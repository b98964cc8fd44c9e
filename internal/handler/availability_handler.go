package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/middleware"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/response"
)

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, query dto.AvailabilityQuery) (*dto.AvailabilityResult, error)
	CheckTeachers(ctx context.Context, query dto.TeacherPickerQuery) ([]dto.AvailabilityResult, error)
}

type teacherAvailabilityService interface {
	Get(ctx context.Context, teacherID string) (*dto.TeacherAvailabilityResponse, error)
	Replace(ctx context.Context, teacherID string, req dto.ReplaceAvailabilityRequest) (*dto.TeacherAvailabilityResponse, error)
}

// AvailabilityHandler answers teacher availability questions and manages weekly slots.
type AvailabilityHandler struct {
	checker availabilityChecker
	slots   teacherAvailabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(checker availabilityChecker, slots teacherAvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{checker: checker, slots: slots}
}

// Check godoc
// @Summary Check one teacher's availability
// @Tags Availability
// @Produce json
// @Param teacherId query string true "Teacher ID"
// @Param startAt query string true "Start (RFC 3339)"
// @Param durationMinutes query int true "Duration in minutes"
// @Param excludeLessonId query string false "Lesson ignored by the check"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability/check [get]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	start, err := requiredTimeQuery(c, "startAt")
	if err != nil {
		response.Error(c, err)
		return
	}
	duration, err := intQuery(c, "durationMinutes")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.checker.CheckAvailability(c.Request.Context(), dto.AvailabilityQuery{
		TeacherID:       strings.TrimSpace(c.Query("teacherId")),
		StartAt:         start,
		DurationMinutes: duration,
		ExcludeLessonID: strings.TrimSpace(c.Query("excludeLessonId")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Teachers godoc
// @Summary Evaluate every active teacher for a window
// @Tags Availability
// @Produce json
// @Param startAt query string true "Start (RFC 3339)"
// @Param durationMinutes query int true "Duration in minutes"
// @Param excludeLessonId query string false "Lesson ignored by the check"
// @Param enrollmentId query string false "Enrollment used for the language match"
// @Success 200 {object} response.Envelope
// @Router /availability/teachers [get]
func (h *AvailabilityHandler) Teachers(c *gin.Context) {
	start, err := requiredTimeQuery(c, "startAt")
	if err != nil {
		response.Error(c, err)
		return
	}
	duration, err := intQuery(c, "durationMinutes")
	if err != nil {
		response.Error(c, err)
		return
	}
	results, err := h.checker.CheckTeachers(c.Request.Context(), dto.TeacherPickerQuery{
		StartAt:         start,
		DurationMinutes: duration,
		ExcludeLessonID: strings.TrimSpace(c.Query("excludeLessonId")),
		EnrollmentID:    strings.TrimSpace(c.Query("enrollmentId")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	available := 0
	for _, result := range results {
		if result.Available {
			available++
		}
	}
	middleware.SetMeta(c, "available", available)
	middleware.SetMeta(c, "total", len(results))
	response.JSON(c, http.StatusOK, results, nil, middleware.ExtractMeta(c))
}

// GetSlots godoc
// @Summary List a teacher's weekly availability
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) GetSlots(c *gin.Context) {
	result, err := h.slots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ReplaceSlots godoc
// @Summary Replace a teacher's weekly availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.ReplaceAvailabilityRequest true "Slot set"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teachers/{id}/availability [put]
func (h *AvailabilityHandler) ReplaceSlots(c *gin.Context) {
	var req dto.ReplaceAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid availability payload"))
		return
	}
	teacherID := strings.TrimSpace(c.Param("id"))
	if teacherID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher id is required"))
		return
	}
	result, err := h.slots.Replace(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
