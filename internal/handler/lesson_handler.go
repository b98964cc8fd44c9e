package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/middleware"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/response"
)

type lessonService interface {
	Get(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, query dto.LessonQuery) ([]models.Lesson, error)
	History(ctx context.Context, id string) ([]models.LessonAuditEvent, error)
	Create(ctx context.Context, req dto.CreateLessonRequest, actor models.Actor) (*dto.CreateLessonResult, error)
	Update(ctx context.Context, id string, req dto.UpdateLessonRequest, actor models.Actor) (*models.Lesson, error)
	CancelWithReposition(ctx context.Context, id string, req dto.CancelLessonRequest, actor models.Actor) (*dto.CancelLessonResult, error)
	Delete(ctx context.Context, id string, future bool, actor models.Actor) (*dto.DeleteLessonResult, error)
}

type readReceiptService interface {
	MarkViewed(ctx context.Context, actor models.Actor, lessonID string) (*models.ReadReceipt, error)
	ListUnseenChanges(ctx context.Context, actor models.Actor, since *time.Time) ([]dto.UnseenChange, error)
}

// LessonHandler exposes lesson scheduling endpoints.
type LessonHandler struct {
	lessons  lessonService
	receipts readReceiptService
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(lessons lessonService, receipts readReceiptService) *LessonHandler {
	return &LessonHandler{lessons: lessons, receipts: receipts}
}

// List godoc
// @Summary List lessons
// @Tags Lessons
// @Produce json
// @Param teacherId query string false "Teacher ID"
// @Param enrollmentId query string false "Enrollment ID"
// @Param from query string false "Window start (RFC 3339)"
// @Param to query string false "Window end (RFC 3339)"
// @Param status query []string false "Statuses"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	from, err := timeQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := timeQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.LessonQuery{
		TeacherID:    strings.TrimSpace(c.Query("teacherId")),
		EnrollmentID: strings.TrimSpace(c.Query("enrollmentId")),
		From:         from,
		To:           to,
	}
	for _, status := range listQuery(c, "status") {
		query.Status = append(query.Status, models.LessonStatus(strings.ToUpper(status)))
	}
	lessons, err := h.lessons.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(lessons))
	response.JSON(c, http.StatusOK, lessons, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.lessons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// History godoc
// @Summary Lesson audit trail
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/history [get]
func (h *LessonHandler) History(c *gin.Context) {
	events, err := h.lessons.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Create godoc
// @Summary Schedule a lesson and its repetitions
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid lesson payload"))
		return
	}
	result, err := h.lessons.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Edit a lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.UpdateLessonRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id} [patch]
func (h *LessonHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid lesson payload"))
		return
	}
	lesson, err := h.lessons.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Cancel godoc
// @Summary Cancel a lesson, optionally creating its reposition
// @Description A failed reposition does not undo the cancellation; it is reported with a PARTIAL_FAILURE meta entry.
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.CancelLessonRequest false "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/cancel [post]
func (h *LessonHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CancelLessonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid cancellation payload"))
			return
		}
	}
	result, err := h.lessons.CancelWithReposition(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.RepositionError != "" {
		middleware.SetMeta(c, "status", appErrors.ErrPartialFailure.Code)
		middleware.SetMeta(c, "reason", result.RepositionError)
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Delete godoc
// @Summary Delete a lesson, optionally with its later weekly occurrences
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Param deleteFuture query bool false "Also delete later lessons in the same weekly slot"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [delete]
func (h *LessonHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	future := false
	if raw := strings.TrimSpace(c.Query("deleteFuture")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, bindError(err, "deleteFuture must be a boolean"))
			return
		}
		future = parsed
	}
	result, err := h.lessons.Delete(c.Request.Context(), c.Param("id"), future, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkViewed godoc
// @Summary Acknowledge the latest changes of a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/viewed [post]
func (h *LessonHandler) MarkViewed(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	receipt, err := h.receipts.MarkViewed(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}

// Unseen godoc
// @Summary Reschedules and cancellations the caller has not seen
// @Tags Lessons
// @Produce json
// @Param since query string false "Lower bound (RFC 3339), defaults to 30 days ago"
// @Success 200 {object} response.Envelope
// @Router /lessons/unseen [get]
func (h *LessonHandler) Unseen(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	since, err := timeQuery(c, "since")
	if err != nil {
		response.Error(c, err)
		return
	}
	changes, err := h.receipts.ListUnseenChanges(c.Request.Context(), actor, since)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(changes))
	response.JSON(c, http.StatusOK, changes, nil, middleware.ExtractMeta(c))
}
