package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler/internal/middleware"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/pkg/response"
)

type weeklyStatsService interface {
	Lookup(ctx context.Context, reference time.Time) (*models.WeeklyStats, bool, error)
	Report(ctx context.Context, reference time.Time) ([]byte, string, error)
}

// StatsHandler serves weekly scheduling statistics.
type StatsHandler struct {
	service weeklyStatsService
	now     func() time.Time
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service weeklyStatsService) *StatsHandler {
	return &StatsHandler{service: service, now: time.Now}
}

func (h *StatsHandler) reference(c *gin.Context) (time.Time, error) {
	weekStart, err := timeQuery(c, "weekStart")
	if err != nil || weekStart == nil {
		return h.now(), err
	}
	return *weekStart, nil
}

// Weekly godoc
// @Summary Weekly statistics
// @Tags Stats
// @Produce json
// @Param weekStart query string false "Any instant inside the wanted week (RFC 3339), defaults to now"
// @Success 200 {object} response.Envelope
// @Router /stats/weekly [get]
func (h *StatsHandler) Weekly(c *gin.Context) {
	reference, err := h.reference(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.service.Lookup(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Report godoc
// @Summary Weekly statistics as PDF
// @Tags Stats
// @Produce application/pdf
// @Param weekStart query string false "Any instant inside the wanted week (RFC 3339), defaults to now"
// @Success 200 {file} binary
// @Router /stats/weekly/report [get]
func (h *StatsHandler) Report(c *gin.Context) {
	reference, err := h.reference(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, filename, err := h.service.Report(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "application/pdf", filename, payload)
}
