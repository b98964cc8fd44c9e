package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
)

// ConflictChecker decides whether a teacher can take a time window.
type ConflictChecker struct {
	store     repository.Reader
	cal       calendar
	fanout    int
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConflictChecker constructs the checker.
func NewConflictChecker(store repository.Reader, cfg config.SchedulingConfig, metrics *MetricsService, logger *zap.Logger) *ConflictChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	fanout := cfg.FanoutLimit
	if fanout <= 0 {
		fanout = 8
	}
	return &ConflictChecker{
		store:     store,
		cal:       newCalendar(cfg.Location),
		fanout:    fanout,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
	}
}

// CheckAvailability evaluates one teacher for a window.
func (c *ConflictChecker) CheckAvailability(ctx context.Context, query dto.AvailabilityQuery) (*dto.AvailabilityResult, error) {
	if err := c.validator.Struct(query); err != nil {
		return nil, validationError(err)
	}
	teacher, err := c.store.GetTeacher(ctx, query.TeacherID)
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to load teacher")
	}
	result, err := c.evaluate(ctx, c.store, teacher, query.StartAt, query.DurationMinutes, query.ExcludeLessonID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckTeachers evaluates every active teacher for the same window concurrently.
// When an enrollment is given each result also reports the language match.
func (c *ConflictChecker) CheckTeachers(ctx context.Context, query dto.TeacherPickerQuery) ([]dto.AvailabilityResult, error) {
	if err := c.validator.Struct(query); err != nil {
		return nil, validationError(err)
	}
	var enrollment *models.Enrollment
	if query.EnrollmentID != "" {
		found, err := c.store.GetEnrollment(ctx, query.EnrollmentID)
		if err != nil {
			return nil, storeError(err, "enrollment not found", "failed to load enrollment")
		}
		enrollment = found
	}
	teachers, err := c.store.ListTeachers(ctx, models.TeacherFilter{Status: models.TeacherStatusActive})
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to list teachers")
	}

	results := make([]dto.AvailabilityResult, len(teachers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanout)
	for i := range teachers {
		g.Go(func() error {
			result, err := c.evaluate(gctx, c.store, &teachers[i], query.StartAt, query.DurationMinutes, query.ExcludeLessonID)
			if err != nil {
				return err
			}
			if enrollment != nil {
				match := languageMatches(enrollment, &teachers[i])
				result.LanguageMatch = &match
			}
			results[i] = *result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// evaluate runs the availability and double-booking checks against r, which is
// either the store or a transaction holding the teacher's lock.
func (c *ConflictChecker) evaluate(ctx context.Context, r repository.Reader, teacher *models.Teacher, start time.Time, durationMinutes int, excludeID string) (*dto.AvailabilityResult, error) {
	if err := checkDuration(durationMinutes); err != nil {
		return nil, err
	}
	start = start.UTC()
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	result := &dto.AvailabilityResult{TeacherID: teacher.ID, TeacherName: teacher.FullName}

	slots, err := r.ListSlots(ctx, teacher.ID)
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to load availability")
	}
	if len(slots) > 0 && !c.withinSlots(slots, start, durationMinutes) {
		result.Code = dto.AvailabilityCodeOutsideAvailability
		result.Reason = fmt.Sprintf("outside availability: %s is not available on %s", teacher.FullName, c.cal.formatSpan(start, end))
		c.metrics.RecordAvailabilityCheck(result.Code)
		return result, nil
	}

	lessons, err := r.ListLessons(ctx, models.LessonFilter{
		TeacherID:     teacher.ID,
		From:          &start,
		To:            &end,
		ExcludeID:     excludeID,
		OnlyOccupying: true,
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lessons")
	}
	for _, lesson := range lessons {
		lessonStart, lessonEnd := lesson.Window()
		if !models.Overlaps(start, end, lessonStart, lessonEnd) {
			continue
		}
		studentName := lesson.EnrollmentID
		if enrollment, err := r.GetEnrollment(ctx, lesson.EnrollmentID); err == nil {
			studentName = enrollment.StudentName
		}
		result.Code = dto.AvailabilityCodeDoubleBooked
		result.Reason = fmt.Sprintf("%s already teaches %s on %s", teacher.FullName, studentName, c.cal.formatSpan(lessonStart, lessonEnd))
		result.Conflict = &dto.ConflictingLesson{
			LessonID:     lesson.ID,
			EnrollmentID: lesson.EnrollmentID,
			StudentName:  studentName,
			TeacherID:    teacher.ID,
			TeacherName:  teacher.FullName,
			StartAt:      lessonStart,
			EndAt:        lessonEnd,
		}
		c.metrics.RecordAvailabilityCheck(result.Code)
		return result, nil
	}

	result.Available = true
	c.metrics.RecordAvailabilityCheck("")
	return result, nil
}

// withinSlots reports whether the window fits inside the union of the teacher's
// slots on the window's local weekday. Windows crossing local midnight never fit.
func (c *ConflictChecker) withinSlots(slots []models.AvailabilitySlot, start time.Time, durationMinutes int) bool {
	weekday := int(c.cal.local(start).Weekday())
	startSec := c.cal.secondOfDay(start)
	endSec := startSec + durationMinutes*60
	if endSec > models.MinutesPerDay*60 {
		return false
	}
	for _, window := range mergeSlots(slots, weekday) {
		if startSec >= window.StartMinutes*60 && endSec <= window.EndMinutes*60 {
			return true
		}
	}
	return false
}

// mergeSlots returns the union of one weekday's slots as disjoint windows.
func mergeSlots(slots []models.AvailabilitySlot, weekday int) []models.AvailabilitySlot {
	day := make([]models.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		if slot.DayOfWeek == weekday {
			day = append(day, slot)
		}
	}
	sort.Slice(day, func(i, j int) bool { return day[i].StartMinutes < day[j].StartMinutes })

	merged := make([]models.AvailabilitySlot, 0, len(day))
	for _, slot := range day {
		last := len(merged) - 1
		if last >= 0 && slot.StartMinutes <= merged[last].EndMinutes {
			if slot.EndMinutes > merged[last].EndMinutes {
				merged[last].EndMinutes = slot.EndMinutes
			}
			continue
		}
		merged = append(merged, slot)
	}
	return merged
}

// asConflict converts an unavailable verdict into a conflict entry.
func asConflict(result *dto.AvailabilityResult, start time.Time, durationMinutes int) models.ScheduleConflict {
	conflict := models.ScheduleConflict{
		Code:        result.Code,
		Reason:      result.Reason,
		TeacherID:   result.TeacherID,
		TeacherName: result.TeacherName,
		StartAt:     start.UTC(),
		EndAt:       start.UTC().Add(time.Duration(durationMinutes) * time.Minute),
	}
	if result.Conflict != nil {
		conflict.LessonID = result.Conflict.LessonID
		conflict.EnrollmentID = result.Conflict.EnrollmentID
		conflict.StudentName = result.Conflict.StudentName
	}
	return conflict
}
