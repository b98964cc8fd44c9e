package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// statsInvalidator drops cached weekly statistics touched by a write.
type statsInvalidator interface {
	Invalidate(ctx context.Context, instants ...time.Time)
}

// LessonService owns every lesson write. Each write runs under the lock of the
// teachers it touches and records an audit event in the same transaction.
type LessonService struct {
	store      repository.Store
	checker    *ConflictChecker
	recurrence *RecurrenceGenerator
	cal        calendar
	stats      statsInvalidator
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// LessonServiceOption configures the service.
type LessonServiceOption func(*LessonService)

// WithStatsInvalidator registers the weekly statistics cache to refresh after writes.
func WithStatsInvalidator(stats statsInvalidator) LessonServiceOption {
	return func(s *LessonService) {
		s.stats = stats
	}
}

// WithLessonMetrics records write and conflict counters.
func WithLessonMetrics(metrics *MetricsService) LessonServiceOption {
	return func(s *LessonService) {
		s.metrics = metrics
	}
}

// WithLessonClock overrides the clock used for audit timestamps.
func WithLessonClock(now func() time.Time) LessonServiceOption {
	return func(s *LessonService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLessonService constructs the lesson service.
func NewLessonService(store repository.Store, checker *ConflictChecker, cfg config.SchedulingConfig, logger *zap.Logger, opts ...LessonServiceOption) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LessonService{
		store:      store,
		checker:    checker,
		recurrence: NewRecurrenceGenerator(cfg.Location, cfg.MaxRecurrenceWeeks),
		cal:        newCalendar(cfg.Location),
		validator:  validator.New(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Get returns a lesson by id.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}
	return lesson, nil
}

// List returns lessons matching the query ordered by start.
func (s *LessonService) List(ctx context.Context, query dto.LessonQuery) ([]models.Lesson, error) {
	if query.From != nil && query.To != nil && !query.From.Before(*query.To) {
		return nil, invalid("from must be before to")
	}
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, invalid(fmt.Sprintf("unknown lesson status %q", status))
		}
	}
	lessons, err := s.store.ListLessons(ctx, models.LessonFilter{
		TeacherID:    query.TeacherID,
		EnrollmentID: query.EnrollmentID,
		Statuses:     query.Status,
		From:         query.From,
		To:           query.To,
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to list lessons")
	}
	return lessons, nil
}

// History returns the audit trail of a lesson, oldest first. Deleted lessons keep their history.
func (s *LessonService) History(ctx context.Context, id string) ([]models.LessonAuditEvent, error) {
	events, err := s.store.ListAuditEvents(ctx, id)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson history")
	}
	if len(events) == 0 {
		if _, err := s.store.GetLesson(ctx, id); err != nil {
			return nil, storeError(err, "lesson not found", "failed to load lesson")
		}
	}
	return events, nil
}

// Create schedules the template lesson and every occurrence its repetition policy generates.
// By default one conflicting occurrence rejects the whole batch; with SkipConflicts the
// conflicting occurrences are reported and the rest are created.
func (s *LessonService) Create(ctx context.Context, req dto.CreateLessonRequest, actor models.Actor) (*dto.CreateLessonResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	enrollment, err := s.store.GetEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollment")
	}
	teacher, err := s.store.GetTeacher(ctx, req.TeacherID)
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to load teacher")
	}
	if err := checkLanguageMatch(enrollment, teacher); err != nil {
		s.metrics.RecordConflict(dto.AvailabilityCodeLanguageMismatch)
		return nil, err
	}
	starts, err := s.recurrence.Expand(req.StartAt, req.Repetition)
	if err != nil {
		return nil, err
	}
	skip := req.Repetition != nil && req.Repetition.SkipConflicts

	result := &dto.CreateLessonResult{Lessons: []models.Lesson{}}
	result.Warnings, err = s.holidayWarnings(ctx, starts)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTeacherLock(ctx, []string{teacher.ID}, func(tx repository.Tx) error {
		var conflicts []models.ScheduleConflict
		for _, start := range starts {
			verdict, err := s.checker.evaluate(ctx, tx, teacher, start, req.DurationMinutes, "")
			if err != nil {
				return err
			}
			if !verdict.Available {
				s.metrics.RecordConflict(verdict.Code)
				conflicts = append(conflicts, asConflict(verdict, start, req.DurationMinutes))
				if skip {
					result.Skipped = append(result.Skipped, dto.SkippedOccurrence{StartAt: start, Code: verdict.Code, Reason: verdict.Reason})
				}
				continue
			}
			if len(conflicts) > 0 && !skip {
				continue
			}
			lesson := models.Lesson{
				EnrollmentID:    enrollment.ID,
				TeacherID:       teacher.ID,
				Status:          models.LessonStatusConfirmed,
				StartAt:         start,
				DurationMinutes: req.DurationMinutes,
				Notes:           req.Notes,
				CreatedByName:   actor.Label(),
			}
			if err := tx.CreateLesson(ctx, &lesson); err != nil {
				return storeError(err, "lesson not found", "failed to create lesson")
			}
			if err := s.appendAudit(ctx, tx, lesson.ID, actor, models.LessonAuditCreated, map[string]interface{}{
				"teacherId":       lesson.TeacherID,
				"startAt":         lesson.StartAt,
				"durationMinutes": lesson.DurationMinutes,
			}); err != nil {
				return err
			}
			result.Lessons = append(result.Lessons, lesson)
		}
		if len(conflicts) > 0 && (!skip || len(result.Lessons) == 0) {
			return conflictError(batchConflictMessage(conflicts, len(starts)), conflicts)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to create lessons")
	}

	result.Count = len(result.Lessons)
	created := make([]time.Time, 0, result.Count)
	for _, lesson := range result.Lessons {
		created = append(created, lesson.StartAt)
	}
	s.metrics.RecordLessonWrite("create", result.Count)
	s.invalidateStats(ctx, created...)
	s.logger.Info("lessons scheduled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("teacher_id", teacher.ID),
		zap.Int("created", result.Count),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// Update edits one lesson. Moving or reassigning a CONFIRMED lesson turns it into a REPOSICAO,
// and any edit that leaves the lesson occupying time is re-validated.
func (s *LessonService) Update(ctx context.Context, id string, req dto.UpdateLessonRequest, actor models.Actor) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	current, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}
	lockIDs := []string{current.TeacherID}
	if req.TeacherID != nil {
		lockIDs = append(lockIDs, *req.TeacherID)
	}

	edit := lessonEdit{
		teacherID: req.TeacherID,
		startAt:   req.StartAt,
		duration:  req.DurationMinutes,
		status:    req.Status,
		notes:     req.Notes,
	}
	var updated *models.Lesson
	err = s.store.WithTeacherLock(ctx, lockIDs, func(tx repository.Tx) error {
		fresh, err := s.lockedLesson(ctx, tx, id, current.TeacherID)
		if err != nil {
			return err
		}
		updated, err = s.applyEdit(ctx, tx, fresh, edit, actor, "")
		return err
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to update lesson")
	}

	s.metrics.RecordLessonWrite("update", 1)
	s.invalidateStats(ctx, current.StartAt, updated.StartAt)
	return updated, nil
}

// Cancel marks a lesson CANCELLED, freeing the teacher's time.
func (s *LessonService) Cancel(ctx context.Context, id, reason string, actor models.Actor) (*models.Lesson, error) {
	current, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}

	status := models.LessonStatusCancelled
	var cancelled *models.Lesson
	err = s.store.WithTeacherLock(ctx, []string{current.TeacherID}, func(tx repository.Tx) error {
		fresh, err := s.lockedLesson(ctx, tx, id, current.TeacherID)
		if err != nil {
			return err
		}
		if fresh.Status == models.LessonStatusCancelled {
			return appErrors.Clone(appErrors.ErrConflict, "lesson is already cancelled")
		}
		cancelled, err = s.applyEdit(ctx, tx, fresh, lessonEdit{status: &status, reason: reason}, actor, "")
		return err
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to cancel lesson")
	}

	s.metrics.RecordLessonWrite("cancel", 1)
	s.invalidateStats(ctx, cancelled.StartAt)
	return cancelled, nil
}

// CancelWithReposition cancels a lesson and then tries to create its makeup lesson.
// The cancellation stands even when the reposition fails; the failure is reported in the result.
func (s *LessonService) CancelWithReposition(ctx context.Context, id string, req dto.CancelLessonRequest, actor models.Actor) (*dto.CancelLessonResult, error) {
	if req.Reposition != nil {
		if err := s.validator.Struct(req.Reposition); err != nil {
			return nil, validationError(err)
		}
	}
	cancelled, err := s.Cancel(ctx, id, req.Reason, actor)
	if err != nil {
		return nil, err
	}
	result := &dto.CancelLessonResult{Cancelled: *cancelled}
	if req.Reposition == nil {
		return result, nil
	}

	reposition, err := s.createReposition(ctx, cancelled, *req.Reposition, actor)
	if err != nil {
		appErr := appErrors.FromError(err)
		result.RepositionError = appErr.Message
		result.RepositionErrorCode = appErr.Code
		result.RepositionDetails = appErr.Details
		s.metrics.RecordRepositionFailure()
		s.logger.Warn("reposition failed after cancellation",
			zap.String("lesson_id", cancelled.ID),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
		return result, nil
	}
	result.Reposition = reposition
	return result, nil
}

func (s *LessonService) createReposition(ctx context.Context, cancelled *models.Lesson, req dto.RepositionRequest, actor models.Actor) (*models.Lesson, error) {
	enrollment, err := s.store.GetEnrollment(ctx, cancelled.EnrollmentID)
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollment")
	}
	teacher, err := s.store.GetTeacher(ctx, req.TeacherID)
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to load teacher")
	}
	if err := checkLanguageMatch(enrollment, teacher); err != nil {
		s.metrics.RecordConflict(dto.AvailabilityCodeLanguageMismatch)
		return nil, err
	}

	originalID := cancelled.ID
	lesson := models.Lesson{
		EnrollmentID:    enrollment.ID,
		TeacherID:       teacher.ID,
		Status:          models.LessonStatusReposicao,
		StartAt:         req.StartAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		CreatedByName:   actor.Label(),
		RepositionOfID:  &originalID,
	}
	err = s.store.WithTeacherLock(ctx, []string{teacher.ID}, func(tx repository.Tx) error {
		verdict, err := s.checker.evaluate(ctx, tx, teacher, lesson.StartAt, lesson.DurationMinutes, "")
		if err != nil {
			return err
		}
		if !verdict.Available {
			s.metrics.RecordConflict(verdict.Code)
			return conflictError(verdict.Reason, []models.ScheduleConflict{asConflict(verdict, lesson.StartAt, lesson.DurationMinutes)})
		}
		if err := tx.CreateLesson(ctx, &lesson); err != nil {
			return storeError(err, "lesson not found", "failed to create reposition")
		}
		if err := s.appendAudit(ctx, tx, lesson.ID, actor, models.LessonAuditRepositionCreated, map[string]interface{}{
			"repositionOf": originalID,
			"teacherId":    lesson.TeacherID,
			"startAt":      lesson.StartAt,
		}); err != nil {
			return err
		}
		return s.appendAudit(ctx, tx, originalID, actor, models.LessonAuditRepositionCreated, map[string]interface{}{
			"repositionId": lesson.ID,
		})
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to create reposition")
	}

	s.metrics.RecordLessonWrite("reposition", 1)
	s.invalidateStats(ctx, lesson.StartAt)
	return &lesson, nil
}

// Delete removes a lesson. With future set it also removes the later lessons of the same
// enrollment that share its weekday and time of day.
func (s *LessonService) Delete(ctx context.Context, id string, future bool, actor models.Actor) (*dto.DeleteLessonResult, error) {
	target, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}

	lockIDs := []string{target.TeacherID}
	if future {
		from := target.StartAt
		later, err := s.store.ListLessons(ctx, models.LessonFilter{EnrollmentID: target.EnrollmentID, StartFrom: &from})
		if err != nil {
			return nil, storeError(err, "lesson not found", "failed to list lessons")
		}
		for _, lesson := range later {
			if lesson.ID != target.ID && s.sameWeeklySlot(lesson.StartAt, target.StartAt) {
				lockIDs = append(lockIDs, lesson.TeacherID)
			}
		}
	}
	locked := make(map[string]struct{}, len(lockIDs))
	for _, teacherID := range lockIDs {
		locked[teacherID] = struct{}{}
	}

	var removed []models.Lesson
	err = s.store.WithTeacherLock(ctx, lockIDs, func(tx repository.Tx) error {
		fresh, err := s.lockedLesson(ctx, tx, id, target.TeacherID)
		if err != nil {
			return err
		}
		removed = []models.Lesson{*fresh}
		if future {
			from := fresh.StartAt
			later, err := tx.ListLessons(ctx, models.LessonFilter{EnrollmentID: fresh.EnrollmentID, StartFrom: &from})
			if err != nil {
				return storeError(err, "lesson not found", "failed to list lessons")
			}
			for _, lesson := range later {
				if lesson.ID == fresh.ID || !s.sameWeeklySlot(lesson.StartAt, fresh.StartAt) {
					continue
				}
				if _, ok := locked[lesson.TeacherID]; !ok {
					return appErrors.Clone(appErrors.ErrConflict, "lesson was reassigned concurrently, retry the request")
				}
				removed = append(removed, lesson)
			}
		}

		ids := make([]string, 0, len(removed))
		for _, lesson := range removed {
			ids = append(ids, lesson.ID)
			if err := s.appendAudit(ctx, tx, lesson.ID, actor, models.LessonAuditDeleted, map[string]interface{}{
				"teacherId": lesson.TeacherID,
				"startAt":   lesson.StartAt,
				"status":    lesson.Status,
			}); err != nil {
				return err
			}
		}
		if _, err := tx.DeleteLessons(ctx, ids); err != nil {
			return storeError(err, "lesson not found", "failed to delete lessons")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to delete lessons")
	}

	instants := make([]time.Time, 0, len(removed))
	for _, lesson := range removed {
		instants = append(instants, lesson.StartAt)
	}
	s.metrics.RecordLessonWrite("delete", len(removed))
	s.invalidateStats(ctx, instants...)
	return &dto.DeleteLessonResult{Count: len(removed)}, nil
}

// lessonEdit carries the optional changes applied by applyEdit.
type lessonEdit struct {
	teacherID *string
	startAt   *time.Time
	duration  *int
	status    *models.LessonStatus
	notes     *string
	reason    string
}

// lockedLesson re-reads a lesson inside tx and fails when its teacher changed since the locks were chosen.
func (s *LessonService) lockedLesson(ctx context.Context, tx repository.Tx, id, lockedTeacherID string) (*models.Lesson, error) {
	lesson, err := tx.GetLesson(ctx, id)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}
	if lesson.TeacherID != lockedTeacherID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "lesson was reassigned concurrently, retry the request")
	}
	return lesson, nil
}

// applyEdit validates and persists an edit inside tx. A non-empty action overrides the
// audit action derived from the change.
func (s *LessonService) applyEdit(ctx context.Context, tx repository.Tx, current *models.Lesson, edit lessonEdit, actor models.Actor, action models.LessonAuditAction) (*models.Lesson, error) {
	updated := *current
	if edit.notes != nil {
		updated.Notes = *edit.notes
	}
	if edit.teacherID != nil && *edit.teacherID != "" {
		updated.TeacherID = *edit.teacherID
	}
	if edit.startAt != nil {
		updated.StartAt = edit.startAt.UTC()
	}
	if edit.duration != nil {
		updated.DurationMinutes = *edit.duration
	}
	if err := checkDuration(updated.DurationMinutes); err != nil {
		return nil, err
	}

	reassigned := updated.TeacherID != current.TeacherID
	moved := !updated.StartAt.Equal(current.StartAt)
	resized := updated.DurationMinutes != current.DurationMinutes

	switch {
	case edit.status != nil:
		if !edit.status.Valid() {
			return nil, invalid(fmt.Sprintf("unknown lesson status %q", *edit.status))
		}
		updated.Status = *edit.status
	case (moved || reassigned) && current.Status == models.LessonStatusConfirmed:
		updated.Status = models.LessonStatusReposicao
	}

	reactivated := !current.Status.Occupies() && updated.Status.Occupies()
	if updated.Status.Occupies() && (moved || reassigned || resized || reactivated) {
		teacher, err := tx.GetTeacher(ctx, updated.TeacherID)
		if err != nil {
			return nil, storeError(err, "teacher not found", "failed to load teacher")
		}
		if reassigned {
			enrollment, err := tx.GetEnrollment(ctx, updated.EnrollmentID)
			if err != nil {
				return nil, storeError(err, "enrollment not found", "failed to load enrollment")
			}
			if err := checkLanguageMatch(enrollment, teacher); err != nil {
				s.metrics.RecordConflict(dto.AvailabilityCodeLanguageMismatch)
				return nil, err
			}
		}
		verdict, err := s.checker.evaluate(ctx, tx, teacher, updated.StartAt, updated.DurationMinutes, updated.ID)
		if err != nil {
			return nil, err
		}
		if !verdict.Available {
			s.metrics.RecordConflict(verdict.Code)
			return nil, conflictError(verdict.Reason, []models.ScheduleConflict{asConflict(verdict, updated.StartAt, updated.DurationMinutes)})
		}
	}

	if action == "" {
		switch {
		case updated.Status == models.LessonStatusCancelled && current.Status != models.LessonStatusCancelled:
			action = models.LessonAuditCancelled
		case moved || reassigned:
			action = models.LessonAuditRescheduled
		default:
			action = models.LessonAuditUpdated
		}
	}

	if err := tx.UpdateLesson(ctx, &updated); err != nil {
		return nil, storeError(err, "lesson not found", "failed to update lesson")
	}

	detail := map[string]interface{}{
		"before": lessonSnapshot(current),
		"after":  lessonSnapshot(&updated),
	}
	if edit.reason != "" {
		detail["reason"] = edit.reason
	}
	if err := s.appendAudit(ctx, tx, updated.ID, actor, action, detail); err != nil {
		return nil, err
	}
	return &updated, nil
}

func lessonSnapshot(lesson *models.Lesson) map[string]interface{} {
	return map[string]interface{}{
		"teacherId":       lesson.TeacherID,
		"startAt":         lesson.StartAt,
		"durationMinutes": lesson.DurationMinutes,
		"status":          lesson.Status,
	}
}

func (s *LessonService) appendAudit(ctx context.Context, tx repository.Tx, lessonID string, actor models.Actor, action models.LessonAuditAction, detail map[string]interface{}) error {
	if detail == nil {
		detail = map[string]interface{}{}
	}
	if actor.UserID != "" {
		detail["actorId"] = actor.UserID
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode lesson history")
	}
	event := &models.LessonAuditEvent{
		LessonID:  lessonID,
		Actor:     actor.Label(),
		ActorRole: string(actor.Role),
		Action:    action,
		Detail:    types.JSONText(payload),
		CreatedAt: s.now(),
	}
	if err := tx.AppendAuditEvent(ctx, event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record lesson history")
	}
	return nil
}

// holidayWarnings lists the generated dates that fall on a holiday. Holidays never block a write.
func (s *LessonService) holidayWarnings(ctx context.Context, starts []time.Time) ([]string, error) {
	if len(starts) == 0 {
		return nil, nil
	}
	from := s.cal.dayStart(starts[0])
	to := s.cal.dayStart(starts[len(starts)-1])
	holidays, err := s.store.ListHolidays(ctx, from, to)
	if err != nil {
		return nil, storeError(err, "holiday not found", "failed to load holidays")
	}
	if len(holidays) == 0 {
		return nil, nil
	}
	names := make(map[string]string, len(holidays))
	for _, holiday := range holidays {
		names[holiday.Date.Format("2006-01-02")] = holiday.Name
	}
	var warnings []string
	for _, start := range starts {
		date := s.cal.local(start).Format("2006-01-02")
		if name, ok := names[date]; ok {
			warnings = append(warnings, fmt.Sprintf("%s is a holiday (%s)", date, name))
		}
	}
	return warnings, nil
}

// sameWeeklySlot reports whether both instants fall on the same local weekday and time of day.
func (s *LessonService) sameWeeklySlot(a, b time.Time) bool {
	return s.cal.local(a).Weekday() == s.cal.local(b).Weekday() && s.cal.secondOfDay(a) == s.cal.secondOfDay(b)
}

func (s *LessonService) invalidateStats(ctx context.Context, instants ...time.Time) {
	if s.stats == nil || len(instants) == 0 {
		return
	}
	s.stats.Invalidate(ctx, instants...)
}

func batchConflictMessage(conflicts []models.ScheduleConflict, total int) string {
	if len(conflicts) == 1 {
		return conflicts[0].Reason
	}
	return fmt.Sprintf("%d of %d occurrences conflict with the teacher's schedule", len(conflicts), total)
}
