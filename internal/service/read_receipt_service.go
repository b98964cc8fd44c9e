package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
)

const defaultUnseenWindow = 30 * 24 * time.Hour

var unseenActions = []models.LessonAuditAction{
	models.LessonAuditRescheduled,
	models.LessonAuditCancelled,
	models.LessonAuditChangeRequestApproved,
}

// ReadReceiptService tracks which lesson changes each user has acknowledged.
type ReadReceiptService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewReadReceiptService constructs the service.
func NewReadReceiptService(store repository.Store, logger *zap.Logger) *ReadReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadReceiptService{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// MarkViewed records that actor has seen the lesson as of now. Repeated calls only move the mark forward.
func (s *ReadReceiptService) MarkViewed(ctx context.Context, actor models.Actor, lessonID string) (*models.ReadReceipt, error) {
	if actor.UserID == "" {
		return nil, invalid("user is required")
	}
	if _, err := s.store.GetLesson(ctx, lessonID); err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}
	receipt := &models.ReadReceipt{
		UserID:   actor.UserID,
		Role:     actor.Role,
		LessonID: lessonID,
		ViewedAt: s.now(),
	}
	if err := s.store.UpsertReadReceipt(ctx, receipt); err != nil {
		return nil, storeError(err, "lesson not found", "failed to record read receipt")
	}
	return receipt, nil
}

// ListUnseenChanges returns reschedules and cancellations after since that actor has not viewed,
// newest first. Changes made by actor are never reported back to them.
func (s *ReadReceiptService) ListUnseenChanges(ctx context.Context, actor models.Actor, since *time.Time) ([]dto.UnseenChange, error) {
	from := s.now().Add(-defaultUnseenWindow)
	if since != nil {
		from = since.UTC()
	}
	events, err := s.store.ListAuditEventsSince(ctx, models.AuditEventFilter{Actions: unseenActions, Since: from})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson history")
	}

	lessonIDs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, event := range events {
		if _, ok := seen[event.LessonID]; !ok {
			seen[event.LessonID] = struct{}{}
			lessonIDs = append(lessonIDs, event.LessonID)
		}
	}
	out := make([]dto.UnseenChange, 0)
	if len(lessonIDs) == 0 {
		return out, nil
	}

	lessons, err := s.store.ListLessons(ctx, models.LessonFilter{IDs: lessonIDs})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lessons")
	}
	byID := make(map[string]models.Lesson, len(lessons))
	for _, lesson := range lessons {
		byID[lesson.ID] = lesson
	}
	receipts, err := s.store.ListReadReceipts(ctx, actor.UserID, lessonIDs)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load read receipts")
	}
	var owned map[string]struct{}
	if actor.Role == models.RoleStudent {
		ids, err := studentEnrollmentIDs(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		owned = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			owned[id] = struct{}{}
		}
	}

	viewed := make(map[string]time.Time, len(receipts))
	for _, receipt := range receipts {
		viewed[receipt.LessonID] = receipt.ViewedAt
	}

	for _, event := range events {
		if eventActor(event) == actor.UserID {
			continue
		}
		if at, ok := viewed[event.LessonID]; ok && !at.Before(event.CreatedAt) {
			continue
		}
		change := dto.UnseenChange{Event: event}
		if lesson, ok := byID[event.LessonID]; ok {
			if actor.Role == models.RoleTeacher && lesson.TeacherID != actor.UserID {
				continue
			}
			if owned != nil {
				if _, mine := owned[lesson.EnrollmentID]; !mine {
					continue
				}
			}
			change.Lesson = &lesson
		} else if actor.Role == models.RoleTeacher || actor.Role == models.RoleStudent {
			continue
		}
		out = append(out, change)
	}
	return out, nil
}

// studentEnrollmentIDs returns the enrollments linked to a student account, never nil.
func studentEnrollmentIDs(ctx context.Context, store repository.Reader, userID string) ([]string, error) {
	ids := make([]string, 0)
	if userID == "" {
		return ids, nil
	}
	enrollments, err := store.ListEnrollments(ctx, models.EnrollmentFilter{StudentUserID: userID})
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollments")
	}
	for _, enrollment := range enrollments {
		ids = append(ids, enrollment.ID)
	}
	return ids, nil
}

func eventActor(event models.LessonAuditEvent) string {
	if len(event.Detail) == 0 {
		return ""
	}
	var detail struct {
		ActorID string `json:"actorId"`
	}
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return ""
	}
	return detail.ActorID
}
