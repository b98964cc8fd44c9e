package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// ChangeRequestService runs the renegotiation workflow: a request is decided by the
// lesson's teacher first and escalates to an admin when the teacher rejects it.
type ChangeRequestService struct {
	store     repository.Store
	lessons   *LessonService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewChangeRequestService constructs the service.
func NewChangeRequestService(store repository.Store, lessons *LessonService, logger *zap.Logger) *ChangeRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeRequestService{
		store:     store,
		lessons:   lessons,
		validator: validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a change request for a live lesson. A lesson has at most one open request.
func (s *ChangeRequestService) Create(ctx context.Context, req dto.CreateChangeRequestRequest, actor models.Actor) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	switch req.Type {
	case models.ChangeRequestTypeTrocaAula:
		if req.RequestedStartAt == nil {
			return nil, invalid("requestedStartAt is required for TROCA_AULA")
		}
	case models.ChangeRequestTypeTrocaProfessor:
		if req.RequestedTeacherID == nil || *req.RequestedTeacherID == "" {
			return nil, invalid("requestedTeacherId is required for TROCA_PROFESSOR")
		}
	}

	lesson, err := s.store.GetLesson(ctx, req.LessonID)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}
	if err := s.authorizeStudent(ctx, actor, lesson.EnrollmentID); err != nil {
		return nil, err
	}
	if req.RequestedTeacherID != nil && *req.RequestedTeacherID != "" {
		teacher, err := s.store.GetTeacher(ctx, *req.RequestedTeacherID)
		if err != nil {
			return nil, storeError(err, "requested teacher not found", "failed to load teacher")
		}
		enrollment, err := s.store.GetEnrollment(ctx, lesson.EnrollmentID)
		if err != nil {
			return nil, storeError(err, "enrollment not found", "failed to load enrollment")
		}
		if err := checkLanguageMatch(enrollment, teacher); err != nil {
			return nil, err
		}
	}

	request := &models.ChangeRequest{
		LessonID:           lesson.ID,
		EnrollmentID:       lesson.EnrollmentID,
		TeacherID:          lesson.TeacherID,
		Type:               req.Type,
		Status:             models.ChangeRequestStatusPending,
		RequestedStartAt:   utcPtr(req.RequestedStartAt),
		RequestedTeacherID: req.RequestedTeacherID,
		Notes:              req.Notes,
		RequestedBy:        actor.UserID,
	}
	err = s.store.WithTeacherLock(ctx, []string{lesson.TeacherID}, func(tx repository.Tx) error {
		fresh, err := tx.GetLesson(ctx, lesson.ID)
		if err != nil {
			return storeError(err, "lesson not found", "failed to load lesson")
		}
		if fresh.Status == models.LessonStatusCancelled {
			return appErrors.Clone(appErrors.ErrConflict, "cannot request changes to a cancelled lesson")
		}
		open, err := tx.ListChangeRequests(ctx, models.ChangeRequestFilter{
			LessonID: lesson.ID,
			Statuses: []models.ChangeRequestStatus{models.ChangeRequestStatusPending, models.ChangeRequestStatusTeacherRejected},
			Limit:    1,
		})
		if err != nil {
			return storeError(err, "change request not found", "failed to list change requests")
		}
		if len(open) > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "lesson already has an open change request")
		}
		request.TeacherID = fresh.TeacherID
		return tx.CreateChangeRequest(ctx, request)
	})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to create change request")
	}

	s.logger.Info("change request opened",
		zap.String("change_request_id", request.ID),
		zap.String("lesson_id", request.LessonID),
		zap.String("type", string(request.Type)),
	)
	return request, nil
}

// Get returns one change request.
func (s *ChangeRequestService) Get(ctx context.Context, id string, actor models.Actor) (*models.ChangeRequest, error) {
	request, err := s.store.GetChangeRequest(ctx, id)
	if err != nil {
		return nil, storeError(err, "change request not found", "failed to load change request")
	}
	if actor.Role == models.RoleTeacher && request.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "change request belongs to another teacher")
	}
	if err := s.authorizeStudent(ctx, actor, request.EnrollmentID); err != nil {
		return nil, err
	}
	return request, nil
}

// authorizeStudent lets a STUDENT act only on enrollments linked to their account.
func (s *ChangeRequestService) authorizeStudent(ctx context.Context, actor models.Actor, enrollmentID string) error {
	if actor.Role != models.RoleStudent {
		return nil
	}
	enrollment, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return storeError(err, "enrollment not found", "failed to load enrollment")
	}
	if !enrollment.OwnedBy(actor.UserID) {
		return appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another student")
	}
	return nil
}

// List returns change requests. Teachers only see requests for their own lessons and
// students only those of their enrollments.
func (s *ChangeRequestService) List(ctx context.Context, query dto.ChangeRequestQuery, actor models.Actor) ([]models.ChangeRequest, error) {
	filter := models.ChangeRequestFilter{
		Statuses:  query.Status,
		TeacherID: query.TeacherID,
		LessonID:  query.LessonID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.UserID
	case models.RoleStudent:
		ids, err := studentEnrollmentIDs(ctx, s.store, actor.UserID)
		if err != nil {
			return nil, err
		}
		filter.EnrollmentIDs = ids
	}
	requests, err := s.store.ListChangeRequests(ctx, filter)
	if err != nil {
		return nil, storeError(err, "change request not found", "failed to list change requests")
	}
	return requests, nil
}

// Resolve applies a teacher or admin decision.
//
// The lesson's teacher decides PENDING requests: approval applies the requested change,
// rejection escalates the request to TEACHER_REJECTED. Admins decide any open request and
// may override the target teacher or time on approval.
func (s *ChangeRequestService) Resolve(ctx context.Context, id string, req dto.ResolveChangeRequestRequest, actor models.Actor) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	request, err := s.store.GetChangeRequest(ctx, id)
	if err != nil {
		return nil, storeError(err, "change request not found", "failed to load change request")
	}
	if err := s.authorize(request, req, actor); err != nil {
		return nil, err
	}

	lesson, err := s.store.GetLesson(ctx, request.LessonID)
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lesson")
	}
	target := resolutionTarget(request, req)
	lockIDs := []string{lesson.TeacherID}
	if target.teacherID != nil {
		lockIDs = append(lockIDs, *target.teacherID)
	}

	var resolved models.ChangeRequest
	err = s.store.WithTeacherLock(ctx, lockIDs, func(tx repository.Tx) error {
		fresh, err := tx.GetChangeRequest(ctx, id)
		if err != nil {
			return storeError(err, "change request not found", "failed to load change request")
		}
		if err := s.authorize(fresh, req, actor); err != nil {
			return err
		}
		resolved = *fresh

		if req.Action == models.ChangeRequestActionReject {
			if actor.Role == models.RoleTeacher {
				resolved.Status = models.ChangeRequestStatusTeacherRejected
			} else {
				resolved.Status = models.ChangeRequestStatusRejected
			}
		} else {
			current, err := s.lessons.lockedLesson(ctx, tx, fresh.LessonID, lesson.TeacherID)
			if err != nil {
				return err
			}
			if current.Status == models.LessonStatusCancelled {
				return appErrors.Clone(appErrors.ErrConflict, "lesson was cancelled after the request was opened")
			}
			if _, err := s.lessons.applyEdit(ctx, tx, current, target, actor, models.LessonAuditChangeRequestApproved); err != nil {
				return err
			}
			resolved.Status = models.ChangeRequestStatusApproved
		}

		if resolved.Status != models.ChangeRequestStatusTeacherRejected {
			resolvedBy := actor.UserID
			resolvedAt := s.now()
			resolved.ResolvedBy = &resolvedBy
			resolved.ResolvedAt = &resolvedAt
		}
		if err := tx.UpdateChangeRequest(ctx, &resolved); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "change request was resolved concurrently")
			}
			return storeError(err, "change request not found", "failed to update change request")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "change request not found", "failed to resolve change request")
	}

	if resolved.Status == models.ChangeRequestStatusApproved {
		s.lessons.metrics.RecordLessonWrite("change_request", 1)
		instants := []time.Time{lesson.StartAt}
		if target.startAt != nil {
			instants = append(instants, *target.startAt)
		}
		s.lessons.invalidateStats(ctx, instants...)
	}
	s.logger.Info("change request resolved",
		zap.String("change_request_id", resolved.ID),
		zap.String("status", string(resolved.Status)),
		zap.String("actor_role", string(actor.Role)),
	)
	return &resolved, nil
}

func (s *ChangeRequestService) authorize(request *models.ChangeRequest, req dto.ResolveChangeRequestRequest, actor models.Actor) error {
	if !request.Status.Open() {
		return appErrors.Clone(appErrors.ErrConflict, "change request is already resolved")
	}
	switch {
	case actor.Role.IsAdmin():
		return nil
	case actor.Role == models.RoleTeacher:
		if request.TeacherID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the lesson's teacher can decide this request")
		}
		if request.Status != models.ChangeRequestStatusPending {
			return appErrors.Clone(appErrors.ErrForbidden, "request is awaiting an admin decision")
		}
		if req.NewTeacherID != nil || req.NewStartAt != nil {
			return invalid("teachers cannot override the requested change")
		}
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions to decide change requests")
}

// resolutionTarget merges admin overrides over the requested values.
func resolutionTarget(request *models.ChangeRequest, req dto.ResolveChangeRequestRequest) lessonEdit {
	edit := lessonEdit{teacherID: request.RequestedTeacherID, startAt: request.RequestedStartAt}
	if req.NewTeacherID != nil && *req.NewTeacherID != "" {
		edit.teacherID = req.NewTeacherID
	}
	if req.NewStartAt != nil {
		edit.startAt = req.NewStartAt
	}
	if edit.teacherID != nil && *edit.teacherID == "" {
		edit.teacherID = nil
	}
	return edit
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
