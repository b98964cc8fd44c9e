// Package memory is an in-process scheduling store used in development mode and tests.
// Readers share an RWMutex and never wait on each other; writers of a teacher are
// serialised by keyed locks and their changes become visible atomically on commit.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
)

// Store keeps every scheduling table in maps.
type Store struct {
	mu             sync.RWMutex
	lessons        map[string]models.Lesson
	teachers       map[string]models.Teacher
	enrollments    map[string]models.Enrollment
	slots          map[string][]models.AvailabilitySlot
	changeRequests map[string]models.ChangeRequest
	holidays       map[string]models.Holiday
	audit          []models.LessonAuditEvent
	receipts       map[string]models.ReadReceipt

	locks *keyedLocks
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		lessons:        make(map[string]models.Lesson),
		teachers:       make(map[string]models.Teacher),
		enrollments:    make(map[string]models.Enrollment),
		slots:          make(map[string][]models.AvailabilitySlot),
		changeRequests: make(map[string]models.ChangeRequest),
		holidays:       make(map[string]models.Holiday),
		receipts:       make(map[string]models.ReadReceipt),
		locks:          newKeyedLocks(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// PutTeacher inserts or replaces reference teacher data.
func (s *Store) PutTeacher(teacher models.Teacher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teachers[teacher.ID] = cloneTeacher(teacher)
}

// PutEnrollment inserts or replaces reference enrollment data.
func (s *Store) PutEnrollment(enrollment models.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[enrollment.ID] = enrollment
}

// PutHoliday flags a date.
func (s *Store) PutHoliday(holiday models.Holiday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holidays[holiday.Date.Format("2006-01-02")] = holiday
}

// WithTeacherLock runs fn with the teachers' keyed locks held and applies its
// buffered writes atomically when fn succeeds.
func (s *Store) WithTeacherLock(ctx context.Context, teacherIDs []string, fn func(repository.Tx) error) error {
	release, err := s.locks.acquire(ctx, repository.LockOrder(teacherIDs))
	if err != nil {
		return fmt.Errorf("lock teachers: %w", err)
	}
	defer release()

	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) GetLesson(_ context.Context, id string) (*models.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lesson, ok := s.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &lesson, nil
}

func (s *Store) ListLessons(_ context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lesson, 0)
	for _, lesson := range s.lessons {
		if matchLesson(lesson, filter) {
			out = append(out, lesson)
		}
	}
	return limitLessons(sortLessons(out), filter.Limit), nil
}

func (s *Store) GetTeacher(_ context.Context, id string) (*models.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teacher, ok := s.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	teacher = cloneTeacher(teacher)
	return &teacher, nil
}

func (s *Store) ListTeachers(_ context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := toSet(filter.IDs)
	out := make([]models.Teacher, 0, len(s.teachers))
	for _, teacher := range s.teachers {
		if len(ids) > 0 {
			if _, ok := ids[teacher.ID]; !ok {
				continue
			}
		}
		if filter.Status != "" && teacher.Status != filter.Status {
			continue
		}
		out = append(out, cloneTeacher(teacher))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetEnrollment(_ context.Context, id string) (*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enrollment, ok := s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

func (s *Store) ListEnrollments(_ context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := toSet(filter.IDs)
	out := make([]models.Enrollment, 0, len(s.enrollments))
	for _, enrollment := range s.enrollments {
		if len(ids) > 0 {
			if _, ok := ids[enrollment.ID]; !ok {
				continue
			}
		}
		if len(filter.Statuses) > 0 && !containsEnrollmentStatus(filter.Statuses, enrollment.Status) {
			continue
		}
		if filter.StudentUserID != "" && enrollment.StudentUserID != filter.StudentUserID {
			continue
		}
		out = append(out, enrollment)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentName != out[j].StudentName {
			return out[i].StudentName < out[j].StudentName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListSlots(_ context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AvailabilitySlot(nil), s.slots[teacherID]...), nil
}

func (s *Store) GetChangeRequest(_ context.Context, id string) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.changeRequests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &request, nil
}

func (s *Store) ListChangeRequests(_ context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChangeRequest, 0)
	for _, request := range s.changeRequests {
		if matchChangeRequest(request, filter) {
			out = append(out, request)
		}
	}
	return pageChangeRequests(out, filter), nil
}

func (s *Store) ListHolidays(_ context.Context, from, to time.Time) ([]models.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := from.Format("2006-01-02"), to.Format("2006-01-02")
	out := make([]models.Holiday, 0)
	for key, holiday := range s.holidays {
		if key >= lo && key <= hi {
			out = append(out, holiday)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ListAuditEvents(_ context.Context, lessonID string) ([]models.LessonAuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LessonAuditEvent, 0)
	for _, event := range s.audit {
		if event.LessonID == lessonID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *Store) ListAuditEventsSince(_ context.Context, filter models.AuditEventFilter) ([]models.LessonAuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	out := make([]models.LessonAuditEvent, 0)
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		event := s.audit[i]
		if !event.CreatedAt.After(filter.Since) {
			continue
		}
		if len(filter.Actions) > 0 && !containsAction(filter.Actions, event.Action) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (s *Store) UpsertReadReceipt(_ context.Context, receipt *models.ReadReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if receipt.ViewedAt.IsZero() {
		receipt.ViewedAt = s.now()
	}
	key := receipt.UserID + "\x00" + receipt.LessonID
	if existing, ok := s.receipts[key]; ok {
		receipt.ID = existing.ID
		if existing.ViewedAt.After(receipt.ViewedAt) {
			receipt.ViewedAt = existing.ViewedAt
		}
	}
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	s.receipts[key] = *receipt
	return nil
}

func (s *Store) ListReadReceipts(_ context.Context, userID string, lessonIDs []string) ([]models.ReadReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := toSet(lessonIDs)
	out := make([]models.ReadReceipt, 0)
	for _, receipt := range s.receipts {
		if receipt.UserID != userID {
			continue
		}
		if len(ids) > 0 {
			if _, ok := ids[receipt.LessonID]; !ok {
				continue
			}
		}
		out = append(out, receipt)
	}
	return out, nil
}

// commit validates the buffered writes against the current state and applies them.
func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, lesson := range t.lessons {
		if lesson == nil || !lesson.Status.Occupies() {
			continue
		}
		if s.overlapsLocked(t, id, *lesson) {
			return fmt.Errorf("commit lesson %s: %w", id, repository.ErrLessonOverlap)
		}
	}
	for id, request := range t.changeRequests {
		if request == nil || !request.Status.Open() {
			continue
		}
		if s.openRequestExistsLocked(t, id, request.LessonID) {
			return fmt.Errorf("commit change request %s: %w", id, repository.ErrOpenChangeRequestExists)
		}
	}

	for id, lesson := range t.lessons {
		if lesson == nil {
			delete(s.lessons, id)
			for crID, request := range s.changeRequests {
				if request.LessonID == id {
					delete(s.changeRequests, crID)
				}
			}
			continue
		}
		s.lessons[id] = *lesson
	}
	for id, lesson := range s.lessons {
		if lesson.RepositionOfID != nil {
			if _, ok := s.lessons[*lesson.RepositionOfID]; !ok {
				lesson.RepositionOfID = nil
				s.lessons[id] = lesson
			}
		}
	}
	for id, request := range t.changeRequests {
		if request != nil {
			if _, alive := s.lessons[request.LessonID]; alive {
				s.changeRequests[id] = *request
			}
		}
	}
	for teacherID, slots := range t.slots {
		s.slots[teacherID] = slots
	}
	s.audit = append(s.audit, t.audit...)
	return nil
}

// overlapsLocked checks the merged state: committed lessons overridden by the transaction's.
func (s *Store) overlapsLocked(t *tx, id string, lesson models.Lesson) bool {
	start, end := lesson.Window()
	check := func(otherID string, other models.Lesson) bool {
		if otherID == id || other.TeacherID != lesson.TeacherID || !other.Status.Occupies() {
			return false
		}
		os, oe := other.Window()
		return models.Overlaps(start, end, os, oe)
	}
	for otherID, other := range s.lessons {
		if _, overridden := t.lessons[otherID]; overridden {
			continue
		}
		if check(otherID, other) {
			return true
		}
	}
	for otherID, other := range t.lessons {
		if other != nil && check(otherID, *other) {
			return true
		}
	}
	return false
}

func (s *Store) openRequestExistsLocked(t *tx, id, lessonID string) bool {
	for otherID, other := range s.changeRequests {
		if _, overridden := t.changeRequests[otherID]; overridden {
			continue
		}
		if otherID != id && other.LessonID == lessonID && other.Status.Open() {
			return true
		}
	}
	for otherID, other := range t.changeRequests {
		if other != nil && otherID != id && other.LessonID == lessonID && other.Status.Open() {
			return true
		}
	}
	return false
}

func emptyDetail(detail types.JSONText) types.JSONText {
	if len(detail) == 0 {
		return types.JSONText(`{}`)
	}
	return detail
}

var _ repository.Store = (*Store)(nil)
