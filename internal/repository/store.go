package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

var (
	// ErrLessonOverlap is returned when a write would give a teacher two overlapping live lessons.
	ErrLessonOverlap = errors.New("lesson overlaps another live lesson of the same teacher")
	// ErrOpenChangeRequestExists is returned when a lesson already has an undecided change request.
	ErrOpenChangeRequestExists = errors.New("lesson already has an open change request")
)

// Reader is the read surface shared by the store and a locked transaction.
// Lookups of unknown IDs return sql.ErrNoRows.
type Reader interface {
	GetLesson(ctx context.Context, id string) (*models.Lesson, error)
	ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	GetTeacher(ctx context.Context, id string) (*models.Teacher, error)
	ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error)
	GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error)
	ListSlots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error)
	GetChangeRequest(ctx context.Context, id string) (*models.ChangeRequest, error)
	ListChangeRequests(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error)
}

// Tx is a write scope holding the locks of one or more teachers.
type Tx interface {
	Reader
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	UpdateLesson(ctx context.Context, lesson *models.Lesson) error
	DeleteLessons(ctx context.Context, ids []string) (int, error)
	ReplaceSlots(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error
	CreateChangeRequest(ctx context.Context, request *models.ChangeRequest) error
	UpdateChangeRequest(ctx context.Context, request *models.ChangeRequest) error
	AppendAuditEvent(ctx context.Context, event *models.LessonAuditEvent) error
}

// Store is the scheduling persistence boundary.
type Store interface {
	Reader
	// WithTeacherLock runs fn inside one transaction that serialises writers of the
	// given teachers. fn's error rolls the transaction back.
	WithTeacherLock(ctx context.Context, teacherIDs []string, fn func(Tx) error) error
	ListHolidays(ctx context.Context, from, to time.Time) ([]models.Holiday, error)
	ListAuditEvents(ctx context.Context, lessonID string) ([]models.LessonAuditEvent, error)
	ListAuditEventsSince(ctx context.Context, filter models.AuditEventFilter) ([]models.LessonAuditEvent, error)
	UpsertReadReceipt(ctx context.Context, receipt *models.ReadReceipt) error
	ListReadReceipts(ctx context.Context, userID string, lessonIDs []string) ([]models.ReadReceipt, error)
}

// LockOrder returns the distinct non-empty teacher IDs in the order locks must be taken.
func LockOrder(teacherIDs []string) []string {
	seen := make(map[string]struct{}, len(teacherIDs))
	out := make([]string, 0, len(teacherIDs))
	for _, id := range teacherIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
