package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// PostgresStore implements Store on top of the per-table repositories.
type PostgresStore struct {
	db            *sqlx.DB
	lessons       *LessonRepository
	teachers      *TeacherRepository
	enrollments   *EnrollmentRepository
	availability  *AvailabilityRepository
	changeRequest *ChangeRequestRepository
	holidays      *HolidayRepository
	audit         *LessonAuditRepository
	receipts      *ReadReceiptRepository
}

// NewPostgresStore wires the repositories around one connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:            db,
		lessons:       NewLessonRepository(db),
		teachers:      NewTeacherRepository(db),
		enrollments:   NewEnrollmentRepository(db),
		availability:  NewAvailabilityRepository(db),
		changeRequest: NewChangeRequestRepository(db),
		holidays:      NewHolidayRepository(db),
		audit:         NewLessonAuditRepository(db),
		receipts:      NewReadReceiptRepository(db),
	}
}

// WithTeacherLock opens a transaction and takes one transaction-scoped advisory
// lock per teacher, in sorted order, before running fn.
func (s *PostgresStore) WithTeacherLock(ctx context.Context, teacherIDs []string, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scheduling transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, teacherID := range LockOrder(teacherIDs) {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, teacherID); err != nil {
			return fmt.Errorf("lock teacher %s: %w", teacherID, err)
		}
	}

	if err = fn(&postgresTx{store: s, tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit scheduling transaction: %w", mapWriteError(err))
	}
	return nil
}

func (s *PostgresStore) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	return s.lessons.GetByID(ctx, nil, id)
}

func (s *PostgresStore) ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	return s.lessons.List(ctx, nil, filter)
}

func (s *PostgresStore) GetTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	return s.teachers.FindByID(ctx, nil, id)
}

func (s *PostgresStore) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	return s.teachers.List(ctx, nil, filter)
}

func (s *PostgresStore) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	return s.enrollments.FindByID(ctx, nil, id)
}

func (s *PostgresStore) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	return s.enrollments.List(ctx, nil, filter)
}

func (s *PostgresStore) ListSlots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	return s.availability.ListByTeacher(ctx, nil, teacherID)
}

func (s *PostgresStore) GetChangeRequest(ctx context.Context, id string) (*models.ChangeRequest, error) {
	return s.changeRequest.GetByID(ctx, nil, id)
}

func (s *PostgresStore) ListChangeRequests(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	return s.changeRequest.List(ctx, nil, filter)
}

func (s *PostgresStore) ListHolidays(ctx context.Context, from, to time.Time) ([]models.Holiday, error) {
	return s.holidays.ListBetween(ctx, from, to)
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, lessonID string) ([]models.LessonAuditEvent, error) {
	return s.audit.ListByLesson(ctx, lessonID)
}

func (s *PostgresStore) ListAuditEventsSince(ctx context.Context, filter models.AuditEventFilter) ([]models.LessonAuditEvent, error) {
	return s.audit.ListSince(ctx, filter)
}

func (s *PostgresStore) UpsertReadReceipt(ctx context.Context, receipt *models.ReadReceipt) error {
	return s.receipts.Upsert(ctx, receipt)
}

func (s *PostgresStore) ListReadReceipts(ctx context.Context, userID string, lessonIDs []string) ([]models.ReadReceipt, error) {
	return s.receipts.ListByUser(ctx, userID, lessonIDs)
}

// postgresTx routes every call through the locked transaction.
type postgresTx struct {
	store *PostgresStore
	tx    *sqlx.Tx
}

func (t *postgresTx) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	return t.store.lessons.GetByID(ctx, t.tx, id)
}

func (t *postgresTx) ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	return t.store.lessons.List(ctx, t.tx, filter)
}

func (t *postgresTx) GetTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	return t.store.teachers.FindByID(ctx, t.tx, id)
}

func (t *postgresTx) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	return t.store.teachers.List(ctx, t.tx, filter)
}

func (t *postgresTx) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	return t.store.enrollments.FindByID(ctx, t.tx, id)
}

func (t *postgresTx) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	return t.store.enrollments.List(ctx, t.tx, filter)
}

func (t *postgresTx) ListSlots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	return t.store.availability.ListByTeacher(ctx, t.tx, teacherID)
}

func (t *postgresTx) GetChangeRequest(ctx context.Context, id string) (*models.ChangeRequest, error) {
	return t.store.changeRequest.GetByID(ctx, t.tx, id)
}

func (t *postgresTx) ListChangeRequests(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	return t.store.changeRequest.List(ctx, t.tx, filter)
}

func (t *postgresTx) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	return t.store.lessons.Create(ctx, t.tx, lesson)
}

func (t *postgresTx) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	return t.store.lessons.Update(ctx, t.tx, lesson)
}

func (t *postgresTx) DeleteLessons(ctx context.Context, ids []string) (int, error) {
	return t.store.lessons.DeleteByIDs(ctx, t.tx, ids)
}

func (t *postgresTx) ReplaceSlots(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error {
	return t.store.availability.Replace(ctx, t.tx, teacherID, slots)
}

func (t *postgresTx) CreateChangeRequest(ctx context.Context, request *models.ChangeRequest) error {
	return t.store.changeRequest.Create(ctx, t.tx, request)
}

func (t *postgresTx) UpdateChangeRequest(ctx context.Context, request *models.ChangeRequest) error {
	return t.store.changeRequest.UpdateResolution(ctx, t.tx, request)
}

func (t *postgresTx) AppendAuditEvent(ctx context.Context, event *models.LessonAuditEvent) error {
	return t.store.audit.Append(ctx, t.tx, event)
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*postgresTx)(nil)
)
