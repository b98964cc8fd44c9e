package memory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
)

// tx buffers writes. A nil map value marks a deletion.
type tx struct {
	store          *Store
	lessons        map[string]*models.Lesson
	changeRequests map[string]*models.ChangeRequest
	slots          map[string][]models.AvailabilitySlot
	audit          []models.LessonAuditEvent
}

func newTx(s *Store) *tx {
	return &tx{
		store:          s,
		lessons:        make(map[string]*models.Lesson),
		changeRequests: make(map[string]*models.ChangeRequest),
		slots:          make(map[string][]models.AvailabilitySlot),
	}
}

func (t *tx) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	if lesson, ok := t.lessons[id]; ok {
		if lesson == nil {
			return nil, sql.ErrNoRows
		}
		copied := *lesson
		return &copied, nil
	}
	return t.store.GetLesson(ctx, id)
}

func (t *tx) ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	unlimited := filter
	unlimited.Limit = 0
	committed, err := t.store.ListLessons(ctx, unlimited)
	if err != nil {
		return nil, err
	}
	out := make([]models.Lesson, 0, len(committed))
	for _, lesson := range committed {
		if _, overridden := t.lessons[lesson.ID]; overridden {
			continue
		}
		out = append(out, lesson)
	}
	for _, lesson := range t.lessons {
		if lesson != nil && matchLesson(*lesson, filter) {
			out = append(out, *lesson)
		}
	}
	return limitLessons(sortLessons(out), filter.Limit), nil
}

func (t *tx) GetTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	return t.store.GetTeacher(ctx, id)
}

func (t *tx) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	return t.store.ListTeachers(ctx, filter)
}

func (t *tx) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	return t.store.GetEnrollment(ctx, id)
}

func (t *tx) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	return t.store.ListEnrollments(ctx, filter)
}

func (t *tx) ListSlots(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	if slots, ok := t.slots[teacherID]; ok {
		return append([]models.AvailabilitySlot(nil), slots...), nil
	}
	return t.store.ListSlots(ctx, teacherID)
}

func (t *tx) GetChangeRequest(ctx context.Context, id string) (*models.ChangeRequest, error) {
	if request, ok := t.changeRequests[id]; ok {
		if request == nil {
			return nil, sql.ErrNoRows
		}
		copied := *request
		return &copied, nil
	}
	return t.store.GetChangeRequest(ctx, id)
}

func (t *tx) ListChangeRequests(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	unpaged := filter
	unpaged.Limit, unpaged.Offset = 1<<30, 0
	committed, err := t.store.ListChangeRequests(ctx, unpaged)
	if err != nil {
		return nil, err
	}
	out := make([]models.ChangeRequest, 0, len(committed))
	for _, request := range committed {
		if _, overridden := t.changeRequests[request.ID]; !overridden {
			out = append(out, request)
		}
	}
	for _, request := range t.changeRequests {
		if request != nil && matchChangeRequest(*request, filter) {
			out = append(out, *request)
		}
	}
	return pageChangeRequests(out, filter), nil
}

func (t *tx) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusConfirmed
	}
	lesson.Normalize()
	now := t.store.now()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	if err := t.checkOverlap(ctx, *lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	copied := *lesson
	t.lessons[lesson.ID] = &copied
	return nil
}

func (t *tx) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	if _, err := t.GetLesson(ctx, lesson.ID); err != nil {
		return err
	}
	lesson.Normalize()
	lesson.UpdatedAt = t.store.now()
	if err := t.checkOverlap(ctx, *lesson); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	copied := *lesson
	t.lessons[lesson.ID] = &copied
	return nil
}

func (t *tx) DeleteLessons(ctx context.Context, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		if _, err := t.GetLesson(ctx, id); err != nil {
			continue
		}
		t.lessons[id] = nil
		count++
	}
	return count, nil
}

func (t *tx) ReplaceSlots(_ context.Context, teacherID string, slots []models.AvailabilitySlot) error {
	replaced := make([]models.AvailabilitySlot, len(slots))
	for i := range slots {
		slots[i].TeacherID = teacherID
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		replaced[i] = slots[i]
	}
	t.slots[teacherID] = replaced
	return nil
}

func (t *tx) CreateChangeRequest(ctx context.Context, request *models.ChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ChangeRequestStatusPending
	}
	now := t.store.now()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.Status.Open() {
		open, err := t.ListChangeRequests(ctx, models.ChangeRequestFilter{
			LessonID: request.LessonID,
			Statuses: []models.ChangeRequestStatus{models.ChangeRequestStatusPending, models.ChangeRequestStatusTeacherRejected},
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return fmt.Errorf("create change request: %w", repository.ErrOpenChangeRequestExists)
		}
	}
	copied := *request
	t.changeRequests[request.ID] = &copied
	return nil
}

func (t *tx) UpdateChangeRequest(ctx context.Context, request *models.ChangeRequest) error {
	current, err := t.GetChangeRequest(ctx, request.ID)
	if err != nil {
		return err
	}
	if !current.Status.Open() {
		return sql.ErrNoRows
	}
	updated := *current
	updated.Status = request.Status
	updated.ResolvedBy = request.ResolvedBy
	updated.ResolvedAt = request.ResolvedAt
	updated.UpdatedAt = t.store.now()
	request.UpdatedAt = updated.UpdatedAt
	t.changeRequests[request.ID] = &updated
	return nil
}

func (t *tx) AppendAuditEvent(_ context.Context, event *models.LessonAuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Detail = emptyDetail(event.Detail)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = t.store.now()
	}
	t.audit = append(t.audit, *event)
	return nil
}

func (t *tx) checkOverlap(ctx context.Context, lesson models.Lesson) error {
	if !lesson.Status.Occupies() {
		return nil
	}
	start, end := lesson.Window()
	others, err := t.ListLessons(ctx, models.LessonFilter{
		TeacherID:     lesson.TeacherID,
		OnlyOccupying: true,
		From:          &start,
		To:            &end,
		ExcludeID:     lesson.ID,
	})
	if err != nil {
		return err
	}
	if len(others) > 0 {
		return repository.ErrLessonOverlap
	}
	return nil
}

var _ repository.Tx = (*tx)(nil)
