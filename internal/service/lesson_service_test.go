package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/repository/memory"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

type statsSpy struct {
	mu       sync.Mutex
	instants []time.Time
}

func (s *statsSpy) Invalidate(_ context.Context, instants ...time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instants = append(s.instants, instants...)
}

func newLessonServiceForTest(t *testing.T) (*LessonService, *memory.Store, *statsSpy) {
	t.Helper()
	store := seededStore(t)
	spy := &statsSpy{}
	checker := NewConflictChecker(store, schedulingConfig(), nil, nil)
	svc := NewLessonService(store, checker, schedulingConfig(), nil, WithStatsInvalidator(spy), WithLessonMetrics(NewMetricsService()))
	return svc, store, spy
}

func conflictDetails(t *testing.T, err error) *models.ScheduleConflictError {
	t.Helper()
	require.True(t, appErrors.Is(err, appErrors.ErrConflict), "expected conflict, got %v", err)
	detail, ok := appErrors.FromError(err).Details.(*models.ScheduleConflictError)
	require.True(t, ok, "conflict should carry schedule details")
	return detail
}

func TestCreateLessonSingle(t *testing.T) {
	svc, _, spy := newLessonServiceForTest(t)

	result, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60, Notes: "first class",
	}, adminActor)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)

	lesson := result.Lessons[0]
	assert.Equal(t, models.LessonStatusConfirmed, lesson.Status)
	assert.Equal(t, "Secretaria", lesson.CreatedByName)
	assert.Equal(t, at(1, 11, 0), lesson.EndAt)
	assert.Equal(t, []time.Time{at(1, 10, 0)}, spy.instants)

	history, err := svc.History(context.Background(), lesson.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.LessonAuditCreated, history[0].Action)
	assert.Equal(t, "Secretaria", history[0].Actor)
}

func TestCreateLessonBatchRejectedOnConflict(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(8, 10, 30)})

	_, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60,
		Repetition: &dto.RepetitionPolicy{WeeklyCount: 3},
	}, adminActor)
	detail := conflictDetails(t, err)
	require.Len(t, detail.Conflicts, 1)
	assert.Equal(t, dto.AvailabilityCodeDoubleBooked, detail.Conflicts[0].Code)
	assert.Equal(t, at(8, 10, 0), detail.Conflicts[0].StartAt)
	assert.Equal(t, "Maria Alves", detail.Conflicts[0].StudentName)

	lessons, err := store.ListLessons(context.Background(), models.LessonFilter{EnrollmentID: "e-joao"})
	require.NoError(t, err)
	assert.Empty(t, lessons)
}

func TestCreateLessonBatchSkipsConflicts(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(8, 10, 30)})

	result, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60,
		Repetition: &dto.RepetitionPolicy{WeeklyCount: 3, SkipConflicts: true},
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, at(8, 10, 0), result.Skipped[0].StartAt)
	assert.Equal(t, dto.AvailabilityCodeDoubleBooked, result.Skipped[0].Code)
}

func TestCreateLessonSkipConflictsWithNothingLeftIsConflict(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	_, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60,
		Repetition: &dto.RepetitionPolicy{SkipConflicts: true},
	}, adminActor)
	conflictDetails(t, err)
}

func TestCreateLessonLanguageMismatch(t *testing.T) {
	svc, _, _ := newLessonServiceForTest(t)
	_, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-bruno", StartAt: at(1, 10, 0), DurationMinutes: 60,
	}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrLanguageMismatch))
}

func TestCreateLessonValidationAndLookups(t *testing.T) {
	svc, _, _ := newLessonServiceForTest(t)

	_, err := svc.Create(context.Background(), dto.CreateLessonRequest{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), dto.CreateLessonRequest{EnrollmentID: "nope", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Create(context.Background(), dto.CreateLessonRequest{EnrollmentID: "e-joao", TeacherID: "nope", StartAt: at(1, 10, 0), DurationMinutes: 60}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestLessonDurationIsBoundedToOneDay(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	existing := seedLesson(t, store, models.Lesson{EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	_, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 8, 0), DurationMinutes: 200000000,
	}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	huge := 200000000
	_, err = svc.Update(context.Background(), existing.ID, dto.UpdateLessonRequest{DurationMinutes: &huge}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	day := models.MaxLessonMinutes
	_, err = svc.Update(context.Background(), existing.ID, dto.UpdateLessonRequest{DurationMinutes: &day}, adminActor)
	require.NoError(t, err)

	unchanged, err := store.ListLessons(context.Background(), models.LessonFilter{EnrollmentID: "e-joao"})
	require.NoError(t, err)
	assert.Empty(t, unchanged)
}

func TestCreateLessonWarnsOnHoliday(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	store.PutHoliday(models.Holiday{Date: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), Name: "Feriado municipal"})

	result, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60,
		Repetition: &dto.RepetitionPolicy{WeeklyCount: 2},
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "2024-03-11")
}

func TestUpdateLessonMoveTurnsConfirmedIntoReposicao(t *testing.T) {
	svc, store, spy := newLessonServiceForTest(t)
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	newStart := at(2, 14, 0)
	updated, err := svc.Update(context.Background(), lesson.ID, dto.UpdateLessonRequest{StartAt: &newStart}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusReposicao, updated.Status)
	assert.Equal(t, newStart, updated.StartAt)
	assert.Contains(t, spy.instants, at(1, 10, 0))
	assert.Contains(t, spy.instants, newStart)

	history, err := svc.History(context.Background(), lesson.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.LessonAuditRescheduled, history[0].Action)
}

func TestUpdateLessonNotesKeepsStatus(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	notes := "bring the workbook"
	updated, err := svc.Update(context.Background(), lesson.ID, dto.UpdateLessonRequest{Notes: &notes}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusConfirmed, updated.Status)
	assert.Equal(t, notes, updated.Notes)

	history, err := svc.History(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LessonAuditUpdated, history[0].Action)
}

func TestUpdateLessonIntoConflictIsRejected(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(2, 14, 0)})
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	newStart := at(2, 14, 30)
	_, err := svc.Update(context.Background(), lesson.ID, dto.UpdateLessonRequest{StartAt: &newStart}, adminActor)
	conflictDetails(t, err)

	unchanged, err := svc.Get(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, at(1, 10, 0), unchanged.StartAt)
	assert.Equal(t, models.LessonStatusConfirmed, unchanged.Status)
}

func TestUpdateLessonReassignChecksLanguage(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	bruno := "t-bruno"
	_, err := svc.Update(context.Background(), lesson.ID, dto.UpdateLessonRequest{TeacherID: &bruno}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrLanguageMismatch))
}

func TestUpdateLessonReactivationIsRevalidated(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	cancelled := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0), Status: models.LessonStatusCancelled})
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	confirmed := models.LessonStatusConfirmed
	_, err := svc.Update(context.Background(), cancelled.ID, dto.UpdateLessonRequest{Status: &confirmed}, adminActor)
	conflictDetails(t, err)
}

func TestCancelLessonFreesTheSlot(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	cancelled, err := svc.Cancel(context.Background(), lesson.ID, "student travelling", adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCancelled, cancelled.Status)

	_, err = svc.Cancel(context.Background(), lesson.ID, "", adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	result, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60,
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	history, err := svc.History(context.Background(), lesson.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.LessonAuditCancelled, history[0].Action)
	assert.Contains(t, history[0].Detail.String(), "student travelling")
}

func TestCancelWithReposition(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	result, err := svc.CancelWithReposition(context.Background(), lesson.ID, dto.CancelLessonRequest{
		Reason:     "teacher sick",
		Reposition: &dto.RepositionRequest{TeacherID: "t-ana", StartAt: at(3, 10, 0), DurationMinutes: 60},
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCancelled, result.Cancelled.Status)
	require.NotNil(t, result.Reposition)
	assert.Empty(t, result.RepositionError)
	assert.Equal(t, models.LessonStatusReposicao, result.Reposition.Status)
	require.NotNil(t, result.Reposition.RepositionOfID)
	assert.Equal(t, lesson.ID, *result.Reposition.RepositionOfID)
}

func TestCancelWithRepositionReportsPartialFailure(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-maria", TeacherID: "t-ana", StartAt: at(3, 10, 0)})

	result, err := svc.CancelWithReposition(context.Background(), lesson.ID, dto.CancelLessonRequest{
		Reposition: &dto.RepositionRequest{TeacherID: "t-ana", StartAt: at(3, 10, 0), DurationMinutes: 60},
	}, adminActor)
	require.NoError(t, err)
	assert.Nil(t, result.Reposition)
	assert.Equal(t, appErrors.ErrConflict.Code, result.RepositionErrorCode)
	assert.NotEmpty(t, result.RepositionError)

	stored, err := svc.Get(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCancelled, stored.Status)
}

func TestDeleteFutureRemovesMatchingOccurrences(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	created, err := svc.Create(context.Background(), dto.CreateLessonRequest{
		EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0), DurationMinutes: 60,
		Repetition: &dto.RepetitionPolicy{WeeklyCount: 4},
	}, adminActor)
	require.NoError(t, err)
	require.Equal(t, 4, created.Count)
	wednesday := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(10, 10, 0)})

	result, err := svc.Delete(context.Background(), created.Lessons[1].ID, true, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)

	remaining, err := store.ListLessons(context.Background(), models.LessonFilter{EnrollmentID: "e-joao"})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, created.Lessons[0].ID, remaining[0].ID)
	assert.Equal(t, wednesday.ID, remaining[1].ID)

	history, err := svc.History(context.Background(), created.Lessons[3].ID)
	require.NoError(t, err)
	assert.Equal(t, models.LessonAuditDeleted, history[len(history)-1].Action)
}

type lockRecorder struct {
	*memory.Store
	mu     sync.Mutex
	locked [][]string
	before func()
}

func (r *lockRecorder) WithTeacherLock(ctx context.Context, teacherIDs []string, fn func(repository.Tx) error) error {
	r.mu.Lock()
	r.locked = append(r.locked, repository.LockOrder(teacherIDs))
	before := r.before
	r.before = nil
	r.mu.Unlock()
	if before != nil {
		before()
	}
	return r.Store.WithTeacherLock(ctx, teacherIDs, fn)
}

func TestDeleteFutureLocksEveryTeacherInvolved(t *testing.T) {
	store := &lockRecorder{Store: seededStore(t)}
	first := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-bruno", StartAt: at(8, 10, 0)})
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(15, 10, 0)})
	svc := NewLessonService(store, NewConflictChecker(store, schedulingConfig(), nil, nil), schedulingConfig(), nil)

	store.locked = nil
	result, err := svc.Delete(context.Background(), first.ID, true, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	require.Len(t, store.locked, 1)
	assert.Equal(t, []string{"t-ana", "t-bruno"}, store.locked[0])
}

func TestDeleteFutureRejectsOccurrenceReassignedMeanwhile(t *testing.T) {
	store := &lockRecorder{Store: seededStore(t)}
	first := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})
	second := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(8, 10, 0)})
	svc := NewLessonService(store, NewConflictChecker(store, schedulingConfig(), nil, nil), schedulingConfig(), nil)

	store.before = func() {
		err := store.Store.WithTeacherLock(context.Background(), []string{"t-ana", "t-bruno"}, func(tx repository.Tx) error {
			moved := second
			moved.TeacherID = "t-bruno"
			return tx.UpdateLesson(context.Background(), &moved)
		})
		require.NoError(t, err)
	}

	_, err := svc.Delete(context.Background(), first.ID, true, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	remaining, err := store.ListLessons(context.Background(), models.LessonFilter{EnrollmentID: "e-joao"})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestDeleteSingleLesson(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	result, err := svc.Delete(context.Background(), lesson.ID, false, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	_, err = svc.Get(context.Background(), lesson.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Delete(context.Background(), lesson.ID, false, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestConcurrentCreatesForSameTeacherOnlyOneWins(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	enrollments := []string{"e-joao", "e-maria", "e-pedro"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), dto.CreateLessonRequest{
				EnrollmentID: enrollments[i%len(enrollments)], TeacherID: "t-ana",
				StartAt: at(1, 10, 0).Add(time.Duration(i%3) * 15 * time.Minute), DurationMinutes: 60,
			}, adminActor)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if appErrors.Is(err, appErrors.ErrConflict) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 11, conflicts)
	lessons, err := store.ListLessons(context.Background(), models.LessonFilter{TeacherID: "t-ana"})
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
}

func TestListLessonsValidatesRange(t *testing.T) {
	svc, store, _ := newLessonServiceForTest(t)
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})
	seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(9, 10, 0)})

	from, to := at(1, 0, 0), at(7, 0, 0)
	lessons, err := svc.List(context.Background(), dto.LessonQuery{TeacherID: "t-ana", From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, lessons, 1)

	_, err = svc.List(context.Background(), dto.LessonQuery{From: &to, To: &from})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
