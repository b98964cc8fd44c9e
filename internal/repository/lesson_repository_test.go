package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var lessonRowColumns = []string{"id", "enrollment_id", "teacher_id", "status", "start_at", "end_at", "duration_minutes", "notes", "created_by_name", "reposition_of_id", "created_at", "updated_at"}

func TestLessonRepositoryCreateDerivesEnd(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	start := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)
	lesson := &models.Lesson{EnrollmentID: "enr-1", TeacherID: "t-1", StartAt: start, DurationMinutes: 50}
	require.NoError(t, repo.Create(context.Background(), nil, lesson))

	assert.NotEmpty(t, lesson.ID)
	assert.Equal(t, models.LessonStatusConfirmed, lesson.Status)
	assert.Equal(t, start.Add(50*time.Minute), lesson.EndAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryCreateMapsExclusionViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewLessonRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).
		WillReturnError(&pq.Error{Code: "23P01", Constraint: "lessons_teacher_no_overlap"})

	err := repo.Create(context.Background(), nil, &models.Lesson{TeacherID: "t-1", EnrollmentID: "e-1", StartAt: time.Now(), DurationMinutes: 30})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLessonOverlap))
}

func TestLessonRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	start := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(lessonRowColumns).
		AddRow("l-1", "e-1", "t-1", "CONFIRMED", start, start.Add(time.Hour), 60, "", "Ana", nil, start, start)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, enrollment_id, teacher_id")).
		WithArgs("l-1").
		WillReturnRows(rows)

	lesson, err := NewLessonRepository(db).GetByID(context.Background(), nil, "l-1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusConfirmed, lesson.Status)
	assert.Nil(t, lesson.RepositionOfID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryListBuildsOverlapWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	from := time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(`FROM lessons WHERE teacher_id = \$1 AND status <> 'CANCELLED' AND end_at > \$2 AND start_at < \$3 AND id <> \$4 ORDER BY start_at`).
		WithArgs("t-1", from, to, "l-9").
		WillReturnRows(sqlmock.NewRows(lessonRowColumns))

	lessons, err := NewLessonRepository(db).List(context.Background(), nil, models.LessonFilter{
		TeacherID:     "t-1",
		OnlyOccupying: true,
		From:          &from,
		To:            &to,
		ExcludeID:     "l-9",
	})
	require.NoError(t, err)
	assert.Empty(t, lessons)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewLessonRepository(db).Update(context.Background(), nil, &models.Lesson{ID: "missing", StartAt: time.Now(), DurationMinutes: 30})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLessonRepositoryDeleteByIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lessons WHERE id = ANY($1)")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := NewLessonRepository(db).DeleteByIDs(context.Background(), nil, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = NewLessonRepository(db).DeleteByIDs(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
