package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func TestLockOrderSortsAndDedupes(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, LockOrder([]string{"c", "a", "", "b", "a"}))
	assert.Empty(t, LockOrder(nil))
}

func TestWithTeacherLockTakesAdvisoryLocksInOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("t-a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("t-b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lesson_audit_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewPostgresStore(db)
	err := store.WithTeacherLock(context.Background(), []string{"t-b", "t-a"}, func(tx Tx) error {
		lesson := &models.Lesson{EnrollmentID: "e-1", TeacherID: "t-a", StartAt: time.Now(), DurationMinutes: 30}
		if err := tx.CreateLesson(context.Background(), lesson); err != nil {
			return err
		}
		return tx.AppendAuditEvent(context.Background(), &models.LessonAuditEvent{LessonID: lesson.ID, Actor: "Ana", Action: models.LessonAuditCreated})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTeacherLockRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WithArgs("t-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewPostgresStore(db).WithTeacherLock(context.Background(), []string{"t-1"}, func(Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
