package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func TestChangeRequestRepositoryCreateDuplicateOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO change_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_change_requests_open_lesson"})

	err := NewChangeRequestRepository(db).Create(context.Background(), nil, &models.ChangeRequest{LessonID: "l-1", Type: models.ChangeRequestTypeTrocaAula})
	assert.ErrorIs(t, err, ErrOpenChangeRequestExists)
}

func TestChangeRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "lesson_id", "enrollment_id", "teacher_id", "type", "status", "requested_start_at", "requested_teacher_id", "notes", "requested_by", "resolved_by", "resolved_at", "created_at", "updated_at"}).
		AddRow("cr-1", "l-1", "e-1", "t-1", "TROCA_AULA", "PENDING", now, nil, "", "u-1", nil, nil, now, now)
	mock.ExpectQuery(`FROM change_requests WHERE teacher_id = \$1 AND lesson_id = \$2 ORDER BY created_at DESC LIMIT 50 OFFSET 0`).
		WithArgs("t-1", "l-1").
		WillReturnRows(rows)

	list, err := NewChangeRequestRepository(db).List(context.Background(), nil, models.ChangeRequestFilter{TeacherID: "t-1", LessonID: "l-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ChangeRequestStatusPending, list[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryUpdateResolutionRequiresOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE change_requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewChangeRequestRepository(db).UpdateResolution(context.Background(), nil, &models.ChangeRequest{ID: "cr-1", Status: models.ChangeRequestStatusApproved})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
