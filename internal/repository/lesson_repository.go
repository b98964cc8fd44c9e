package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

const lessonColumns = `id, enrollment_id, teacher_id, status, start_at, end_at, duration_minutes, notes,
       created_by_name, reposition_of_id, created_at, updated_at`

// LessonRepository persists the lesson ledger.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

func (r *LessonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetByID fetches a lesson by identifier.
func (r *LessonRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.exec(exec), &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// List returns lessons matching the filter ordered by start.
func (r *LessonRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.LessonFilter) ([]models.Lesson, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(`SELECT ` + lessonColumns + ` FROM lessons`)

	conditions := make([]string, 0, 8)
	if len(filter.IDs) > 0 {
		args = append(args, pq.Array(filter.IDs))
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.OnlyOccupying {
		conditions = append(conditions, fmt.Sprintf("status <> '%s'", models.LessonStatusCancelled))
	}
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		conditions = append(conditions, fmt.Sprintf("end_at > $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		conditions = append(conditions, fmt.Sprintf("start_at < $%d", len(args)))
	}
	if filter.StartFrom != nil {
		args = append(args, filter.StartFrom.UTC())
		conditions = append(conditions, fmt.Sprintf("start_at >= $%d", len(args)))
	}
	if filter.ExcludeID != "" {
		args = append(args, filter.ExcludeID)
		conditions = append(conditions, fmt.Sprintf("id <> $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY start_at ASC, id ASC")
	if filter.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	var lessons []models.Lesson
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lessons, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// Create inserts a lesson. Overlaps with live lessons of the same teacher surface as ErrLessonOverlap.
func (r *LessonRepository) Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusConfirmed
	}
	lesson.Normalize()
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	const query = `INSERT INTO lessons
	(id, enrollment_id, teacher_id, status, start_at, end_at, duration_minutes, notes, created_by_name, reposition_of_id, created_at, updated_at)
	VALUES (:id, :enrollment_id, :teacher_id, :status, :start_at, :end_at, :duration_minutes, :notes, :created_by_name, :reposition_of_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", mapWriteError(err))
	}
	return nil
}

// Update persists mutable lesson columns.
func (r *LessonRepository) Update(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	lesson.Normalize()
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET teacher_id = :teacher_id, status = :status, start_at = :start_at, end_at = :end_at,
	duration_minutes = :duration_minutes, notes = :notes, reposition_of_id = :reposition_of_id, updated_at = :updated_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, lesson)
	if err != nil {
		return fmt.Errorf("update lesson: %w", mapWriteError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lesson update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByIDs removes lessons and returns how many rows went away.
func (r *LessonRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM lessons WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete lessons: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check lesson delete rows: %w", err)
	}
	return int(rows), nil
}
