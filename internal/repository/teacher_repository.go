package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

const teacherColumns = `id, full_name, status, languages, created_at, updated_at`

// TeacherRepository reads teacher reference data.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := sqlx.GetContext(ctx, r.exec(exec), &teacher, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// List returns teachers ordered by name.
func (r *TeacherRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.TeacherFilter) ([]models.Teacher, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + teacherColumns + ` FROM teachers`)
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if len(filter.IDs) > 0 {
		args = append(args, pq.Array(filter.IDs))
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY full_name ASC, id ASC")

	var teachers []models.Teacher
	if err := sqlx.SelectContext(ctx, r.exec(exec), &teachers, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}
