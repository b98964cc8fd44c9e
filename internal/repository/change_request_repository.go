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

const changeRequestColumns = `id, lesson_id, enrollment_id, teacher_id, type, status, requested_start_at,
       requested_teacher_id, notes, requested_by, resolved_by, resolved_at, created_at, updated_at`

// ChangeRequestRepository persists lesson change requests.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new request. A second open request for the lesson yields ErrOpenChangeRequestExists.
func (r *ChangeRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, request *models.ChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ChangeRequestStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	const query = `INSERT INTO change_requests
	(id, lesson_id, enrollment_id, teacher_id, type, status, requested_start_at, requested_teacher_id, notes, requested_by, resolved_by, resolved_at, created_at, updated_at)
	VALUES (:id, :lesson_id, :enrollment_id, :teacher_id, :type, :status, :requested_start_at, :requested_teacher_id, :notes, :requested_by, :resolved_by, :resolved_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, request); err != nil {
		return fmt.Errorf("create change request: %w", mapWriteError(err))
	}
	return nil
}

// GetByID fetches a change request by identifier.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ChangeRequest, error) {
	var request models.ChangeRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &request, `SELECT `+changeRequestColumns+` FROM change_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter (latest first).
func (r *ChangeRequestRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + changeRequestColumns + ` FROM change_requests`)

	conditions := make([]string, 0, 3)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.LessonID != "" {
		args = append(args, filter.LessonID)
		conditions = append(conditions, fmt.Sprintf("lesson_id = $%d", len(args)))
	}
	if filter.EnrollmentIDs != nil {
		args = append(args, pq.Array(filter.EnrollmentIDs))
		conditions = append(conditions, fmt.Sprintf("enrollment_id = ANY($%d)", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ChangeRequest
	if err := sqlx.SelectContext(ctx, r.exec(exec), &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}

// UpdateResolution persists a decision. Only open requests can be updated.
func (r *ChangeRequestRepository) UpdateResolution(ctx context.Context, exec sqlx.ExtContext, request *models.ChangeRequest) error {
	request.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE change_requests SET status = :status, resolved_by = :resolved_by, resolved_at = :resolved_at,
	updated_at = :updated_at WHERE id = :id AND status IN ('%s', '%s')`,
		models.ChangeRequestStatusPending,
		models.ChangeRequestStatusTeacherRejected,
	)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, request)
	if err != nil {
		return fmt.Errorf("update change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
