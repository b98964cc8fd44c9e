package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// LessonAuditRepository stores the append-only lesson history.
type LessonAuditRepository struct {
	db *sqlx.DB
}

// NewLessonAuditRepository constructs the repository.
func NewLessonAuditRepository(db *sqlx.DB) *LessonAuditRepository {
	return &LessonAuditRepository{db: db}
}

func (r *LessonAuditRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append inserts one audit event.
func (r *LessonAuditRepository) Append(ctx context.Context, exec sqlx.ExtContext, event *models.LessonAuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if len(event.Detail) == 0 {
		event.Detail = types.JSONText(`{}`)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lesson_audit_events (id, lesson_id, actor, actor_role, action, detail, created_at)
	VALUES (:id, :lesson_id, :actor, :actor_role, :action, :detail, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event); err != nil {
		return fmt.Errorf("append lesson audit event: %w", err)
	}
	return nil
}

// ListByLesson returns a lesson's history oldest first.
func (r *LessonAuditRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.LessonAuditEvent, error) {
	const query = `SELECT id, lesson_id, actor, actor_role, action, detail, created_at
	FROM lesson_audit_events WHERE lesson_id = $1 ORDER BY created_at ASC, id ASC`
	var events []models.LessonAuditEvent
	if err := r.db.SelectContext(ctx, &events, query, lessonID); err != nil {
		return nil, fmt.Errorf("list lesson audit events: %w", err)
	}
	return events, nil
}

// ListSince returns events of the given actions created after filter.Since, newest first.
func (r *LessonAuditRepository) ListSince(ctx context.Context, filter models.AuditEventFilter) ([]models.LessonAuditEvent, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, lesson_id, actor, actor_role, action, detail, created_at FROM lesson_audit_events WHERE created_at > $1`)
	args := []interface{}{filter.Since.UTC()}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			actions[i] = string(action)
		}
		args = append(args, pq.Array(actions))
		builder.WriteString(fmt.Sprintf(" AND action = ANY($%d)", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var events []models.LessonAuditEvent
	if err := r.db.SelectContext(ctx, &events, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list lesson audit events since: %w", err)
	}
	return events, nil
}
