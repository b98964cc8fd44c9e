package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// AvailabilityRepository persists teacher weekly availability slots.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByTeacher returns the teacher's slots ordered by weekday and start.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, teacher_id, day_of_week, start_minutes, end_minutes
	FROM teacher_availability_slots WHERE teacher_id = $1 ORDER BY day_of_week, start_minutes`
	var slots []models.AvailabilitySlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}
	return slots, nil
}

// Replace swaps the teacher's slot set. Must run inside a transaction.
func (r *AvailabilityRepository) Replace(ctx context.Context, exec sqlx.ExtContext, teacherID string, slots []models.AvailabilitySlot) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM teacher_availability_slots WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear availability slots: %w", err)
	}
	const insert = `INSERT INTO teacher_availability_slots (id, teacher_id, day_of_week, start_minutes, end_minutes)
	VALUES (:id, :teacher_id, :day_of_week, :start_minutes, :end_minutes)`
	for i := range slots {
		slots[i].TeacherID = teacherID
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, insert, slots[i]); err != nil {
			return fmt.Errorf("insert availability slot: %w", err)
		}
	}
	return nil
}
