package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// ReadReceiptRepository persists per-user lesson read receipts.
type ReadReceiptRepository struct {
	db *sqlx.DB
}

// NewReadReceiptRepository constructs the repository.
func NewReadReceiptRepository(db *sqlx.DB) *ReadReceiptRepository {
	return &ReadReceiptRepository{db: db}
}

// Upsert records the view, moving viewed_at forward on repeat views.
func (r *ReadReceiptRepository) Upsert(ctx context.Context, receipt *models.ReadReceipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	if receipt.ViewedAt.IsZero() {
		receipt.ViewedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lesson_read_receipts (id, user_id, role, lesson_id, viewed_at)
	VALUES (:id, :user_id, :role, :lesson_id, :viewed_at)
	ON CONFLICT (user_id, lesson_id) DO UPDATE SET role = EXCLUDED.role,
	viewed_at = GREATEST(lesson_read_receipts.viewed_at, EXCLUDED.viewed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, receipt); err != nil {
		return fmt.Errorf("upsert read receipt: %w", err)
	}
	return nil
}

// ListByUser returns the user's receipts, optionally limited to lessonIDs.
func (r *ReadReceiptRepository) ListByUser(ctx context.Context, userID string, lessonIDs []string) ([]models.ReadReceipt, error) {
	query := `SELECT id, user_id, role, lesson_id, viewed_at FROM lesson_read_receipts WHERE user_id = $1`
	args := []interface{}{userID}
	if len(lessonIDs) > 0 {
		query += ` AND lesson_id = ANY($2)`
		args = append(args, pq.Array(lessonIDs))
	}
	var receipts []models.ReadReceipt
	if err := r.db.SelectContext(ctx, &receipts, query, args...); err != nil {
		return nil, fmt.Errorf("list read receipts: %w", err)
	}
	return receipts, nil
}
