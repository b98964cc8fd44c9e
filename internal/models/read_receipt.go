package models

import "time"

// ReadReceipt records that a user has seen the latest changes of a lesson.
type ReadReceipt struct {
	ID       string    `db:"id" json:"id"`
	UserID   string    `db:"user_id" json:"userId"`
	Role     UserRole  `db:"role" json:"role"`
	LessonID string    `db:"lesson_id" json:"lessonId"`
	ViewedAt time.Time `db:"viewed_at" json:"viewedAt"`
}
