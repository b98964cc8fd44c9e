package models

import (
	"time"

	"github.com/lib/pq"
)

// TeacherStatus reports whether a teacher may receive lessons.
type TeacherStatus string

const (
	TeacherStatusActive   TeacherStatus = "ACTIVE"
	TeacherStatusInactive TeacherStatus = "INACTIVE"
)

// Teacher is read-only reference data consumed by the scheduler.
type Teacher struct {
	ID        string         `db:"id" json:"id"`
	FullName  string         `db:"full_name" json:"fullName"`
	Status    TeacherStatus  `db:"status" json:"status"`
	Languages pq.StringArray `db:"languages" json:"languages"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// Teaches reports whether the teacher lists the language.
func (t Teacher) Teaches(language string) bool {
	for _, l := range t.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// TeacherFilter constrains teacher listings.
type TeacherFilter struct {
	IDs    []string
	Status TeacherStatus
}
