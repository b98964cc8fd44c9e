package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// LessonAuditAction names what happened to a lesson.
type LessonAuditAction string

const (
	LessonAuditCreated               LessonAuditAction = "CREATED"
	LessonAuditUpdated               LessonAuditAction = "UPDATED"
	LessonAuditRescheduled           LessonAuditAction = "RESCHEDULED"
	LessonAuditCancelled             LessonAuditAction = "CANCELLED"
	LessonAuditRepositionCreated     LessonAuditAction = "REPOSITION_CREATED"
	LessonAuditDeleted               LessonAuditAction = "DELETED"
	LessonAuditChangeRequestApproved LessonAuditAction = "CHANGE_REQUEST_APPROVED"
)

// LessonAuditEvent is an append-only record of a lesson write.
type LessonAuditEvent struct {
	ID        string            `db:"id" json:"id"`
	LessonID  string            `db:"lesson_id" json:"lessonId"`
	Actor     string            `db:"actor" json:"actor"`
	ActorRole string            `db:"actor_role" json:"actorRole"`
	Action    LessonAuditAction `db:"action" json:"action"`
	Detail    types.JSONText    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
}

// AuditEventFilter selects audit events across lessons.
type AuditEventFilter struct {
	Actions []LessonAuditAction
	Since   time.Time
	Limit   int
}
