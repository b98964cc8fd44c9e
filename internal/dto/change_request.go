package dto

import (
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// CreateChangeRequestRequest proposes a new time or teacher for a lesson.
type CreateChangeRequestRequest struct {
	LessonID           string                   `json:"lessonId" validate:"required"`
	Type               models.ChangeRequestType `json:"type" validate:"required,oneof=TROCA_AULA TROCA_PROFESSOR"`
	RequestedStartAt   *time.Time               `json:"requestedStartAt,omitempty"`
	RequestedTeacherID *string                  `json:"requestedTeacherId,omitempty"`
	Notes              string                   `json:"notes"`
}

// ResolveChangeRequestRequest captures a teacher or admin decision.
type ResolveChangeRequestRequest struct {
	Action       models.ChangeRequestAction `json:"action" validate:"required,oneof=APPROVE REJECT"`
	NewTeacherID *string                    `json:"newTeacherId,omitempty"`
	NewStartAt   *time.Time                 `json:"newStartAt,omitempty"`
}

// ChangeRequestQuery mirrors supported listing filters.
type ChangeRequestQuery struct {
	Status    []models.ChangeRequestStatus
	TeacherID string
	LessonID  string
	Limit     int
	Offset    int
}
