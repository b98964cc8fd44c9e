package dto

import (
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// RepetitionPolicy expands a template lesson into further occurrences.
type RepetitionPolicy struct {
	// WeeklyCount is the total number of weekly occurrences, template included.
	WeeklyCount int `json:"weeklyCount,omitempty"`
	// SameWeekStartAt adds one occurrence inside the template's Sunday-Saturday week.
	SameWeekStartAt *time.Time `json:"sameWeekStartAt,omitempty"`
	// ContinuationWeeks replicates the template and the same-week occurrence for further weeks.
	ContinuationWeeks int `json:"continuationWeeks,omitempty"`
	// SkipConflicts creates the non-conflicting occurrences and reports the rest.
	SkipConflicts bool `json:"skipConflicts,omitempty"`
}

// CreateLessonRequest schedules a lesson and its optional repetitions.
type CreateLessonRequest struct {
	EnrollmentID    string            `json:"enrollmentId" validate:"required"`
	TeacherID       string            `json:"teacherId" validate:"required"`
	StartAt         time.Time         `json:"startAt" validate:"required"`
	DurationMinutes int               `json:"durationMinutes" validate:"required,min=1,max=1440"`
	Notes           string            `json:"notes"`
	Repetition      *RepetitionPolicy `json:"repetition,omitempty"`
}

// SkippedOccurrence is a generated start left out because of a conflict.
type SkippedOccurrence struct {
	StartAt time.Time `json:"startAt"`
	Code    string    `json:"code"`
	Reason  string    `json:"reason"`
}

// CreateLessonResult reports what was persisted.
type CreateLessonResult struct {
	Lessons  []models.Lesson     `json:"lessons"`
	Count    int                 `json:"count"`
	Skipped  []SkippedOccurrence `json:"skipped,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// UpdateLessonRequest edits a lesson. Nil fields are left untouched.
type UpdateLessonRequest struct {
	Status          *models.LessonStatus `json:"status,omitempty"`
	TeacherID       *string              `json:"teacherId,omitempty"`
	StartAt         *time.Time           `json:"startAt,omitempty"`
	DurationMinutes *int                 `json:"durationMinutes,omitempty" validate:"omitempty,min=1,max=1440"`
	Notes           *string              `json:"notes,omitempty"`
}

// DeleteLessonResult counts removed lessons.
type DeleteLessonResult struct {
	Count int `json:"count"`
}

// RepositionRequest describes the makeup lesson created alongside a cancellation.
type RepositionRequest struct {
	TeacherID       string    `json:"teacherId" validate:"required"`
	StartAt         time.Time `json:"startAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,min=1,max=1440"`
}

// CancelLessonRequest cancels a lesson, optionally with a linked reposition.
type CancelLessonRequest struct {
	Reason     string             `json:"reason"`
	Reposition *RepositionRequest `json:"reposition,omitempty"`
}

// CancelLessonResult reports the cancellation and the reposition outcome separately.
type CancelLessonResult struct {
	Cancelled           models.Lesson  `json:"cancelled"`
	Reposition          *models.Lesson `json:"reposition,omitempty"`
	RepositionError     string         `json:"repositionError,omitempty"`
	RepositionErrorCode string         `json:"repositionErrorCode,omitempty"`
	RepositionDetails   interface{}    `json:"repositionDetails,omitempty"`
}

// LessonQuery mirrors supported listing filters.
type LessonQuery struct {
	TeacherID    string
	EnrollmentID string
	From         *time.Time
	To           *time.Time
	Status       []models.LessonStatus
}

// UnseenChange is a reschedule or cancellation the user has not acknowledged.
type UnseenChange struct {
	Event  models.LessonAuditEvent `json:"event"`
	Lesson *models.Lesson          `json:"lesson,omitempty"`
}
