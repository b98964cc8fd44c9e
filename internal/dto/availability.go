package dto

import (
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// Availability outcome codes.
const (
	AvailabilityCodeOutsideAvailability = "OUTSIDE_AVAILABILITY"
	AvailabilityCodeDoubleBooked        = "DOUBLE_BOOKED"
	AvailabilityCodeLanguageMismatch    = "LANGUAGE_MISMATCH"
)

// AvailabilityQuery asks whether one teacher can take [StartAt, StartAt+DurationMinutes).
type AvailabilityQuery struct {
	TeacherID       string    `json:"teacherId" validate:"required"`
	StartAt         time.Time `json:"startAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,min=1,max=1440"`
	ExcludeLessonID string    `json:"excludeLessonId,omitempty"`
}

// TeacherPickerQuery evaluates every active teacher for the same window.
type TeacherPickerQuery struct {
	StartAt         time.Time `json:"startAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,min=1,max=1440"`
	ExcludeLessonID string    `json:"excludeLessonId,omitempty"`
	EnrollmentID    string    `json:"enrollmentId,omitempty"`
}

// ConflictingLesson identifies the lesson that blocks a window.
type ConflictingLesson struct {
	LessonID     string    `json:"lessonId"`
	EnrollmentID string    `json:"enrollmentId"`
	StudentName  string    `json:"studentName"`
	TeacherID    string    `json:"teacherId"`
	TeacherName  string    `json:"teacherName"`
	StartAt      time.Time `json:"startAt"`
	EndAt        time.Time `json:"endAt"`
}

// AvailabilityResult is the verdict for one teacher.
type AvailabilityResult struct {
	TeacherID     string             `json:"teacherId"`
	TeacherName   string             `json:"teacherName"`
	Available     bool               `json:"available"`
	Code          string             `json:"code,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Conflict      *ConflictingLesson `json:"conflict,omitempty"`
	LanguageMatch *bool              `json:"languageMatch,omitempty"`
}

// AvailabilitySlotInput is one weekly window in a replacement set.
type AvailabilitySlotInput struct {
	DayOfWeek    int `json:"dayOfWeek" validate:"min=0,max=6"`
	StartMinutes int `json:"startMinutes" validate:"min=0,max=1439"`
	EndMinutes   int `json:"endMinutes" validate:"min=1,max=1440,gtfield=StartMinutes"`
}

// ReplaceAvailabilityRequest replaces the full slot set of a teacher. An empty set
// reopens the teacher to any time.
type ReplaceAvailabilityRequest struct {
	Slots []AvailabilitySlotInput `json:"slots" validate:"dive"`
}

// TeacherAvailabilityResponse lists a teacher's weekly slots.
type TeacherAvailabilityResponse struct {
	TeacherID  string                    `json:"teacherId"`
	AlwaysOpen bool                      `json:"alwaysOpen"`
	Slots      []models.AvailabilitySlot `json:"slots"`
	Timezone   string                    `json:"timezone"`
}
