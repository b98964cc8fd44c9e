package models

import "time"

// ScheduleConflict describes why one window cannot be booked.
type ScheduleConflict struct {
	Code         string    `json:"code"`
	Reason       string    `json:"reason"`
	TeacherID    string    `json:"teacherId"`
	TeacherName  string    `json:"teacherName"`
	StartAt      time.Time `json:"startAt"`
	EndAt        time.Time `json:"endAt"`
	LessonID     string    `json:"conflictingLessonId,omitempty"`
	EnrollmentID string    `json:"conflictingEnrollmentId,omitempty"`
	StudentName  string    `json:"conflictingStudentName,omitempty"`
}

// ScheduleConflictError is returned when one or more windows collide.
type ScheduleConflictError struct {
	Type      string             `json:"type"`
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
