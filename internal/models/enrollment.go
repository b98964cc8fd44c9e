package models

import "time"

// LessonType distinguishes private lessons from group classes.
type LessonType string

const (
	LessonTypeParticular LessonType = "PARTICULAR"
	LessonTypeGrupo      LessonType = "GRUPO"
)

// EnrollmentStatus mirrors the contract state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusPaused   EnrollmentStatus = "PAUSED"
	EnrollmentStatusInactive EnrollmentStatus = "INACTIVE"
)

// Course is the language (or languages) an enrollment is contracted for.
type Course string

const (
	CourseIngles         Course = "INGLES"
	CourseEspanhol       Course = "ESPANHOL"
	CourseInglesEspanhol Course = "INGLES_E_ESPANHOL"
)

// Languages a teacher may list.
const (
	LanguageIngles   = "INGLES"
	LanguageEspanhol = "ESPANHOL"
)

// RequiredLanguages lists the languages of which a teacher must teach at least one.
func (c Course) RequiredLanguages() []string {
	switch c {
	case CourseIngles:
		return []string{LanguageIngles}
	case CourseEspanhol:
		return []string{LanguageEspanhol}
	case CourseInglesEspanhol:
		return []string{LanguageIngles, LanguageEspanhol}
	}
	return nil
}

// Enrollment is the student contract the lessons belong to. Read-only here.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentName     string           `db:"student_name" json:"studentName"`
	StudentUserID   string           `db:"student_user_id" json:"studentUserId,omitempty"`
	WeeklyFrequency int              `db:"weekly_frequency" json:"weeklyFrequency"`
	LessonMinutes   int              `db:"lesson_minutes" json:"lessonMinutes"`
	LessonType      LessonType       `db:"lesson_type" json:"lessonType"`
	GroupName       string           `db:"group_name" json:"groupName,omitempty"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	PausedAt        *time.Time       `db:"paused_at" json:"pausedAt,omitempty"`
	ActivationDate  *time.Time       `db:"activation_date" json:"activationDate,omitempty"`
	Course          Course           `db:"course" json:"course"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

// GroupKey labels enrollments sharing one group class; private enrollments use their own ID.
func (e Enrollment) GroupKey() string {
	if e.LessonType == LessonTypeGrupo && e.GroupName != "" {
		return "group:" + e.GroupName
	}
	return e.ID
}

// OwnedBy reports whether userID is the student account linked to the enrollment.
func (e Enrollment) OwnedBy(userID string) bool {
	return userID != "" && e.StudentUserID == userID
}

// EnrollmentFilter constrains enrollment listings.
type EnrollmentFilter struct {
	IDs           []string
	Statuses      []EnrollmentStatus
	StudentUserID string
}
