package models

import "time"

// WeeklyStats summarises one Monday-Saturday scheduling window.
type WeeklyStats struct {
	WeekStart           time.Time               `json:"weekStart"`
	WeekEnd             time.Time               `json:"weekEnd"`
	Timezone            string                  `json:"timezone"`
	FrequencyMode       string                  `json:"frequencyMode"`
	Confirmed           int                     `json:"confirmed"`
	Cancelled           int                     `json:"cancelled"`
	Reposicao           int                     `json:"reposicao"`
	DoubleBookings      []DoubleBooking         `json:"doubleBookingList"`
	InactiveTeachers    []InactiveTeacherLesson `json:"inactiveTeacherList"`
	FrequencyMismatches []FrequencyMismatch     `json:"wrongFrequencyList"`
	GeneratedAt         time.Time               `json:"generatedAt"`
}

// BookedLesson names a student and the time they hold.
type BookedLesson struct {
	LessonID     string    `json:"lessonId"`
	EnrollmentID string    `json:"enrollmentId"`
	StudentName  string    `json:"studentName"`
	StartAt      time.Time `json:"startAt"`
	EndAt        time.Time `json:"endAt"`
}

// DoubleBooking lists the overlapping lessons held by one teacher.
type DoubleBooking struct {
	TeacherID   string         `json:"teacherId"`
	TeacherName string         `json:"teacherName"`
	Lessons     []BookedLesson `json:"lessons"`
}

// InactiveTeacherLesson is a live lesson assigned to a teacher who is not ACTIVE.
type InactiveTeacherLesson struct {
	TeacherID     string        `json:"teacherId"`
	TeacherName   string        `json:"teacherName"`
	TeacherStatus TeacherStatus `json:"teacherStatus"`
	Lesson        BookedLesson  `json:"lesson"`
}

// FrequencyMismatch reports an enrollment whose week differs from its contract.
type FrequencyMismatch struct {
	EnrollmentID string `json:"enrollmentId"`
	StudentName  string `json:"studentName"`
	GroupKey     string `json:"groupKey"`
	ActiveDays   int    `json:"activeDays"`
	Expected     int    `json:"expected"`
	Actual       int    `json:"actual"`
	Diff         int    `json:"diff"`
	Suggestion   string `json:"suggestion"`
}
