package models

import "time"

// MaxLessonMinutes bounds a single lesson to one day.
const MaxLessonMinutes = 24 * 60

// LessonStatus enumerates the lifecycle states of a scheduled lesson.
type LessonStatus string

const (
	LessonStatusConfirmed LessonStatus = "CONFIRMED"
	LessonStatusCancelled LessonStatus = "CANCELLED"
	// LessonStatusReposicao marks a makeup lesson, created after a cancellation or a reschedule.
	LessonStatusReposicao LessonStatus = "REPOSICAO"
)

// Valid reports whether s is a known status.
func (s LessonStatus) Valid() bool {
	switch s {
	case LessonStatusConfirmed, LessonStatusCancelled, LessonStatusReposicao:
		return true
	}
	return false
}

// Occupies reports whether a lesson in this status holds the teacher's time.
func (s LessonStatus) Occupies() bool {
	return s == LessonStatusConfirmed || s == LessonStatusReposicao
}

// Lesson is one scheduled occurrence on the weekly grid.
type Lesson struct {
	ID              string       `db:"id" json:"id"`
	EnrollmentID    string       `db:"enrollment_id" json:"enrollmentId"`
	TeacherID       string       `db:"teacher_id" json:"teacherId"`
	Status          LessonStatus `db:"status" json:"status"`
	StartAt         time.Time    `db:"start_at" json:"startAt"`
	EndAt           time.Time    `db:"end_at" json:"endAt"`
	DurationMinutes int          `db:"duration_minutes" json:"durationMinutes"`
	Notes           string       `db:"notes" json:"notes"`
	CreatedByName   string       `db:"created_by_name" json:"createdByName"`
	RepositionOfID  *string      `db:"reposition_of_id" json:"repositionOfId,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// Window returns the half-open interval [start, end) occupied by the lesson.
func (l Lesson) Window() (time.Time, time.Time) {
	return l.StartAt, l.StartAt.Add(time.Duration(l.DurationMinutes) * time.Minute)
}

// Normalize derives EndAt from StartAt and DurationMinutes.
func (l *Lesson) Normalize() {
	l.StartAt = l.StartAt.UTC()
	_, l.EndAt = l.Window()
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// LessonFilter constrains lesson listings. From/To select lessons overlapping [From, To).
type LessonFilter struct {
	IDs           []string
	TeacherID     string
	EnrollmentID  string
	Statuses      []LessonStatus
	From          *time.Time
	To            *time.Time
	StartFrom     *time.Time
	ExcludeID     string
	OnlyOccupying bool
	Limit         int
}
