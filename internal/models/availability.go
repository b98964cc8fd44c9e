package models

// MinutesPerDay bounds minute-of-day values.
const MinutesPerDay = 24 * 60

// AvailabilitySlot is a recurring weekly window [StartMinutes, EndMinutes) on DayOfWeek
// (0 = Sunday) in the reference timezone.
type AvailabilitySlot struct {
	ID           string `db:"id" json:"id"`
	TeacherID    string `db:"teacher_id" json:"teacherId"`
	DayOfWeek    int    `db:"day_of_week" json:"dayOfWeek"`
	StartMinutes int    `db:"start_minutes" json:"startMinutes"`
	EndMinutes   int    `db:"end_minutes" json:"endMinutes"`
}

// Contains reports whether [start, end) lies inside the slot.
func (s AvailabilitySlot) Contains(start, end int) bool {
	return start >= s.StartMinutes && end <= s.EndMinutes
}
