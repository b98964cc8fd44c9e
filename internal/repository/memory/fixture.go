package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// Fixture is the JSON document used to seed a development store.
type Fixture struct {
	Teachers     []models.Teacher          `json:"teachers"`
	Enrollments  []models.Enrollment       `json:"enrollments"`
	Availability []models.AvailabilitySlot `json:"availability"`
	Holidays     []struct {
		Date string `json:"date"`
		Name string `json:"name"`
	} `json:"holidays"`
}

// LoadFixture seeds reference data from r.
func (s *Store) LoadFixture(r io.Reader) error {
	var fixture Fixture
	if err := json.NewDecoder(r).Decode(&fixture); err != nil {
		return fmt.Errorf("decode fixture: %w", err)
	}
	for _, teacher := range fixture.Teachers {
		s.PutTeacher(teacher)
	}
	for _, enrollment := range fixture.Enrollments {
		s.PutEnrollment(enrollment)
	}
	s.mu.Lock()
	for _, slot := range fixture.Availability {
		if slot.StartMinutes >= slot.EndMinutes || slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
			s.mu.Unlock()
			return fmt.Errorf("invalid availability slot for teacher %s", slot.TeacherID)
		}
		if slot.ID == "" {
			slot.ID = fmt.Sprintf("%s-%d-%d", slot.TeacherID, slot.DayOfWeek, slot.StartMinutes)
		}
		s.slots[slot.TeacherID] = append(s.slots[slot.TeacherID], slot)
	}
	s.mu.Unlock()
	for _, holiday := range fixture.Holidays {
		date, err := time.Parse("2006-01-02", holiday.Date)
		if err != nil {
			return fmt.Errorf("parse holiday %q: %w", holiday.Date, err)
		}
		s.PutHoliday(models.Holiday{Date: date, Name: holiday.Name})
	}
	return nil
}
