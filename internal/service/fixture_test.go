package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/repository/memory"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
)

// saoPaulo has had no DST since 2019, so offsets below are always -03:00.
var saoPaulo = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		panic(err)
	}
	return loc
}()

// at returns a Sao Paulo wall-clock instant in the week of Monday 2024-03-04.
// day 0 is Sunday 2024-03-03.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, 3+day, hour, minute, 0, 0, saoPaulo).UTC()
}

func schedulingConfig() config.SchedulingConfig {
	return config.SchedulingConfig{
		ReferenceTimezone:  "America/Sao_Paulo",
		Location:           saoPaulo,
		MaxRecurrenceWeeks: 52,
		FanoutLimit:        4,
		FrequencyMode:      config.FrequencyModeCount,
	}
}

var (
	adminActor   = models.Actor{UserID: "u-admin", Name: "Secretaria", Role: models.RoleAdmin}
	studentActor = models.Actor{UserID: "u-joao", Name: "Joao Pereira", Role: models.RoleStudent}
	anaActor     = models.Actor{UserID: "t-ana", Name: "Ana Souza", Role: models.RoleTeacher}
	brunoActor   = models.Actor{UserID: "t-bruno", Name: "Bruno Lima", Role: models.RoleTeacher}
)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	store.PutTeacher(models.Teacher{ID: "t-ana", FullName: "Ana Souza", Status: models.TeacherStatusActive, Languages: []string{models.LanguageIngles}})
	store.PutTeacher(models.Teacher{ID: "t-bruno", FullName: "Bruno Lima", Status: models.TeacherStatusActive, Languages: []string{models.LanguageEspanhol}})
	store.PutTeacher(models.Teacher{ID: "t-carla", FullName: "Carla Dias", Status: models.TeacherStatusInactive, Languages: []string{models.LanguageIngles, models.LanguageEspanhol}})

	store.PutEnrollment(models.Enrollment{ID: "e-joao", StudentName: "Joao Pereira", StudentUserID: "u-joao", WeeklyFrequency: 2, LessonMinutes: 60,
		LessonType: models.LessonTypeParticular, Status: models.EnrollmentStatusActive, Course: models.CourseIngles})
	store.PutEnrollment(models.Enrollment{ID: "e-maria", StudentName: "Maria Alves", WeeklyFrequency: 1, LessonMinutes: 60,
		LessonType: models.LessonTypeGrupo, GroupName: "Kids A", Status: models.EnrollmentStatusActive, Course: models.CourseIngles})
	store.PutEnrollment(models.Enrollment{ID: "e-pedro", StudentName: "Pedro Costa", WeeklyFrequency: 1, LessonMinutes: 60,
		LessonType: models.LessonTypeGrupo, GroupName: "Kids A", Status: models.EnrollmentStatusActive, Course: models.CourseIngles})
	store.PutEnrollment(models.Enrollment{ID: "e-lucas", StudentName: "Lucas Rocha", WeeklyFrequency: 1, LessonMinutes: 60,
		LessonType: models.LessonTypeParticular, Status: models.EnrollmentStatusActive, Course: models.CourseEspanhol})
	return store
}

// seedLesson writes a lesson directly through the store, bypassing validation.
func seedLesson(t *testing.T, store repository.Store, lesson models.Lesson) models.Lesson {
	t.Helper()
	if lesson.Status == "" {
		lesson.Status = models.LessonStatusConfirmed
	}
	if lesson.DurationMinutes == 0 {
		lesson.DurationMinutes = 60
	}
	err := store.WithTeacherLock(context.Background(), []string{lesson.TeacherID}, func(tx repository.Tx) error {
		return tx.CreateLesson(context.Background(), &lesson)
	})
	require.NoError(t, err)
	return lesson
}

func replaceSlots(t *testing.T, store repository.Store, teacherID string, slots ...models.AvailabilitySlot) {
	t.Helper()
	err := store.WithTeacherLock(context.Background(), []string{teacherID}, func(tx repository.Tx) error {
		return tx.ReplaceSlots(context.Background(), teacherID, slots)
	})
	require.NoError(t, err)
}
