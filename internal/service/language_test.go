package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

func TestLanguageMatches(t *testing.T) {
	english := &models.Teacher{FullName: "Ana", Languages: []string{models.LanguageIngles}}
	spanish := &models.Teacher{FullName: "Bruno", Languages: []string{models.LanguageEspanhol}}
	none := &models.Teacher{FullName: "Caio"}

	cases := []struct {
		name    string
		course  models.Course
		teacher *models.Teacher
		want    bool
	}{
		{"english course english teacher", models.CourseIngles, english, true},
		{"english course spanish teacher", models.CourseIngles, spanish, false},
		{"dual course spanish teacher", models.CourseInglesEspanhol, spanish, true},
		{"dual course no languages", models.CourseInglesEspanhol, none, false},
		{"unknown course", models.Course("FRANCES"), english, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enrollment := &models.Enrollment{StudentName: "Joana", Course: tc.course}
			assert.Equal(t, tc.want, languageMatches(enrollment, tc.teacher))
		})
	}
}

func TestCheckLanguageMatchReturnsTypedError(t *testing.T) {
	err := checkLanguageMatch(&models.Enrollment{StudentName: "Joana", Course: models.CourseIngles},
		&models.Teacher{FullName: "Bruno", Languages: []string{models.LanguageEspanhol}})
	assert.True(t, appErrors.Is(err, appErrors.ErrLanguageMismatch))
	assert.Contains(t, err.Error(), "Bruno")
}
