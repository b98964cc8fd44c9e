package service

import (
	"fmt"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// languageMatches reports whether the teacher lists at least one language required by the course.
// Unknown courses never match.
func languageMatches(enrollment *models.Enrollment, teacher *models.Teacher) bool {
	for _, language := range enrollment.Course.RequiredLanguages() {
		if teacher.Teaches(language) {
			return true
		}
	}
	return false
}

func checkLanguageMatch(enrollment *models.Enrollment, teacher *models.Teacher) error {
	if languageMatches(enrollment, teacher) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrLanguageMismatch,
		fmt.Sprintf("%s does not teach %s required by %s", teacher.FullName, enrollment.Course, enrollment.StudentName))
}
