package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// storeError maps persistence failures onto API errors. Errors that are already
// typed pass through unchanged.
func storeError(err error, notFound, failure string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	case errors.Is(err, repository.ErrLessonOverlap):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "teacher already has a lesson at that time")
	case errors.Is(err, repository.ErrOpenChangeRequestExists):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "lesson already has an open change request")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, failure)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("invalid %s: failed %s", fe.Field(), fe.Tag()))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

func invalid(message string) error {
	return appErrors.Clone(appErrors.ErrValidation, message)
}

func checkDuration(minutes int) error {
	if minutes <= 0 || minutes > models.MaxLessonMinutes {
		return invalid(fmt.Sprintf("durationMinutes must be between 1 and %d", models.MaxLessonMinutes))
	}
	return nil
}

// conflictError wraps one or more conflicts so clients can read them from the error details.
func conflictError(message string, conflicts []models.ScheduleConflict) error {
	detail := &models.ScheduleConflictError{Type: "SCHEDULE_CONFLICT", Message: message, Conflicts: conflicts}
	return appErrors.WithDetails(
		appErrors.Wrap(detail, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message),
		detail,
	)
}
