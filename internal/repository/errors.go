package repository

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqExclusionViolation = "23P01"
	pqUniqueViolation    = "23505"

	openChangeRequestIndex = "uq_change_requests_open_lesson"
)

// mapWriteError translates constraint violations into repository sentinels.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqExclusionViolation:
		return ErrLessonOverlap
	case pqUniqueViolation:
		if pqErr.Constraint == openChangeRequestIndex {
			return ErrOpenChangeRequestExists
		}
	}
	return err
}
