package memory

import (
	"sort"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func matchLesson(lesson models.Lesson, filter models.LessonFilter) bool {
	if len(filter.IDs) > 0 && !containsString(filter.IDs, lesson.ID) {
		return false
	}
	if filter.TeacherID != "" && lesson.TeacherID != filter.TeacherID {
		return false
	}
	if filter.EnrollmentID != "" && lesson.EnrollmentID != filter.EnrollmentID {
		return false
	}
	if len(filter.Statuses) > 0 && !containsLessonStatus(filter.Statuses, lesson.Status) {
		return false
	}
	if filter.OnlyOccupying && !lesson.Status.Occupies() {
		return false
	}
	start, end := lesson.Window()
	if filter.From != nil && !end.After(*filter.From) {
		return false
	}
	if filter.To != nil && !start.Before(*filter.To) {
		return false
	}
	if filter.StartFrom != nil && start.Before(*filter.StartFrom) {
		return false
	}
	if filter.ExcludeID != "" && lesson.ID == filter.ExcludeID {
		return false
	}
	return true
}

func sortLessons(lessons []models.Lesson) []models.Lesson {
	sort.Slice(lessons, func(i, j int) bool {
		if !lessons[i].StartAt.Equal(lessons[j].StartAt) {
			return lessons[i].StartAt.Before(lessons[j].StartAt)
		}
		return lessons[i].ID < lessons[j].ID
	})
	return lessons
}

func limitLessons(lessons []models.Lesson, limit int) []models.Lesson {
	if limit > 0 && len(lessons) > limit {
		return lessons[:limit]
	}
	return lessons
}

func matchChangeRequest(request models.ChangeRequest, filter models.ChangeRequestFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if status == request.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.TeacherID != "" && request.TeacherID != filter.TeacherID {
		return false
	}
	if filter.LessonID != "" && request.LessonID != filter.LessonID {
		return false
	}
	if filter.EnrollmentIDs != nil {
		if _, ok := toSet(filter.EnrollmentIDs)[request.EnrollmentID]; !ok {
			return false
		}
	}
	return true
}

func pageChangeRequests(requests []models.ChangeRequest, filter models.ChangeRequestFilter) []models.ChangeRequest {
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.After(requests[j].CreatedAt)
		}
		return requests[i].ID < requests[j].ID
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(requests) {
		return []models.ChangeRequest{}
	}
	end := offset + limit
	if end > len(requests) {
		end = len(requests)
	}
	return requests[offset:end]
}

func cloneTeacher(teacher models.Teacher) models.Teacher {
	teacher.Languages = append([]string(nil), teacher.Languages...)
	return teacher
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsLessonStatus(values []models.LessonStatus, target models.LessonStatus) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsEnrollmentStatus(values []models.EnrollmentStatus, target models.EnrollmentStatus) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsAction(values []models.LessonAuditAction, target models.LessonAuditAction) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
