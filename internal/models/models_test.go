package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlapsIsSymmetricAndHalfOpen(t *testing.T) {
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"partial", base, base.Add(time.Hour), base.Add(30 * time.Minute), base.Add(90 * time.Minute), true},
		{"touching", base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"contained", base, base.Add(2 * time.Hour), base.Add(30 * time.Minute), base.Add(time.Hour), true},
		{"disjoint", base, base.Add(time.Hour), base.Add(3 * time.Hour), base.Add(4 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
			assert.Equal(t, tc.want, Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd))
		})
	}
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "e1", Enrollment{ID: "e1", LessonType: LessonTypeParticular, GroupName: "x"}.GroupKey())
	assert.Equal(t, "group:kids", Enrollment{ID: "e2", LessonType: LessonTypeGrupo, GroupName: "kids"}.GroupKey())
	assert.Equal(t, "e3", Enrollment{ID: "e3", LessonType: LessonTypeGrupo}.GroupKey())
}

func TestCourseRequiredLanguages(t *testing.T) {
	assert.Equal(t, []string{LanguageIngles}, CourseIngles.RequiredLanguages())
	assert.Equal(t, []string{LanguageEspanhol}, CourseEspanhol.RequiredLanguages())
	assert.ElementsMatch(t, []string{LanguageIngles, LanguageEspanhol}, CourseInglesEspanhol.RequiredLanguages())
	assert.Nil(t, Course("FRANCES").RequiredLanguages())
}

func TestLessonNormalizeDerivesEnd(t *testing.T) {
	l := Lesson{StartAt: time.Date(2024, 3, 4, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600)), DurationMinutes: 45}
	l.Normalize()
	assert.Equal(t, time.UTC, l.StartAt.Location())
	assert.Equal(t, time.Date(2024, 3, 4, 13, 45, 0, 0, time.UTC), l.EndAt)
}

func TestActorFromClaims(t *testing.T) {
	actor := ActorFromClaims(&JWTClaims{UserID: "u1", Role: RoleAdmin, Email: "a@b.c"})
	assert.Equal(t, "a@b.c", actor.Label())
	assert.True(t, actor.Role.IsAdmin())
	assert.Equal(t, "system", ActorFromClaims(nil).Label())
}
