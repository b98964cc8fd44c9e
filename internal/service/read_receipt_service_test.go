package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.current = c.current.Add(d)
	return c.current
}

func TestUnseenChangesFollowReceipts(t *testing.T) {
	clock := &fakeClock{current: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := seededStore(t)
	lessons := NewLessonService(store, NewConflictChecker(store, schedulingConfig(), nil, nil), schedulingConfig(), nil, WithLessonClock(clock.now))
	receipts := NewReadReceiptService(store, nil)
	receipts.now = clock.now
	ctx := context.Background()

	anaLesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})
	brunoLesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-lucas", TeacherID: "t-bruno", StartAt: at(1, 10, 0)})

	clock.advance(time.Minute)
	moved := at(2, 10, 0)
	_, err := lessons.Update(ctx, anaLesson.ID, dto.UpdateLessonRequest{StartAt: &moved}, adminActor)
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, err = lessons.Cancel(ctx, brunoLesson.ID, "student travelling", adminActor)
	require.NoError(t, err)

	forAna, err := receipts.ListUnseenChanges(ctx, anaActor, nil)
	require.NoError(t, err)
	require.Len(t, forAna, 1)
	assert.Equal(t, models.LessonAuditRescheduled, forAna[0].Event.Action)
	require.NotNil(t, forAna[0].Lesson)
	assert.Equal(t, moved, forAna[0].Lesson.StartAt)

	forStudent, err := receipts.ListUnseenChanges(ctx, studentActor, nil)
	require.NoError(t, err)
	require.Len(t, forStudent, 1)
	assert.Equal(t, models.LessonAuditRescheduled, forStudent[0].Event.Action)
	assert.Equal(t, anaLesson.ID, forStudent[0].Event.LessonID)

	unlinked, err := receipts.ListUnseenChanges(ctx, models.Actor{UserID: "u-lucas", Role: models.RoleStudent}, nil)
	require.NoError(t, err)
	assert.Empty(t, unlinked)

	forAdmin, err := receipts.ListUnseenChanges(ctx, adminActor, nil)
	require.NoError(t, err)
	assert.Empty(t, forAdmin)

	clock.advance(time.Minute)
	receipt, err := receipts.MarkViewed(ctx, anaActor, anaLesson.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.current, receipt.ViewedAt)

	forAna, err = receipts.ListUnseenChanges(ctx, anaActor, nil)
	require.NoError(t, err)
	assert.Empty(t, forAna)

	clock.advance(time.Minute)
	_, err = lessons.Cancel(ctx, anaLesson.ID, "", adminActor)
	require.NoError(t, err)

	forAna, err = receipts.ListUnseenChanges(ctx, anaActor, nil)
	require.NoError(t, err)
	require.Len(t, forAna, 1)
	assert.Equal(t, models.LessonAuditCancelled, forAna[0].Event.Action)

	later := clock.advance(time.Minute)
	forAna, err = receipts.ListUnseenChanges(ctx, anaActor, &later)
	require.NoError(t, err)
	assert.Empty(t, forAna)
}

func TestMarkViewedIsIdempotent(t *testing.T) {
	clock := &fakeClock{current: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := seededStore(t)
	receipts := NewReadReceiptService(store, nil)
	receipts.now = clock.now
	lesson := seedLesson(t, store, models.Lesson{EnrollmentID: "e-joao", TeacherID: "t-ana", StartAt: at(1, 10, 0)})

	first, err := receipts.MarkViewed(context.Background(), studentActor, lesson.ID)
	require.NoError(t, err)
	clock.advance(time.Hour)
	second, err := receipts.MarkViewed(context.Background(), studentActor, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, clock.current, second.ViewedAt)

	stored, err := store.ListReadReceipts(context.Background(), studentActor.UserID, []string{lesson.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestMarkViewedUnknownLesson(t *testing.T) {
	receipts := NewReadReceiptService(seededStore(t), nil)
	_, err := receipts.MarkViewed(context.Background(), studentActor, "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = receipts.MarkViewed(context.Background(), models.Actor{}, "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
