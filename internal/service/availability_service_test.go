package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

func TestAvailabilityReplaceAndGet(t *testing.T) {
	store := seededStore(t)
	svc := NewAvailabilityService(store, schedulingConfig(), nil)

	initial, err := svc.Get(context.Background(), "t-ana")
	require.NoError(t, err)
	assert.True(t, initial.AlwaysOpen)
	assert.Equal(t, "America/Sao_Paulo", initial.Timezone)

	replaced, err := svc.Replace(context.Background(), "t-ana", dto.ReplaceAvailabilityRequest{Slots: []dto.AvailabilitySlotInput{
		{DayOfWeek: 3, StartMinutes: 600, EndMinutes: 720},
		{DayOfWeek: 1, StartMinutes: 480, EndMinutes: 720},
	}})
	require.NoError(t, err)
	assert.False(t, replaced.AlwaysOpen)
	require.Len(t, replaced.Slots, 2)
	assert.Equal(t, 1, replaced.Slots[0].DayOfWeek)

	stored, err := svc.Get(context.Background(), "t-ana")
	require.NoError(t, err)
	assert.Len(t, stored.Slots, 2)

	cleared, err := svc.Replace(context.Background(), "t-ana", dto.ReplaceAvailabilityRequest{})
	require.NoError(t, err)
	assert.True(t, cleared.AlwaysOpen)
}

func TestAvailabilityReplaceValidation(t *testing.T) {
	svc := NewAvailabilityService(seededStore(t), schedulingConfig(), nil)

	_, err := svc.Replace(context.Background(), "t-ana", dto.ReplaceAvailabilityRequest{Slots: []dto.AvailabilitySlotInput{
		{DayOfWeek: 1, StartMinutes: 720, EndMinutes: 600},
	}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Replace(context.Background(), "t-ana", dto.ReplaceAvailabilityRequest{Slots: []dto.AvailabilitySlotInput{
		{DayOfWeek: 7, StartMinutes: 600, EndMinutes: 720},
	}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
