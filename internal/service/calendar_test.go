package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestCalendarWeekBoundaries(t *testing.T) {
	cal := newCalendar(mustLoad(t, "America/Sao_Paulo"))
	// 2024-03-10 is a Sunday; 01:00 UTC is still Saturday 22:00 in Sao Paulo.
	instant := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)

	monday := cal.mondayOf(instant)
	assert.Equal(t, time.Monday, monday.Weekday())
	assert.Equal(t, "2024-03-04T00:00:00-03:00", monday.Format(time.RFC3339))

	sunday := cal.sundayOf(instant)
	assert.Equal(t, "2024-03-03T00:00:00-03:00", sunday.Format(time.RFC3339))
	assert.Equal(t, 22*3600, cal.secondOfDay(instant))
}

func TestCalendarAddWeeksKeepsWallClockAcrossDST(t *testing.T) {
	cal := newCalendar(mustLoad(t, "Europe/Lisbon"))
	// Lisbon moves from UTC+0 to UTC+1 on 2024-03-31.
	start := time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC)
	next := cal.addWeeks(start, 1)
	assert.Equal(t, 9, cal.local(next).Hour())
	assert.Equal(t, time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC), next)
}
