package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
)

// RecurrenceGenerator expands a template start into the occurrences a repetition policy asks for.
type RecurrenceGenerator struct {
	cal      calendar
	maxWeeks int
}

// NewRecurrenceGenerator constructs a generator bound to the reference timezone.
func NewRecurrenceGenerator(loc *time.Location, maxWeeks int) *RecurrenceGenerator {
	if maxWeeks <= 0 {
		maxWeeks = 52
	}
	return &RecurrenceGenerator{cal: newCalendar(loc), maxWeeks: maxWeeks}
}

// Expand returns the distinct occurrence starts in chronological order, template first.
// Weekly steps keep the local wall-clock time across DST changes.
func (g *RecurrenceGenerator) Expand(start time.Time, policy *dto.RepetitionPolicy) ([]time.Time, error) {
	start = start.UTC()
	if policy == nil {
		return []time.Time{start}, nil
	}
	if policy.WeeklyCount < 0 || policy.WeeklyCount > g.maxWeeks {
		return nil, invalid(fmt.Sprintf("weeklyCount must be between 1 and %d", g.maxWeeks))
	}
	if policy.ContinuationWeeks < 0 || policy.ContinuationWeeks > g.maxWeeks {
		return nil, invalid(fmt.Sprintf("continuationWeeks must be between 1 and %d", g.maxWeeks))
	}
	if policy.ContinuationWeeks > 0 && policy.SameWeekStartAt == nil {
		return nil, invalid("continuationWeeks requires sameWeekStartAt")
	}

	occurrences := []time.Time{start}
	for week := 1; week < policy.WeeklyCount; week++ {
		occurrences = append(occurrences, g.cal.addWeeks(start, week))
	}

	if policy.SameWeekStartAt != nil {
		extra := policy.SameWeekStartAt.UTC()
		weekStart := g.cal.sundayOf(start)
		weekEnd := weekStart.AddDate(0, 0, 7)
		if extra.Before(weekStart) || !extra.Before(weekEnd) {
			return nil, invalid(fmt.Sprintf("sameWeekStartAt must fall between %s and %s",
				weekStart.Format("Mon 02/01/2006"), weekEnd.AddDate(0, 0, -1).Format("Mon 02/01/2006")))
		}
		if extra.Equal(start) {
			return nil, invalid("sameWeekStartAt must differ from startAt")
		}
		occurrences = append(occurrences, extra)
		for week := 1; week <= policy.ContinuationWeeks; week++ {
			occurrences = append(occurrences, g.cal.addWeeks(start, week), g.cal.addWeeks(extra, week))
		}
	}

	return dedupeStarts(occurrences), nil
}

func dedupeStarts(starts []time.Time) []time.Time {
	seen := make(map[int64]struct{}, len(starts))
	out := make([]time.Time, 0, len(starts))
	for _, s := range starts {
		key := s.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
