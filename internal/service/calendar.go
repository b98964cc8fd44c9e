package service

import (
	"fmt"
	"time"
)

// calendar does every wall-clock computation in the reference timezone.
type calendar struct {
	loc *time.Location
}

func newCalendar(loc *time.Location) calendar {
	if loc == nil {
		loc = time.UTC
	}
	return calendar{loc: loc}
}

func (c calendar) local(t time.Time) time.Time {
	return t.In(c.loc)
}

// dayStart returns local midnight of t's reference-zone date.
func (c calendar) dayStart(t time.Time) time.Time {
	l := c.local(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc)
}

// secondOfDay is the wall-clock offset of t from local midnight.
func (c calendar) secondOfDay(t time.Time) int {
	l := c.local(t)
	return l.Hour()*3600 + l.Minute()*60 + l.Second()
}

// mondayOf returns Monday 00:00 of the week containing t.
func (c calendar) mondayOf(t time.Time) time.Time {
	day := c.dayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// sundayOf returns Sunday 00:00 of the Sunday-Saturday week containing t.
func (c calendar) sundayOf(t time.Time) time.Time {
	day := c.dayStart(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// addWeeks moves t by n weeks keeping its local wall-clock time.
func (c calendar) addWeeks(t time.Time, n int) time.Time {
	return c.local(t).AddDate(0, 0, 7*n).UTC()
}

func (c calendar) sameDate(a, b time.Time) bool {
	la, lb := c.local(a), c.local(b)
	return la.Year() == lb.Year() && la.YearDay() == lb.YearDay()
}

func (c calendar) formatSpan(start, end time.Time) string {
	ls, le := c.local(start), c.local(end)
	return fmt.Sprintf("%s %s-%s", ls.Format("Mon 02/01/2006"), ls.Format("15:04"), le.Format("15:04"))
}

func formatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
