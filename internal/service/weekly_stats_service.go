package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/export"
	"github.com/noah-isme/lesson-scheduler/pkg/jobs"
)

// WeeklyStatsJobType identifies cache warm-up jobs.
const WeeklyStatsJobType = "stats.weekly.warm"

const weeklyStatsKeyPrefix = "stats:weekly:"

// scheduledDays is the Monday-Saturday teaching week.
const scheduledDays = 6

type warmQueue interface {
	TryEnqueue(job jobs.Job) error
	Pending() int
}

// WeeklyStatsService aggregates one Monday-Saturday window and caches the result.
type WeeklyStatsService struct {
	store    repository.Reader
	cache    *CacheService
	queue    warmQueue
	exporter *export.PDFExporter
	metrics  *MetricsService
	cal      calendar
	timezone string
	mode     string
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	genMu       sync.Mutex
	epoch       uint64
	generations map[string]uint64
}

// NewWeeklyStatsService constructs the service. cache may be nil.
func NewWeeklyStatsService(store repository.Reader, cache *CacheService, scheduling config.SchedulingConfig, stats config.StatsConfig, metrics *MetricsService, logger *zap.Logger) *WeeklyStatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := scheduling.FrequencyMode
	if mode != config.FrequencyModeMinutes {
		mode = config.FrequencyModeCount
	}
	cal := newCalendar(scheduling.Location)
	return &WeeklyStatsService{
		store:    store,
		cache:    cache,
		exporter: export.NewPDFExporter(),
		metrics:  metrics,
		cal:      cal,
		timezone: cal.loc.String(),
		mode:     mode,
		ttl:      stats.CacheTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },

		generations: make(map[string]uint64),
	}
}

// AttachQueue enables asynchronous re-warming of invalidated weeks.
func (s *WeeklyStatsService) AttachQueue(queue warmQueue) {
	s.queue = queue
}

// CacheKey returns the cache key of the week containing instant.
func (s *WeeklyStatsService) CacheKey(instant time.Time) string {
	return weeklyStatsKeyPrefix + s.cal.mondayOf(instant).Format("2006-01-02")
}

// Weekly returns the statistics of the week containing reference, from cache when possible.
func (s *WeeklyStatsService) Weekly(ctx context.Context, reference time.Time) (*models.WeeklyStats, error) {
	stats, _, err := s.Lookup(ctx, reference)
	return stats, err
}

// Lookup is Weekly that also reports whether the cache served the result.
func (s *WeeklyStatsService) Lookup(ctx context.Context, reference time.Time) (*models.WeeklyStats, bool, error) {
	key := s.CacheKey(reference)
	var cached models.WeeklyStats
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	gen := s.generation(key)
	stats, err := s.Compute(ctx, reference)
	if err != nil {
		return nil, false, err
	}
	_ = s.cacheIfCurrent(ctx, key, gen, stats)
	return stats, false, nil
}

// generation returns the invalidation counter of key. A result computed under an
// older generation must not be cached.
func (s *WeeklyStatsService) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.epoch + s.generations[key]
}

func (s *WeeklyStatsService) bump(keys ...string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	for _, key := range keys {
		s.generations[key]++
	}
}

// cacheIfCurrent caches stats unless key was invalidated after gen was read.
func (s *WeeklyStatsService) cacheIfCurrent(ctx context.Context, key string, gen uint64, stats *models.WeeklyStats) error {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.epoch+s.generations[key] != gen {
		s.logger.Debug("weekly stats discarded, week changed during computation", zap.String("key", key))
		return nil
	}
	return s.cache.Set(ctx, key, stats, s.ttl)
}

// Invalidate drops the cached weeks containing the instants and schedules their recomputation.
func (s *WeeklyStatsService) Invalidate(ctx context.Context, instants ...time.Time) {
	if !s.cache.Enabled() || len(instants) == 0 {
		return
	}
	weeks := make(map[string]time.Time)
	for _, instant := range instants {
		weeks[s.CacheKey(instant)] = s.cal.mondayOf(instant)
	}
	keys := make([]string, 0, len(weeks))
	for key := range weeks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	s.bump(keys...)
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return
	}

	if s.queue == nil {
		return
	}
	for _, key := range keys {
		job := jobs.Job{ID: key, Type: WeeklyStatsJobType, Payload: weeks[key]}
		if err := s.queue.TryEnqueue(job); err != nil {
			s.logger.Warn("weekly stats warm-up not scheduled", zap.String("key", key), zap.Error(err))
		}
	}
	s.metrics.SetQueueDepth(s.queue.Pending())
}

// WarmJob recomputes and caches one week. It is the handler of the warm-up queue.
func (s *WeeklyStatsService) WarmJob(ctx context.Context, job jobs.Job) error {
	monday, ok := job.Payload.(time.Time)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	key := s.CacheKey(monday)
	gen := s.generation(key)
	stats, err := s.Compute(ctx, monday)
	if err != nil {
		return err
	}
	if s.queue != nil {
		s.metrics.SetQueueDepth(s.queue.Pending())
	}
	return s.cacheIfCurrent(ctx, key, gen, stats)
}

// Purge drops every cached week.
func (s *WeeklyStatsService) Purge(ctx context.Context) error {
	if !s.cache.Enabled() {
		return nil
	}
	s.genMu.Lock()
	s.epoch++
	s.genMu.Unlock()
	return s.cache.Invalidate(ctx, weeklyStatsKeyPrefix+"*")
}

// Compute aggregates the week containing reference without touching the cache.
func (s *WeeklyStatsService) Compute(ctx context.Context, reference time.Time) (*models.WeeklyStats, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveStatsComputation(time.Since(started)) }()

	weekStart := s.cal.mondayOf(reference)
	weekEnd := weekStart.AddDate(0, 0, scheduledDays)
	from, to := weekStart.UTC(), weekEnd.UTC()

	overlapping, err := s.store.ListLessons(ctx, models.LessonFilter{From: &from, To: &to})
	if err != nil {
		return nil, storeError(err, "lesson not found", "failed to load lessons")
	}
	lessons := make([]models.Lesson, 0, len(overlapping))
	for _, lesson := range overlapping {
		if !lesson.StartAt.Before(from) && lesson.StartAt.Before(to) {
			lessons = append(lessons, lesson)
		}
	}

	teachers, err := s.teachersOf(ctx, lessons)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.store.ListEnrollments(ctx, models.EnrollmentFilter{})
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollments")
	}
	byEnrollment := make(map[string]models.Enrollment, len(enrollments))
	for _, enrollment := range enrollments {
		byEnrollment[enrollment.ID] = enrollment
	}

	stats := &models.WeeklyStats{
		WeekStart:           from,
		WeekEnd:             to,
		Timezone:            s.timezone,
		FrequencyMode:       s.mode,
		DoubleBookings:      []models.DoubleBooking{},
		InactiveTeachers:    []models.InactiveTeacherLesson{},
		FrequencyMismatches: []models.FrequencyMismatch{},
		GeneratedAt:         s.now(),
	}
	for _, lesson := range lessons {
		switch lesson.Status {
		case models.LessonStatusConfirmed:
			stats.Confirmed++
		case models.LessonStatusCancelled:
			stats.Cancelled++
		case models.LessonStatusReposicao:
			stats.Reposicao++
		}
	}

	stats.DoubleBookings = doubleBookings(lessons, teachers, byEnrollment)
	stats.InactiveTeachers = inactiveTeacherLessons(lessons, teachers, byEnrollment)
	stats.FrequencyMismatches = s.frequencyMismatches(weekStart, lessons, enrollments)
	return stats, nil
}

func (s *WeeklyStatsService) teachersOf(ctx context.Context, lessons []models.Lesson) (map[string]models.Teacher, error) {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, lesson := range lessons {
		if _, ok := seen[lesson.TeacherID]; ok {
			continue
		}
		seen[lesson.TeacherID] = struct{}{}
		ids = append(ids, lesson.TeacherID)
	}
	out := make(map[string]models.Teacher, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	teachers, err := s.store.ListTeachers(ctx, models.TeacherFilter{IDs: ids})
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to load teachers")
	}
	for _, teacher := range teachers {
		out[teacher.ID] = teacher
	}
	return out, nil
}

// doubleBookings lists, per teacher, the live lessons overlapping a lesson of another enrollment.
func doubleBookings(lessons []models.Lesson, teachers map[string]models.Teacher, enrollments map[string]models.Enrollment) []models.DoubleBooking {
	byTeacher := make(map[string][]models.Lesson)
	for _, lesson := range lessons {
		if lesson.Status.Occupies() {
			byTeacher[lesson.TeacherID] = append(byTeacher[lesson.TeacherID], lesson)
		}
	}

	out := make([]models.DoubleBooking, 0)
	for teacherID, held := range byTeacher {
		sort.Slice(held, func(i, j int) bool { return held[i].StartAt.Before(held[j].StartAt) })
		flagged := make(map[int]bool)
		for i := range held {
			iStart, iEnd := held[i].Window()
			for j := i + 1; j < len(held) && held[j].StartAt.Before(iEnd); j++ {
				jStart, jEnd := held[j].Window()
				if !models.Overlaps(iStart, iEnd, jStart, jEnd) {
					continue
				}
				if held[i].EnrollmentID == held[j].EnrollmentID {
					continue
				}
				flagged[i], flagged[j] = true, true
			}
		}
		if len(flagged) == 0 {
			continue
		}
		booking := models.DoubleBooking{TeacherID: teacherID, TeacherName: teachers[teacherID].FullName}
		for i, lesson := range held {
			if flagged[i] {
				booking.Lessons = append(booking.Lessons, bookedLesson(lesson, enrollments))
			}
		}
		out = append(out, booking)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeacherName != out[j].TeacherName {
			return out[i].TeacherName < out[j].TeacherName
		}
		return out[i].TeacherID < out[j].TeacherID
	})
	return out
}

func inactiveTeacherLessons(lessons []models.Lesson, teachers map[string]models.Teacher, enrollments map[string]models.Enrollment) []models.InactiveTeacherLesson {
	out := make([]models.InactiveTeacherLesson, 0)
	for _, lesson := range lessons {
		teacher, ok := teachers[lesson.TeacherID]
		if !ok || teacher.Status == models.TeacherStatusActive || !lesson.Status.Occupies() {
			continue
		}
		out = append(out, models.InactiveTeacherLesson{
			TeacherID:     teacher.ID,
			TeacherName:   teacher.FullName,
			TeacherStatus: teacher.Status,
			Lesson:        bookedLesson(lesson, enrollments),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TeacherName != out[j].TeacherName {
			return out[i].TeacherName < out[j].TeacherName
		}
		return out[i].Lesson.StartAt.Before(out[j].Lesson.StartAt)
	})
	return out
}

// frequencyMismatches compares each ACTIVE or PAUSED enrollment's live lessons with its
// contracted frequency prorated over the days it was not paused.
func (s *WeeklyStatsService) frequencyMismatches(weekStart time.Time, lessons []models.Lesson, enrollments []models.Enrollment) []models.FrequencyMismatch {
	byEnrollment := make(map[string][]models.Lesson)
	for _, lesson := range lessons {
		if lesson.Status.Occupies() {
			byEnrollment[lesson.EnrollmentID] = append(byEnrollment[lesson.EnrollmentID], lesson)
		}
	}

	out := make([]models.FrequencyMismatch, 0)
	for _, enrollment := range enrollments {
		if enrollment.Status != models.EnrollmentStatusActive && enrollment.Status != models.EnrollmentStatusPaused {
			continue
		}
		active := make(map[string]bool, scheduledDays)
		for d := 0; d < scheduledDays; d++ {
			day := weekStart.AddDate(0, 0, d)
			if !s.pausedOn(enrollment, day) {
				active[day.Format("2006-01-02")] = true
			}
		}
		if len(active) == 0 {
			continue
		}

		expected := int(math.Round(float64(enrollment.WeeklyFrequency*len(active)) / scheduledDays))
		actual := 0
		for _, lesson := range byEnrollment[enrollment.ID] {
			if !active[s.cal.local(lesson.StartAt).Format("2006-01-02")] {
				continue
			}
			if s.mode == config.FrequencyModeMinutes {
				actual += lesson.DurationMinutes
			} else {
				actual++
			}
		}
		if s.mode == config.FrequencyModeMinutes {
			expected *= enrollment.LessonMinutes
		}

		diff := expected - actual
		if diff == 0 {
			continue
		}
		out = append(out, models.FrequencyMismatch{
			EnrollmentID: enrollment.ID,
			StudentName:  enrollment.StudentName,
			GroupKey:     enrollment.GroupKey(),
			ActiveDays:   len(active),
			Expected:     expected,
			Actual:       actual,
			Diff:         diff,
			Suggestion:   s.suggestion(diff),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupKey != out[j].GroupKey {
			return out[i].GroupKey < out[j].GroupKey
		}
		return out[i].StudentName < out[j].StudentName
	})
	return out
}

// pausedOn reports whether day falls inside the enrollment's pause window.
func (s *WeeklyStatsService) pausedOn(enrollment models.Enrollment, day time.Time) bool {
	if enrollment.PausedAt == nil {
		return enrollment.Status == models.EnrollmentStatusPaused
	}
	if day.Before(s.cal.dayStart(*enrollment.PausedAt)) {
		return false
	}
	if enrollment.ActivationDate != nil && !day.Before(s.cal.dayStart(*enrollment.ActivationDate)) {
		return false
	}
	return true
}

func (s *WeeklyStatsService) suggestion(diff int) string {
	verb := "add"
	if diff < 0 {
		verb, diff = "remove", -diff
	}
	unit := "lesson"
	if s.mode == config.FrequencyModeMinutes {
		unit = "minute"
	}
	if diff != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%s %d %s", verb, diff, unit)
}

func bookedLesson(lesson models.Lesson, enrollments map[string]models.Enrollment) models.BookedLesson {
	start, end := lesson.Window()
	name := lesson.EnrollmentID
	if enrollment, ok := enrollments[lesson.EnrollmentID]; ok {
		name = enrollment.StudentName
	}
	return models.BookedLesson{
		LessonID:     lesson.ID,
		EnrollmentID: lesson.EnrollmentID,
		StudentName:  name,
		StartAt:      start,
		EndAt:        end,
	}
}

// Report renders the week containing reference as a PDF and returns it with a file name.
func (s *WeeklyStatsService) Report(ctx context.Context, reference time.Time) ([]byte, string, error) {
	report, monday, err := s.buildReport(ctx, reference)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.exporter.Render(report)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render weekly report")
	}
	return payload, fmt.Sprintf("weekly-stats-%s.pdf", monday.Format("2006-01-02")), nil
}

func (s *WeeklyStatsService) buildReport(ctx context.Context, reference time.Time) (export.Report, time.Time, error) {
	stats, err := s.Weekly(ctx, reference)
	if err != nil {
		return export.Report{}, time.Time{}, err
	}
	monday := s.cal.local(stats.WeekStart)
	saturday := monday.AddDate(0, 0, scheduledDays-1)

	return export.Report{
		Title:    "Weekly lesson statistics",
		Subtitle: fmt.Sprintf("%s - %s (%s)", monday.Format("Mon 02/01/2006"), saturday.Format("Mon 02/01/2006"), stats.Timezone),
		Summary: [][2]string{
			{"Confirmed", strconv.Itoa(stats.Confirmed)},
			{"Cancelled", strconv.Itoa(stats.Cancelled)},
			{"Reposicao", strconv.Itoa(stats.Reposicao)},
			{"Frequency mode", stats.FrequencyMode},
		},
		Sections: []export.Section{
			s.doubleBookingSection(stats),
			s.inactiveTeacherSection(stats),
			frequencySection(stats),
		},
	}, monday, nil
}

func (s *WeeklyStatsService) doubleBookingSection(stats *models.WeeklyStats) export.Section {
	section := export.Section{
		Heading: "Double bookings",
		Empty:   "No teacher holds overlapping lessons.",
		Data:    export.Dataset{Headers: []string{"Teacher", "Student", "Start", "End"}},
	}
	for _, booking := range stats.DoubleBookings {
		for _, lesson := range booking.Lessons {
			section.Data.Rows = append(section.Data.Rows, map[string]string{
				"Teacher": booking.TeacherName,
				"Student": lesson.StudentName,
				"Start":   s.cal.local(lesson.StartAt).Format("Mon 02/01 15:04"),
				"End":     s.cal.local(lesson.EndAt).Format("15:04"),
			})
		}
	}
	return section
}

func (s *WeeklyStatsService) inactiveTeacherSection(stats *models.WeeklyStats) export.Section {
	section := export.Section{
		Heading: "Lessons with inactive teachers",
		Empty:   "Every live lesson has an active teacher.",
		Data:    export.Dataset{Headers: []string{"Teacher", "Status", "Student", "Start"}},
	}
	for _, item := range stats.InactiveTeachers {
		section.Data.Rows = append(section.Data.Rows, map[string]string{
			"Teacher": item.TeacherName,
			"Status":  string(item.TeacherStatus),
			"Student": item.Lesson.StudentName,
			"Start":   s.cal.local(item.Lesson.StartAt).Format("Mon 02/01 15:04"),
		})
	}
	return section
}

func frequencySection(stats *models.WeeklyStats) export.Section {
	section := export.Section{
		Heading: "Frequency mismatches",
		Empty:   "Every enrollment matches its weekly frequency.",
		Data:    export.Dataset{Headers: []string{"Student", "Group", "Expected", "Actual", "Suggestion"}},
	}
	for _, item := range stats.FrequencyMismatches {
		section.Data.Rows = append(section.Data.Rows, map[string]string{
			"Student":    item.StudentName,
			"Group":      item.GroupKey,
			"Expected":   strconv.Itoa(item.Expected),
			"Actual":     strconv.Itoa(item.Actual),
			"Suggestion": item.Suggestion,
		})
	}
	return section
}
