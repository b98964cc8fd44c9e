package service

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
)

// AvailabilityService manages the weekly slots of teachers.
type AvailabilityService struct {
	store     repository.Store
	timezone  string
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(store repository.Store, cfg config.SchedulingConfig, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timezone := cfg.ReferenceTimezone
	if timezone == "" && cfg.Location != nil {
		timezone = cfg.Location.String()
	}
	return &AvailabilityService{store: store, timezone: timezone, validator: validator.New(), logger: logger}
}

// Get lists a teacher's slots. A teacher without slots is open at any time.
func (s *AvailabilityService) Get(ctx context.Context, teacherID string) (*dto.TeacherAvailabilityResponse, error) {
	if _, err := s.store.GetTeacher(ctx, teacherID); err != nil {
		return nil, storeError(err, "teacher not found", "failed to load teacher")
	}
	slots, err := s.store.ListSlots(ctx, teacherID)
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to load availability")
	}
	return s.response(teacherID, slots), nil
}

// Replace swaps the teacher's whole slot set. Existing lessons are not re-validated.
func (s *AvailabilityService) Replace(ctx context.Context, teacherID string, req dto.ReplaceAvailabilityRequest) (*dto.TeacherAvailabilityResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if _, err := s.store.GetTeacher(ctx, teacherID); err != nil {
		return nil, storeError(err, "teacher not found", "failed to load teacher")
	}

	slots := make([]models.AvailabilitySlot, 0, len(req.Slots))
	for _, input := range req.Slots {
		slots = append(slots, models.AvailabilitySlot{
			TeacherID:    teacherID,
			DayOfWeek:    input.DayOfWeek,
			StartMinutes: input.StartMinutes,
			EndMinutes:   input.EndMinutes,
		})
	}
	err := s.store.WithTeacherLock(ctx, []string{teacherID}, func(tx repository.Tx) error {
		return tx.ReplaceSlots(ctx, teacherID, slots)
	})
	if err != nil {
		return nil, storeError(err, "teacher not found", "failed to replace availability")
	}

	s.logger.Info("availability replaced", zap.String("teacher_id", teacherID), zap.Int("slots", len(slots)))
	return s.response(teacherID, slots), nil
}

func (s *AvailabilityService) response(teacherID string, slots []models.AvailabilitySlot) *dto.TeacherAvailabilityResponse {
	sorted := append([]models.AvailabilitySlot{}, slots...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DayOfWeek != sorted[j].DayOfWeek {
			return sorted[i].DayOfWeek < sorted[j].DayOfWeek
		}
		return sorted[i].StartMinutes < sorted[j].StartMinutes
	})
	return &dto.TeacherAvailabilityResponse{
		TeacherID:  teacherID,
		AlwaysOpen: len(sorted) == 0,
		Slots:      sorted,
		Timezone:   s.timezone,
	}
}
