package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trustedcoder/typira-home/internal/models"
)

// ErrInvalidSchedule marks a create/update request that fails validation.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ScheduleRepository is the persistence surface the schedule service needs.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *models.Schedule) error
	GetByID(ctx context.Context, id int64, userID string) (*models.Schedule, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Schedule, error)
	Update(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id int64, userID string) error
}

// ScheduleService validates and manages user schedules.
type ScheduleService struct {
	repo ScheduleRepository
}

func NewScheduleService(repo ScheduleRepository) *ScheduleService {
	return &ScheduleService{repo: repo}
}

var weekdayCron = map[string]string{
	"monday":    "MON",
	"tuesday":   "TUE",
	"wednesday": "WED",
	"thursday":  "THU",
	"friday":    "FRI",
	"saturday":  "SAT",
	"sunday":    "SUN",
}

// validateScheduleConfig rejects configurations the dispatcher could never
// evaluate. Bad rows caught here never reach the minute scan.
func validateScheduleConfig(timezone, recurrence, timeOfDay string) error {
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, timezone)
	}
	if _, err := time.Parse("15:04", timeOfDay); err != nil {
		return fmt.Errorf("%w: timeOfDay must be HH:mm, got %q", ErrInvalidSchedule, timeOfDay)
	}
	if recurrence == models.RecurrenceEveryday {
		return nil
	}
	if _, ok := weekdayCron[strings.ToLower(recurrence)]; ok {
		return nil
	}
	if _, err := time.Parse("2006-01-02", recurrence); err == nil {
		return nil
	}
	return fmt.Errorf("%w: recurrence must be Everyday, a weekday name, or YYYY-MM-DD, got %q", ErrInvalidSchedule, recurrence)
}

func (s *ScheduleService) Create(ctx context.Context, userID string, req *models.CreateScheduleRequest) (*models.ScheduleResponse, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidSchedule)
	}
	if err := validateScheduleConfig(req.Timezone, req.Recurrence, req.TimeOfDay); err != nil {
		return nil, err
	}

	schedule := &models.Schedule{
		UserID:            userID,
		Title:             strings.TrimSpace(req.Title),
		ActionDescription: strings.TrimSpace(req.ActionDescription),
		Timezone:          req.Timezone,
		Recurrence:        req.Recurrence,
		TimeOfDay:         req.TimeOfDay,
	}
	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, err
	}
	return s.toResponse(schedule), nil
}

func (s *ScheduleService) Get(ctx context.Context, id int64, userID string) (*models.ScheduleResponse, error) {
	schedule, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(schedule), nil
}

func (s *ScheduleService) List(ctx context.Context, userID string) ([]*models.ScheduleResponse, error) {
	schedules, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	responses := make([]*models.ScheduleResponse, 0, len(schedules))
	for _, schedule := range schedules {
		responses = append(responses, s.toResponse(schedule))
	}
	return responses, nil
}

func (s *ScheduleService) Update(ctx context.Context, id int64, userID string, req *models.UpdateScheduleRequest) (*models.ScheduleResponse, error) {
	schedule, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidSchedule)
		}
		schedule.Title = strings.TrimSpace(*req.Title)
	}
	if req.ActionDescription != nil {
		schedule.ActionDescription = strings.TrimSpace(*req.ActionDescription)
	}
	if req.Timezone != nil {
		schedule.Timezone = *req.Timezone
	}
	if req.Recurrence != nil {
		schedule.Recurrence = *req.Recurrence
	}
	if req.TimeOfDay != nil {
		schedule.TimeOfDay = *req.TimeOfDay
	}
	if err := validateScheduleConfig(schedule.Timezone, schedule.Recurrence, schedule.TimeOfDay); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, schedule); err != nil {
		return nil, err
	}
	return s.toResponse(schedule), nil
}

// GetSchedule returns the raw schedule row. The manual trigger path needs
// the model, not the API response shape.
func (s *ScheduleService) GetSchedule(ctx context.Context, id int64, userID string) (*models.Schedule, error) {
	return s.repo.GetByID(ctx, id, userID)
}

func (s *ScheduleService) Delete(ctx context.Context, id int64, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}

func (s *ScheduleService) toResponse(schedule *models.Schedule) *models.ScheduleResponse {
	response := schedule.ToResponse()
	if next, err := NextRunAt(schedule, time.Now()); err == nil {
		response.NextRunAt = next
	}
	return response
}

// NextRunAt computes the next UTC instant a schedule will fire after `from`.
// Returns nil for one-shot date schedules whose date has passed.
func NextRunAt(schedule *models.Schedule, from time.Time) (*time.Time, error) {
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return nil, &ScheduleConfigError{ScheduleID: schedule.ID, Field: "timezone", Err: err}
	}
	tod, err := time.Parse("15:04", schedule.TimeOfDay)
	if err != nil {
		return nil, &ScheduleConfigError{ScheduleID: schedule.ID, Field: "time_of_day", Err: err}
	}

	// One-shot calendar date: compute directly, cron has no year field.
	if date, err := time.ParseInLocation("2006-01-02", schedule.Recurrence, loc); err == nil {
		at := time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), 0, 0, loc).UTC()
		if at.After(from) {
			return &at, nil
		}
		return nil, nil
	}

	dow := "*"
	if schedule.Recurrence != models.RecurrenceEveryday {
		abbrev, ok := weekdayCron[strings.ToLower(schedule.Recurrence)]
		if !ok {
			return nil, &ScheduleConfigError{
				ScheduleID: schedule.ID,
				Field:      "recurrence",
				Err:        fmt.Errorf("unrecognized recurrence %q", schedule.Recurrence),
			}
		}
		dow = abbrev
	}

	spec := fmt.Sprintf("CRON_TZ=%s %d %d * * %s", schedule.Timezone, tod.Minute(), tod.Hour(), dow)
	parsed, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, &ScheduleConfigError{ScheduleID: schedule.ID, Field: "recurrence", Err: err}
	}
	next := parsed.Next(from).UTC()
	return &next, nil
}
