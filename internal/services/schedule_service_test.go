package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/trustedcoder/typira-home/internal/models"
)

type memScheduleRepo struct {
	nextID    int64
	schedules map[int64]*models.Schedule
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{schedules: make(map[int64]*models.Schedule)}
}

func (m *memScheduleRepo) Create(_ context.Context, schedule *models.Schedule) error {
	m.nextID++
	schedule.ID = m.nextID
	schedule.CreatedAt = time.Now().UTC()
	schedule.UpdatedAt = schedule.CreatedAt
	copied := *schedule
	m.schedules[schedule.ID] = &copied
	return nil
}

func (m *memScheduleRepo) GetByID(_ context.Context, id int64, userID string) (*models.Schedule, error) {
	schedule, ok := m.schedules[id]
	if !ok || schedule.UserID != userID {
		return nil, sql.ErrNoRows
	}
	copied := *schedule
	return &copied, nil
}

func (m *memScheduleRepo) ListByUser(_ context.Context, userID string) ([]*models.Schedule, error) {
	var out []*models.Schedule
	for _, schedule := range m.schedules {
		if schedule.UserID == userID {
			copied := *schedule
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memScheduleRepo) Update(_ context.Context, schedule *models.Schedule) error {
	existing, ok := m.schedules[schedule.ID]
	if !ok || existing.UserID != schedule.UserID {
		return sql.ErrNoRows
	}
	copied := *schedule
	m.schedules[schedule.ID] = &copied
	return nil
}

func (m *memScheduleRepo) Delete(_ context.Context, id int64, userID string) error {
	existing, ok := m.schedules[id]
	if !ok || existing.UserID != userID {
		return sql.ErrNoRows
	}
	delete(m.schedules, id)
	return nil
}

func TestScheduleServiceCreateValidation(t *testing.T) {
	svc := NewScheduleService(newMemScheduleRepo())
	ctx := context.Background()

	tests := []struct {
		name    string
		req     models.CreateScheduleRequest
		wantErr bool
	}{
		{"valid everyday", models.CreateScheduleRequest{Title: "Briefing", Timezone: "UTC", Recurrence: "Everyday", TimeOfDay: "09:00"}, false},
		{"valid weekday", models.CreateScheduleRequest{Title: "Weekly", Timezone: "America/New_York", Recurrence: "Friday", TimeOfDay: "17:30"}, false},
		{"valid date", models.CreateScheduleRequest{Title: "One-off", Timezone: "UTC", Recurrence: "2026-12-24", TimeOfDay: "08:00"}, false},
		{"missing title", models.CreateScheduleRequest{Timezone: "UTC", Recurrence: "Everyday", TimeOfDay: "09:00"}, true},
		{"bad timezone", models.CreateScheduleRequest{Title: "X", Timezone: "Atlantis/Central", Recurrence: "Everyday", TimeOfDay: "09:00"}, true},
		{"bad time format", models.CreateScheduleRequest{Title: "X", Timezone: "UTC", Recurrence: "Everyday", TimeOfDay: "9am"}, true},
		{"bad recurrence", models.CreateScheduleRequest{Title: "X", Timezone: "UTC", Recurrence: "fortnightly", TimeOfDay: "09:00"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "u1", &tt.req)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Errorf("expected ErrInvalidSchedule, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestScheduleServiceUpdateRevalidates(t *testing.T) {
	repo := newMemScheduleRepo()
	svc := NewScheduleService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "u1", &models.CreateScheduleRequest{
		Title: "Briefing", Timezone: "UTC", Recurrence: "Everyday", TimeOfDay: "09:00",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	bad := "25:99"
	if _, err := svc.Update(ctx, created.ID, "u1", &models.UpdateScheduleRequest{TimeOfDay: &bad}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for bad timeOfDay, got %v", err)
	}

	// The stored schedule is unchanged after the rejected update.
	stored, err := svc.Get(ctx, created.ID, "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.TimeOfDay != "09:00" {
		t.Errorf("rejected update must not persist, got %q", stored.TimeOfDay)
	}
}

func TestScheduleServiceOwnershipScoping(t *testing.T) {
	repo := newMemScheduleRepo()
	svc := NewScheduleService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "u1", &models.CreateScheduleRequest{
		Title: "Briefing", Timezone: "UTC", Recurrence: "Everyday", TimeOfDay: "09:00",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.Get(ctx, created.ID, "u2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("another user's schedule must not be readable, got %v", err)
	}
	if err := svc.Delete(ctx, created.ID, "u2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("another user's schedule must not be deletable, got %v", err)
	}
}

func TestNextRunAt(t *testing.T) {
	// Monday 2026-03-02, 10:00 UTC.
	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule models.Schedule
		want     *time.Time
	}{
		{
			"everyday later today",
			models.Schedule{Timezone: "UTC", Recurrence: "Everyday", TimeOfDay: "18:30"},
			timePtr(time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)),
		},
		{
			"everyday rolls to tomorrow",
			models.Schedule{Timezone: "UTC", Recurrence: "Everyday", TimeOfDay: "06:00"},
			timePtr(time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)),
		},
		{
			"weekday next week",
			models.Schedule{Timezone: "UTC", Recurrence: "Monday", TimeOfDay: "09:00"},
			timePtr(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)),
		},
		{
			"future date",
			models.Schedule{Timezone: "UTC", Recurrence: "2026-03-05", TimeOfDay: "12:00"},
			timePtr(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)),
		},
		{
			"past date never runs",
			models.Schedule{Timezone: "UTC", Recurrence: "2026-03-01", TimeOfDay: "12:00"},
			nil,
		},
		{
			"local timezone conversion",
			models.Schedule{Timezone: "America/New_York", Recurrence: "Everyday", TimeOfDay: "09:00"},
			timePtr(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)), // 09:00 EST
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRunAt(&tt.schedule, from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected no next run, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %v, got nil", tt.want)
			}
			if !got.Equal(*tt.want) {
				t.Errorf("NextRunAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRunAtBadConfig(t *testing.T) {
	schedule := &models.Schedule{ID: 5, Timezone: "UTC", Recurrence: "sometimes", TimeOfDay: "09:00"}
	_, err := NextRunAt(schedule, time.Now())
	var configErr *ScheduleConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ScheduleConfigError, got %v", err)
	}
	if configErr.ScheduleID != 5 {
		t.Errorf("error must carry the schedule ID, got %d", configErr.ScheduleID)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
