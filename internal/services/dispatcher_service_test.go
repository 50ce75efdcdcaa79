package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trustedcoder/typira-home/internal/models"
	"github.com/trustedcoder/typira-home/internal/oracle"
)

type fakeScheduleSource struct {
	mu        sync.Mutex
	schedules []*models.Schedule
	denyClaim bool
	claims    []int64
}

func (f *fakeScheduleSource) ListAll(context.Context) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Schedule(nil), f.schedules...), nil
}

func (f *fakeScheduleSource) ClaimDue(_ context.Context, id int64, minuteStart, firedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyClaim {
		return false, nil
	}
	for _, schedule := range f.schedules {
		if schedule.ID != id {
			continue
		}
		if schedule.LastFiredAt != nil && !schedule.LastFiredAt.Before(minuteStart) {
			return false, nil
		}
		fired := firedAt
		schedule.LastFiredAt = &fired
		f.claims = append(f.claims, id)
		return true, nil
	}
	return false, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	failFor  string // fail when ActionDescription contains this
	requests []*oracle.InsightRequest
}

func (f *fakeGenerator) GenerateScheduledInsight(_ context.Context, req *oracle.InsightRequest) (*models.GeneratedInsight, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.failFor != "" && strings.Contains(req.ActionDescription, f.failFor) {
		return nil, &oracle.Error{Kind: oracle.KindUnavailable, Op: "generate", Err: fmt.Errorf("provider down")}
	}
	return &models.GeneratedInsight{
		Title:            "Morning Focus",
		ShortDescription: "Two things stand out from your notes.",
		FullResult:       "## Details\nFull findings here.",
	}, nil
}

type capturedNotification struct {
	userID string
	title  string
	body   string
	data   map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []capturedNotification
}

func (f *fakeNotifier) Notify(_ context.Context, userID, title, body string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, capturedNotification{userID: userID, title: title, body: body, data: data})
}

func (f *fakeNotifier) byUser(userID string) []capturedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []capturedNotification
	for _, n := range f.sent {
		if n.userID == userID {
			out = append(out, n)
		}
	}
	return out
}

type fakeMemoryStore struct {
	mu     sync.Mutex
	stored []*models.Memory
}

func (f *fakeMemoryStore) StoreMemory(_ context.Context, userID, content, sourceTag string, tags []string) (*models.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	memory := &models.Memory{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Content:   content,
		SourceTag: sourceTag,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
	f.stored = append(f.stored, memory)
	return memory, nil
}

func (f *fakeMemoryStore) RecentMemories(context.Context, string, int) ([]*models.Memory, error) {
	return nil, nil
}

func newTestDispatcher(source *fakeScheduleSource, generator *fakeGenerator, notifier *fakeNotifier, memories *fakeMemoryStore) *DispatcherService {
	var store MemoryStore
	if memories != nil {
		store = memories
	}
	return NewDispatcherService(source, nil, store, nil, generator, notifier, nil, nil, nil)
}

func everydaySchedule(id int64, userID, timeOfDay string) *models.Schedule {
	return &models.Schedule{
		ID:         id,
		UserID:     userID,
		Title:      "Daily briefing",
		Timezone:   "UTC",
		Recurrence: models.RecurrenceEveryday,
		TimeOfDay:  timeOfDay,
	}
}

func TestIsDueMinuteGuard(t *testing.T) {
	svc := newTestDispatcher(&fakeScheduleSource{}, &fakeGenerator{}, &fakeNotifier{}, nil)
	schedule := everydaySchedule(1, "u1", "09:00")

	firedAt := time.Date(2026, 3, 2, 9, 0, 5, 0, time.UTC)
	schedule.LastFiredAt = &firedAt

	// Later in the same minute: the guard holds.
	due, err := svc.isDue(schedule, time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if due {
		t.Errorf("schedule fired this minute must not be due again")
	}

	// Same wall-clock minute the next day: due again.
	due, err = svc.isDue(schedule, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Errorf("schedule must be due the next day")
	}
}

func TestIsDueRecurrence(t *testing.T) {
	svc := newTestDispatcher(&fakeScheduleSource{}, &fakeGenerator{}, &fakeNotifier{}, nil)

	// 2026-03-02 is a Monday. 14:00 UTC is 09:00 in New York (EST).
	monday := time.Date(2026, 3, 2, 14, 0, 10, 0, time.UTC)
	tuesday := monday.Add(24 * time.Hour)

	tests := []struct {
		name       string
		recurrence string
		timezone   string
		timeOfDay  string
		now        time.Time
		want       bool
	}{
		{"everyday matches", models.RecurrenceEveryday, "UTC", "14:00", monday, true},
		{"everyday wrong minute", models.RecurrenceEveryday, "UTC", "14:01", monday, false},
		{"weekday matches in local tz", "Monday", "America/New_York", "09:00", monday, true},
		{"weekday case-insensitive", "monday", "America/New_York", "09:00", monday, true},
		{"weekday not today", "Monday", "America/New_York", "09:00", tuesday, false},
		{"date matches", "2026-03-02", "UTC", "14:00", monday, true},
		{"date passed", "2026-03-01", "UTC", "14:00", monday, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := &models.Schedule{
				ID:         7,
				UserID:     "u1",
				Timezone:   tt.timezone,
				Recurrence: tt.recurrence,
				TimeOfDay:  tt.timeOfDay,
			}
			due, err := svc.isDue(schedule, tt.now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if due != tt.want {
				t.Errorf("isDue = %v, want %v", due, tt.want)
			}
		})
	}
}

func TestIsDueBadConfig(t *testing.T) {
	svc := newTestDispatcher(&fakeScheduleSource{}, &fakeGenerator{}, &fakeNotifier{}, nil)

	tests := []struct {
		name     string
		schedule *models.Schedule
	}{
		{"bad timezone", &models.Schedule{ID: 1, Timezone: "Mars/Olympus", Recurrence: models.RecurrenceEveryday, TimeOfDay: "09:00"}},
		{"bad recurrence", &models.Schedule{ID: 2, Timezone: "UTC", Recurrence: "fortnightly", TimeOfDay: "09:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
			_, err := svc.isDue(tt.schedule, now)
			var configErr *ScheduleConfigError
			if err == nil {
				t.Fatalf("expected config error")
			}
			if !errors.As(err, &configErr) {
				t.Fatalf("expected ScheduleConfigError, got %T", err)
			}
		})
	}
}

func TestTickIsolatesFailingSchedule(t *testing.T) {
	source := &fakeScheduleSource{}
	for i := int64(1); i <= 3; i++ {
		schedule := everydaySchedule(i, fmt.Sprintf("u%d", i), "09:00")
		if i == 2 {
			schedule.ActionDescription = "broken summary"
		}
		source.schedules = append(source.schedules, schedule)
	}

	generator := &fakeGenerator{failFor: "broken"}
	notifier := &fakeNotifier{}
	memories := &fakeMemoryStore{}
	svc := newTestDispatcher(source, generator, notifier, memories)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 12, 0, time.UTC) }

	svc.tick()
	svc.wg.Wait()

	if len(source.claims) != 3 {
		t.Fatalf("expected all 3 schedules claimed, got %d", len(source.claims))
	}

	// Users 1 and 3 get the generated insight.
	for _, userID := range []string{"u1", "u3"} {
		sent := notifier.byUser(userID)
		if len(sent) != 1 {
			t.Fatalf("expected 1 notification for %s, got %d", userID, len(sent))
		}
		if sent[0].title != "Morning Focus" {
			t.Errorf("unexpected title for %s: %q", userID, sent[0].title)
		}
		if sent[0].data["memory_id"] == "" {
			t.Errorf("expected memory_id in notification data for %s", userID)
		}
	}

	// User 2's generation failed: placeholder notification, no memory.
	sent := notifier.byUser("u2")
	if len(sent) != 1 {
		t.Fatalf("expected placeholder notification for u2, got %d", len(sent))
	}
	if !strings.Contains(sent[0].body, "standing by") {
		t.Errorf("expected standing-by placeholder, got %q", sent[0].body)
	}
	for _, memory := range memories.stored {
		if memory.UserID == "u2" {
			t.Errorf("failed generation must not store a memory")
		}
	}
	if len(memories.stored) != 2 {
		t.Errorf("expected 2 stored memories, got %d", len(memories.stored))
	}
}

func TestTickSecondScanDoesNotRefire(t *testing.T) {
	source := &fakeScheduleSource{schedules: []*models.Schedule{everydaySchedule(1, "u1", "09:00")}}
	generator := &fakeGenerator{}
	notifier := &fakeNotifier{}
	svc := newTestDispatcher(source, generator, notifier, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 12, 0, time.UTC) }

	svc.tick()
	svc.wg.Wait()
	// A second scan in the same minute sees last_fired_at and stands down.
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 45, 0, time.UTC) }
	svc.tick()
	svc.wg.Wait()

	if got := len(notifier.byUser("u1")); got != 1 {
		t.Errorf("expected exactly one firing per minute, got %d notifications", got)
	}
}

func TestFireSkipsWhenClaimLost(t *testing.T) {
	source := &fakeScheduleSource{
		schedules: []*models.Schedule{everydaySchedule(1, "u1", "09:00")},
		denyClaim: true,
	}
	generator := &fakeGenerator{}
	notifier := &fakeNotifier{}
	svc := newTestDispatcher(source, generator, notifier, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 12, 0, time.UTC) }

	svc.tick()
	svc.wg.Wait()

	if len(generator.requests) != 0 {
		t.Errorf("lost claim must not reach the generator")
	}
	if len(notifier.sent) != 0 {
		t.Errorf("lost claim must not notify, got %d", len(notifier.sent))
	}
}

func TestFireStoresTaggedMemory(t *testing.T) {
	source := &fakeScheduleSource{schedules: []*models.Schedule{everydaySchedule(42, "u1", "09:00")}}
	generator := &fakeGenerator{}
	notifier := &fakeNotifier{}
	memories := &fakeMemoryStore{}
	svc := newTestDispatcher(source, generator, notifier, memories)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }

	svc.tick()
	svc.wg.Wait()

	if len(memories.stored) != 1 {
		t.Fatalf("expected 1 stored memory, got %d", len(memories.stored))
	}
	memory := memories.stored[0]
	if memory.SourceTag != models.MemorySourceScheduledInsight {
		t.Errorf("unexpected source tag %q", memory.SourceTag)
	}
	if len(memory.Tags) != 1 || memory.Tags[0] != "scheduler_42" {
		t.Errorf("expected scheduler_42 tag, got %v", memory.Tags)
	}
	if memory.Content != "## Details\nFull findings here." {
		t.Errorf("memory must hold the full formatted result, got %q", memory.Content)
	}
}
