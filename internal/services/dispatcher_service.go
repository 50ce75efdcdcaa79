package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/trustedcoder/typira-home/internal/logging"
	"github.com/trustedcoder/typira-home/internal/models"
	"github.com/trustedcoder/typira-home/internal/oracle"
)

// ScheduleSource is the schedule surface the dispatcher scans and claims.
type ScheduleSource interface {
	ListAll(ctx context.Context) ([]*models.Schedule, error)
	ClaimDue(ctx context.Context, id int64, minuteStart, firedAt time.Time) (bool, error)
}

// FragmentReader provides recent typing history for prompt assembly.
type FragmentReader interface {
	RecentByUser(ctx context.Context, userID string, limit int) ([]models.TypingFragment, error)
}

// MemoryStore reads and appends the user's long-term memories.
type MemoryStore interface {
	StoreMemory(ctx context.Context, userID, content, sourceTag string, tags []string) (*models.Memory, error)
	RecentMemories(ctx context.Context, userID string, limit int) ([]*models.Memory, error)
}

// ActionReader provides recent approve/decline decisions.
type ActionReader interface {
	RecentByUser(ctx context.Context, userID string, limit int) ([]*models.UserAction, error)
}

// InsightGenerator produces a scheduled insight from assembled user context.
type InsightGenerator interface {
	GenerateScheduledInsight(ctx context.Context, req *oracle.InsightRequest) (*models.GeneratedInsight, error)
}

// Notifier delivers a notification to a user, fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// InsightRecorder counts delivered insights.
type InsightRecorder interface {
	RecordInsight(userID string)
}

const (
	historyLimit  = 30
	memoriesLimit = 20
	actionsLimit  = 15

	firingTimeout = 2 * time.Minute
)

// DispatcherService scans all schedules once a minute and fires the due ones.
// Firing is durable-first: the schedule row is claimed with a compare-and-set
// BEFORE any generation work, so a crash mid-generation can never double-fire
// and concurrent replicas race on the claim, not on delivery.
type DispatcherService struct {
	schedules   ScheduleSource
	fragments   FragmentReader
	memories    MemoryStore
	actions     ActionReader
	generator   InsightGenerator
	notifier    Notifier
	accumulator InsightRecorder
	redis       *RedisService
	metrics     *Metrics

	instanceID string
	now        func() time.Time

	scheduler gocron.Scheduler
	wg        sync.WaitGroup
}

// NewDispatcherService wires the dispatcher. redis, accumulator and metrics
// may be nil; fragments, memories and actions may be nil when the backing
// store is not configured (the prompt context section is simply empty).
func NewDispatcherService(schedules ScheduleSource, fragments FragmentReader, memories MemoryStore,
	actions ActionReader, generator InsightGenerator, notifier Notifier,
	accumulator InsightRecorder, redis *RedisService, metrics *Metrics) *DispatcherService {
	return &DispatcherService{
		schedules:   schedules,
		fragments:   fragments,
		memories:    memories,
		actions:     actions,
		generator:   generator,
		notifier:    notifier,
		accumulator: accumulator,
		redis:       redis,
		metrics:     metrics,
		instanceID:  uuid.NewString(),
		now:         time.Now,
	}
}

// Start begins the minute tick. Returns an error if the cron scheduler
// cannot be constructed.
func (s *DispatcherService) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.CronJob("* * * * *", false),
		gocron.NewTask(s.tick),
	)
	if err != nil {
		return fmt.Errorf("failed to register dispatch job: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	log.Println("⏰ [DISPATCH] Schedule dispatcher started (minute tick)")
	return nil
}

// Stop halts the tick and waits for in-flight firings to finish.
func (s *DispatcherService) Stop() {
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			log.Printf("⚠️ [DISPATCH] Scheduler shutdown error: %v", err)
		}
	}
	s.wg.Wait()
	log.Println("✅ [DISPATCH] Dispatcher stopped")
}

// tick scans every schedule against the current minute. One misconfigured
// or panicking schedule never blocks the rest of the scan.
func (s *DispatcherService) tick() {
	now := s.now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schedules, err := s.schedules.ListAll(ctx)
	if err != nil {
		log.Printf("❌ [DISPATCH] Failed to list schedules: %v", err)
		return
	}

	for _, schedule := range schedules {
		due, err := s.isDue(schedule, now)
		if err != nil {
			var configErr *ScheduleConfigError
			if errors.As(err, &configErr) {
				log.Printf("⚠️ [DISPATCH] Skipping misconfigured schedule %d: %v", schedule.ID, err)
				if s.metrics != nil {
					s.metrics.ScheduleFirings.WithLabelValues("misconfigured").Inc()
				}
			} else {
				log.Printf("❌ [DISPATCH] Failed to evaluate schedule %d: %v", schedule.ID, err)
			}
			continue
		}
		if !due {
			continue
		}

		s.wg.Add(1)
		go s.fire(schedule, now)
	}
}

// isDue decides whether a schedule matches the given UTC instant.
// Evaluation order: already-fired-this-minute guard, then local wall-clock
// match, then recurrence.
func (s *DispatcherService) isDue(schedule *models.Schedule, now time.Time) (bool, error) {
	const minuteFormat = "2006-01-02 15:04"

	if schedule.LastFiredAt != nil &&
		schedule.LastFiredAt.UTC().Format(minuteFormat) == now.Format(minuteFormat) {
		return false, nil
	}

	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return false, &ScheduleConfigError{ScheduleID: schedule.ID, Field: "timezone", Err: err}
	}
	local := now.In(loc)

	if local.Format("15:04") != schedule.TimeOfDay {
		return false, nil
	}

	switch {
	case schedule.Recurrence == models.RecurrenceEveryday:
		return true, nil
	case strings.EqualFold(schedule.Recurrence, local.Weekday().String()):
		return true, nil
	}
	if _, ok := weekdayCron[strings.ToLower(schedule.Recurrence)]; ok {
		// A weekday recurrence that isn't today.
		return false, nil
	}
	if _, err := time.Parse("2006-01-02", schedule.Recurrence); err == nil {
		return schedule.Recurrence == local.Format("2006-01-02"), nil
	}

	return false, &ScheduleConfigError{
		ScheduleID: schedule.ID,
		Field:      "recurrence",
		Err:        fmt.Errorf("unrecognized recurrence %q", schedule.Recurrence),
	}
}

// fire claims and executes one due schedule. Runs on its own goroutine; a
// panic here is contained to this schedule.
func (s *DispatcherService) fire(schedule *models.Schedule, now time.Time) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 [DISPATCH] Panic firing schedule %d: %v", schedule.ID, r)
			if s.metrics != nil {
				s.metrics.ScheduleFirings.WithLabelValues("panic").Inc()
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), firingTimeout)
	defer cancel()

	minuteStart := now.Truncate(time.Minute)

	// Redis lock narrows the race window between replicas; the DB claim
	// below is the authoritative guard.
	if s.redis != nil {
		lockKey := fmt.Sprintf("dispatch:schedule:%d:%s", schedule.ID, minuteStart.Format("200601021504"))
		acquired, err := s.redis.AcquireLock(ctx, lockKey, s.instanceID, 90*time.Second)
		if err != nil {
			log.Printf("⚠️ [DISPATCH] Lock check failed for schedule %d: %v", schedule.ID, err)
		} else if !acquired {
			return
		}
	}

	claimed, err := s.schedules.ClaimDue(ctx, schedule.ID, minuteStart, now)
	if err != nil {
		log.Printf("❌ [DISPATCH] Failed to claim schedule %d: %v", schedule.ID, err)
		if s.metrics != nil {
			s.metrics.ScheduleFirings.WithLabelValues("claim_error").Inc()
		}
		return
	}
	if !claimed {
		return
	}

	log.Printf("🚀 [DISPATCH] Firing schedule %d (%s) for user %s", schedule.ID, schedule.Title, schedule.UserID)
	s.generateAndDeliver(ctx, schedule, now)
}

// Trigger fires a schedule immediately, outside the minute scan. Used by the
// manual trigger endpoint; it does not consume the schedule's minute claim.
func (s *DispatcherService) Trigger(ctx context.Context, schedule *models.Schedule) {
	log.Printf("🚀 [DISPATCH] Manually triggering schedule %d for user %s", schedule.ID, schedule.UserID)
	s.generateAndDeliver(ctx, schedule, s.now().UTC())
}

func (s *DispatcherService) generateAndDeliver(ctx context.Context, schedule *models.Schedule, now time.Time) {
	request := &oracle.InsightRequest{
		ActionDescription: schedule.ActionDescription,
		History:           s.gatherHistory(ctx, schedule.UserID),
		Memories:          s.gatherMemories(ctx, schedule.UserID),
		Actions:           s.gatherActions(ctx, schedule.UserID),
		Now:               now,
	}

	insight, err := s.generator.GenerateScheduledInsight(ctx, request)
	if err != nil {
		// The claim stands: a failed generation consumed this minute.
		// Retrying next minute would spam the Oracle on persistent errors.
		log.Printf("❌ [DISPATCH] Insight generation failed for schedule %d: %v", schedule.ID, err)
		if s.metrics != nil {
			s.metrics.ScheduleFirings.WithLabelValues("generation_failed").Inc()
		}
		s.notifier.Notify(ctx, schedule.UserID, schedule.Title,
			"Typira is standing by. Your scheduled insight will be ready soon.",
			map[string]string{
				"type":        "scheduled_insight",
				"schedule_id": fmt.Sprintf("%d", schedule.ID),
			})
		return
	}

	data := map[string]string{
		"type":        "scheduled_insight",
		"schedule_id": fmt.Sprintf("%d", schedule.ID),
		"title":       insight.Title,
		"description": insight.ShortDescription,
	}

	if s.memories != nil {
		memory, err := s.memories.StoreMemory(ctx, schedule.UserID, insight.FullResult,
			models.MemorySourceScheduledInsight, []string{fmt.Sprintf("scheduler_%d", schedule.ID)})
		if err != nil {
			log.Printf("⚠️ [DISPATCH] Failed to store memory for schedule %d: %v", schedule.ID, err)
		} else {
			data["memory_id"] = memory.ID.Hex()
		}
	}

	s.notifier.Notify(ctx, schedule.UserID, insight.Title, insight.ShortDescription, data)

	if s.accumulator != nil {
		s.accumulator.RecordInsight(schedule.UserID)
	}
	if s.metrics != nil {
		s.metrics.ScheduleFirings.WithLabelValues("fired").Inc()
	}
	logging.WithSchedule(schedule.ID, schedule.UserID).Info("insight delivered", "title", insight.Title)
}

func (s *DispatcherService) gatherHistory(ctx context.Context, userID string) []string {
	if s.fragments == nil {
		return nil
	}
	fragments, err := s.fragments.RecentByUser(ctx, userID, historyLimit)
	if err != nil {
		log.Printf("⚠️ [DISPATCH] Failed to load typing history for user %s: %v", userID, err)
		return nil
	}
	lines := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		lines = append(lines, fmt.Sprintf("(Logged on %s) %s",
			fragment.UpdatedAt.Format("2006-01-02"), fragment.Content))
	}
	return lines
}

func (s *DispatcherService) gatherMemories(ctx context.Context, userID string) []string {
	if s.memories == nil {
		return nil
	}
	memories, err := s.memories.RecentMemories(ctx, userID, memoriesLimit)
	if err != nil {
		log.Printf("⚠️ [DISPATCH] Failed to load memories for user %s: %v", userID, err)
		return nil
	}
	lines := make([]string, 0, len(memories))
	for _, memory := range memories {
		lines = append(lines, memory.Content)
	}
	return lines
}

func (s *DispatcherService) gatherActions(ctx context.Context, userID string) []string {
	if s.actions == nil {
		return nil
	}
	actions, err := s.actions.RecentByUser(ctx, userID, actionsLimit)
	if err != nil {
		log.Printf("⚠️ [DISPATCH] Failed to load actions for user %s: %v", userID, err)
		return nil
	}
	lines := make([]string, 0, len(actions))
	for _, action := range actions {
		lines = append(lines, fmt.Sprintf("%s: %s (%s)",
			action.ActionID, action.Decision, action.CreatedAt.Format("2006-01-02")))
	}
	return lines
}
