package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is a background maintenance task with its own cadence
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobScheduler runs registered maintenance jobs on per-job timers. Each job
// reschedules itself after every run from GetNextRunTime.
type JobScheduler struct {
	jobs    map[string]Job
	timers  map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:   make(map[string]Job),
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job under a stable name
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	log.Printf("✅ [JOBS] Registered job: %s", name)
}

// Start schedules every registered job
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	log.Printf("🚀 [JOBS] Starting job scheduler with %d jobs", len(s.jobs))

	for name, job := range s.jobs {
		s.scheduleJob(name, job)
	}
}

func (s *JobScheduler) scheduleJob(name string, job Job) {
	nextRun := job.GetNextRunTime()
	duration := time.Until(nextRun)

	log.Printf("⏰ [JOBS] Job '%s' next run at %s (in %v)", name, nextRun.Format(time.RFC3339), duration)

	s.timers[name] = time.AfterFunc(duration, func() {
		s.runJob(name, job)
	})
}

func (s *JobScheduler) runJob(name string, job Job) {
	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ [JOBS] Job '%s' failed: %v", name, err)
	} else {
		log.Printf("✅ [JOBS] Job '%s' completed in %v", name, time.Since(start))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.scheduleJob(name, job)
	}
}

// RunNow executes a job immediately without touching its timer
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		log.Printf("⚠️ [JOBS] Job '%s' not found", name)
		return nil
	}
	return job.Run(s.ctx)
}

// Status lists each job's next run time
func (s *JobScheduler) Status() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]time.Time, len(s.jobs))
	for name, job := range s.jobs {
		status[name] = job.GetNextRunTime()
	}
	return status
}

// Stop cancels all timers and waits for running jobs
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("✅ [JOBS] Job scheduler stopped")
}
