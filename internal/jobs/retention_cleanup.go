package jobs

import (
	"context"
	"log"
	"time"
)

// FragmentPruner deletes fragments older than a cutoff, returning the count.
type FragmentPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionCleanupJob prunes typing fragments past the retention horizon.
// Old intents stop informing insights at some point; keeping them forever is
// a privacy liability, not a feature.
type RetentionCleanupJob struct {
	fragments     FragmentPruner
	retentionDays int
}

func NewRetentionCleanupJob(fragments FragmentPruner, retentionDays int) *RetentionCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &RetentionCleanupJob{fragments: fragments, retentionDays: retentionDays}
}

func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	log.Printf("[RETENTION] Pruning fragments not updated since %s", cutoff.Format("2006-01-02"))

	deleted, err := j.fragments.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	log.Printf("[RETENTION] Deleted %d stale fragments", deleted)
	return nil
}

// GetNextRunTime schedules the job daily at 2 AM UTC
func (j *RetentionCleanupJob) GetNextRunTime() time.Time {
	now := time.Now().UTC()
	nextRun := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, time.UTC)
	if now.After(nextRun) {
		nextRun = nextRun.Add(24 * time.Hour)
	}
	return nextRun
}
