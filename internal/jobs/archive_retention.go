package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// ArchivePruner is the part of the archive the retention job needs
type ArchivePruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveRetentionJob deletes archived verdicts older than the retention window
type ArchiveRetentionJob struct {
	archive   ArchivePruner
	retention time.Duration
	schedule  cron.Schedule
	now       func() time.Time
}

// NewArchiveRetentionJob creates the retention job. cronExpr is a standard five-field expression.
func NewArchiveRetentionJob(archive ArchivePruner, retention time.Duration, cronExpr string) (*ArchiveRetentionJob, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cronExpr, err)
	}

	return &ArchiveRetentionJob{
		archive:   archive,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
	}, nil
}

// Run deletes everything logged before now minus the retention window
func (j *ArchiveRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	log.Printf("[RETENTION] Deleting archived verdicts before %s", cutoff.Format(time.RFC3339))

	deleted, err := j.archive.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	log.Printf("[RETENTION] Cleanup complete: deleted %d entries", deleted)
	return nil
}

// GetNextRunTime returns the next time the cron expression fires
func (j *ArchiveRetentionJob) GetNextRunTime() time.Time {
	return j.schedule.Next(j.now())
}
