package database

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/stupid-simple/sweeper/schedule"
)

// CreateScheduledBackup records a completed backup produced by a schedule run
// at now. It is a single INSERT, a failure leaves no row behind.
func (d *Database) CreateScheduledBackup(ctx context.Context, s *BackupSchedule, now time.Time, sizeMB int64) (*Backup, error) {
	if s.RetentionDays <= 0 {
		return nil, fmt.Errorf("create backup for schedule %s: retention days must be positive, got %d", s.ID, s.RetentionDays)
	}

	now = now.UTC()
	expires := now.AddDate(0, 0, s.RetentionDays)
	completed := now
	scheduleID := s.ID

	record := &Backup{
		ID:          uuid.NewString(),
		SiteID:      s.SiteID,
		ScheduleID:  &scheduleID,
		Name:        fmt.Sprintf("%s %s", s.Name, now.Format("2006-01-02 15:04")),
		BackupType:  schedule.TypeScheduled,
		Status:      StatusCompleted,
		SizeMB:      sizeMB,
		CreatedAt:   now,
		CompletedAt: &completed,
		ExpiresAt:   &expires,
		Notes:       fmt.Sprintf("%s backup from schedule %s", s.Frequency, s.ID),
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Object("backup", record).Msg("would create backup (dry run)")
		return record, nil
	}

	if err := d.Cli.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("insert backup for schedule %s: %w", s.ID, err)
	}

	return record, nil
}

// PruneExpired deletes the backups of a site and type created before
// cutoff and returns how many were removed.
func (d *Database) PruneExpired(ctx context.Context, siteID string, backupType schedule.BackupType, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()

	d.Lock.Lock()
	defer d.Lock.Unlock()

	query := d.Cli.WithContext(ctx).
		Where("site_id = ? AND backup_type = ? AND created_at < ?", siteID, backupType, cutoff)

	if d.DryRun {
		var count int64
		if err := query.Model(&Backup{}).Count(&count).Error; err != nil {
			return 0, fmt.Errorf("count expired backups of site %s: %w", siteID, err)
		}
		d.Logger.Info().Str("site", siteID).Int64("count", count).Msg("would prune expired backups (dry run)")
		return count, nil
	}

	res := query.Delete(&Backup{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune backups of site %s: %w", siteID, res.Error)
	}
	if res.RowsAffected > 0 {
		d.Logger.Info().
			Str("site", siteID).
			Str("backup_type", string(backupType)).
			Time("cutoff", cutoff).
			Int64("deleted", res.RowsAffected).
			Msg("pruned expired backups")
	}
	return res.RowsAffected, nil
}

// IterBackups walks the backups of a site, newest first.
func (d *Database) IterBackups(ctx context.Context, siteID string, opts ...FindBackupsOptions) iter.Seq[Backup] {
	o := findBackupsOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(Backup) bool) {
		offset := 0
		remaining := o.limit
		for {
			var thisBatchSize int
			if remaining > 0 {
				thisBatchSize = min(remaining, iterateBatchSize)
			} else {
				thisBatchSize = iterateBatchSize
			}

			query := d.Cli.WithContext(ctx).Where("site_id = ?", siteID)
			if o.backupType != nil {
				query = query.Where("backup_type = ?", *o.backupType)
			}
			if o.createdBefore != nil {
				query = query.Where("created_at < ?", *o.createdBefore)
			}

			batch := []Backup{}
			d.Lock.Lock()
			err := query.Order("created_at DESC, id").
				Limit(thisBatchSize).
				Offset(offset).
				Find(&batch).Error
			d.Lock.Unlock()
			if err != nil {
				d.Logger.Error().Err(err).Msg("error fetching backups from database")
				return
			}

			for _, b := range batch {
				if ctx.Err() != nil {
					return
				}
				if !yield(b) {
					return
				}
			}
			if len(batch) < thisBatchSize {
				return
			}
			if remaining > 0 && remaining-thisBatchSize <= 0 {
				return
			}

			offset += thisBatchSize
			remaining -= thisBatchSize
		}
	}
}
