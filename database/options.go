package database

import (
	"time"

	"github.com/stupid-simple/sweeper/schedule"
)

type findBackupsOptions struct {
	limit         int
	backupType    *schedule.BackupType
	createdBefore *time.Time
}

type FindBackupsOptions func(*findBackupsOptions)

// Limit the number of backups returned.
func WithFindBackupsLimit(limit int) FindBackupsOptions {
	return func(o *findBackupsOptions) {
		o.limit = limit
	}
}

// Return only backups of the given type.
func WithFindBackupsType(t schedule.BackupType) FindBackupsOptions {
	return func(o *findBackupsOptions) {
		o.backupType = &t
	}
}

// Return only backups created strictly before t.
func WithFindBackupsCreatedBefore(t time.Time) FindBackupsOptions {
	return func(o *findBackupsOptions) {
		t = t.UTC()
		o.createdBefore = &t
	}
}

type findSchedulesOptions struct {
	siteID      string
	onlyEnabled bool
}

type FindSchedulesOptions func(*findSchedulesOptions)

// Return only schedules belonging to a site.
func WithFindSchedulesSite(siteID string) FindSchedulesOptions {
	return func(o *findSchedulesOptions) {
		o.siteID = siteID
	}
}

// Skip disabled schedules.
func WithFindSchedulesOnlyEnabled() FindSchedulesOptions {
	return func(o *findSchedulesOptions) {
		o.onlyEnabled = true
	}
}
