package database

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/sweeper/schedule"
)

type BackupSchedule struct {
	ID            string              `gorm:"primaryKey" json:"id"`
	SiteID        string              `gorm:"index;not null" json:"site_id"`
	Name          string              `json:"name"`
	Frequency     schedule.Frequency  `gorm:"not null" json:"frequency"`
	BackupType    schedule.BackupType `gorm:"not null" json:"backup_type"`
	RetentionDays int                 `gorm:"not null" json:"retention_days"`
	IsEnabled     bool                `gorm:"index;not null" json:"is_enabled"`
	LastRunAt     *time.Time          `json:"last_run_at,omitempty"`
	NextRunAt     time.Time           `gorm:"index;not null" json:"next_run_at"`
	ClaimedBy     *string             `json:"claimed_by,omitempty"`
	ClaimedUntil  *time.Time          `json:"claimed_until,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (s BackupSchedule) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", s.ID)
	e.Str("site_id", s.SiteID)
	e.Str("name", s.Name)
	e.Str("frequency", string(s.Frequency))
	e.Str("backup_type", string(s.BackupType))
	e.Int("retention_days", s.RetentionDays)
	e.Bool("enabled", s.IsEnabled)
	e.Time("next_run_at", s.NextRunAt)
	if s.LastRunAt != nil {
		e.Time("last_run_at", *s.LastRunAt)
	}
}

type BackupStatus string

const (
	StatusPending    BackupStatus = "pending"
	StatusInProgress BackupStatus = "in_progress"
	StatusCompleted  BackupStatus = "completed"
	StatusFailed     BackupStatus = "failed"
)

type Backup struct {
	ID          string              `gorm:"primaryKey" json:"id"`
	SiteID      string              `gorm:"index:idx_backup_site_type;not null" json:"site_id"`
	ScheduleID  *string             `gorm:"index" json:"schedule_id,omitempty"`
	Name        string              `json:"name"`
	BackupType  schedule.BackupType `gorm:"index:idx_backup_site_type;not null" json:"backup_type"`
	Status      BackupStatus        `gorm:"not null" json:"status"`
	SizeMB      int64               `json:"size_mb"`
	CreatedAt   time.Time           `gorm:"index" json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	Notes       string              `json:"notes,omitempty"`
}

func (b Backup) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", b.ID)
	e.Str("site_id", b.SiteID)
	e.Str("name", b.Name)
	e.Str("backup_type", string(b.BackupType))
	e.Str("status", string(b.Status))
	e.Int64("size_mb", b.SizeMB)
	e.Time("created_at", b.CreatedAt)
}

// Models lists every table managed by the ledger, in migration order.
func Models() []any {
	return []any{&BackupSchedule{}, &Backup{}}
}
