package database

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stupid-simple/sweeper/schedule"
	"gorm.io/gorm"
)

var validate = validator.New()

type NewSchedule struct {
	SiteID        string              `validate:"required,max=128"`
	Name          string              `validate:"required,max=200"`
	Frequency     schedule.Frequency  `validate:"required,oneof=daily weekly monthly"`
	BackupType    schedule.BackupType `validate:"required,oneof=full files database scheduled"`
	RetentionDays int                 `validate:"gt=0,lte=3650"`
	Enabled       bool
}

// CreateSchedule stores a new schedule whose first run is the next
// occurrence of its frequency after now.
func (d *Database) CreateSchedule(ctx context.Context, params NewSchedule, now time.Time) (*BackupSchedule, error) {
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	// The run hour is anchored in the caller's location, the same way the
	// sweep computes later runs.
	next, err := schedule.NextRun(params.Frequency, now)
	if err != nil {
		return nil, err
	}
	now = now.UTC()

	record := &BackupSchedule{
		ID:            uuid.NewString(),
		SiteID:        params.SiteID,
		Name:          params.Name,
		Frequency:     params.Frequency,
		BackupType:    params.BackupType,
		RetentionDays: params.RetentionDays,
		IsEnabled:     params.Enabled,
		NextRunAt:     next.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Object("schedule", record).Msg("would create schedule (dry run)")
		return record, nil
	}

	if err := d.Cli.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}

	d.Logger.Info().Object("schedule", record).Msg("schedule created")
	return record, nil
}

func (d *Database) GetSchedule(ctx context.Context, id string) (*BackupSchedule, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	record := &BackupSchedule{}
	err := d.Cli.WithContext(ctx).Where("id = ?", id).First(record).Error
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, notFound(err))
	}
	return record, nil
}

func (d *Database) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Str("schedule", id).Bool("enabled", enabled).Msg("would update schedule (dry run)")
		return nil
	}

	res := d.Cli.WithContext(ctx).Model(&BackupSchedule{}).
		Where("id = ?", id).
		Update("is_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("update schedule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (d *Database) DeleteSchedule(ctx context.Context, id string) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Str("schedule", id).Msg("would delete schedule (dry run)")
		return nil
	}

	res := d.Cli.WithContext(ctx).Where("id = ?", id).Delete(&BackupSchedule{})
	if res.Error != nil {
		return fmt.Errorf("delete schedule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

// IterSchedules walks schedules ordered by id, fetching them in batches.
func (d *Database) IterSchedules(ctx context.Context, opts ...FindSchedulesOptions) iter.Seq[BackupSchedule] {
	o := findSchedulesOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(BackupSchedule) bool) {
		cursor := ""
		for {
			query := d.Cli.WithContext(ctx).Where("id > ?", cursor)
			if o.siteID != "" {
				query = query.Where("site_id = ?", o.siteID)
			}
			if o.onlyEnabled {
				query = query.Where("is_enabled = ?", true)
			}

			batch := []BackupSchedule{}
			d.Lock.Lock()
			err := query.Order("id").Limit(iterateBatchSize).Find(&batch).Error
			d.Lock.Unlock()
			if err != nil {
				d.Logger.Error().Err(err).Msg("error fetching schedules from database")
				return
			}

			for _, s := range batch {
				if ctx.Err() != nil {
					return
				}
				if !yield(s) {
					return
				}
			}
			if len(batch) < iterateBatchSize {
				return
			}
			cursor = batch[len(batch)-1].ID
		}
	}
}

// ListDueSchedules returns every enabled schedule with next_run_at <= now.
// It reads the whole due set in batches and never truncates it.
func (d *Database) ListDueSchedules(ctx context.Context, now time.Time) ([]BackupSchedule, error) {
	now = now.UTC()

	due := []BackupSchedule{}
	err := d.dueInBatches(ctx, now, false, func(batch []BackupSchedule) (bool, error) {
		due = append(due, batch...)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return due, nil
}

type ClaimParams struct {
	// Owner identifies the sweep holding the lease.
	Owner string
	// Lease bounds how long a claim blocks other sweeps if the owner
	// never advances or releases the schedule.
	Lease time.Duration
	// Limit caps the number of schedules claimed, 0 means no limit.
	Limit int
}

// ClaimDueSchedules leases every due schedule that is not already leased by
// another sweep. Each claim is a single conditional UPDATE, so two
// overlapping sweeps never both claim the same row. hasMore reports that
// Limit stopped the claim before the due set was exhausted.
func (d *Database) ClaimDueSchedules(ctx context.Context, now time.Time, p ClaimParams) (claimed []BackupSchedule, hasMore bool, err error) {
	if p.Owner == "" {
		return nil, false, fmt.Errorf("claim due schedules: owner is required")
	}
	if p.Lease <= 0 {
		return nil, false, fmt.Errorf("claim due schedules: lease must be positive")
	}

	now = now.UTC()
	until := now.Add(p.Lease)
	owner := p.Owner

	claimed = []BackupSchedule{}
	err = d.dueInBatches(ctx, now, true, func(batch []BackupSchedule) (bool, error) {
		for _, s := range batch {
			if p.Limit > 0 && len(claimed) >= p.Limit {
				hasMore = true
				return false, nil
			}

			ok, err := d.claimOne(ctx, s.ID, now, owner, until)
			if err != nil {
				return false, err
			}
			if !ok {
				d.Logger.Debug().Str("schedule", s.ID).Msg("schedule claimed by another sweep")
				continue
			}

			s.ClaimedBy = &owner
			s.ClaimedUntil = &until
			claimed = append(claimed, s)
		}
		return true, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("claim due schedules: %w", err)
	}

	return claimed, hasMore, nil
}

func (d *Database) claimOne(ctx context.Context, id string, now time.Time, owner string, until time.Time) (bool, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		return true, nil
	}

	res := d.Cli.WithContext(ctx).Model(&BackupSchedule{}).
		Where("id = ? AND is_enabled = ? AND next_run_at <= ?", id, true, now).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Updates(map[string]any{
			"claimed_by":    owner,
			"claimed_until": until,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// dueInBatches pages through due schedules by id. Rows leased by a sweep are
// skipped when unclaimedOnly is set.
func (d *Database) dueInBatches(
	ctx context.Context,
	now time.Time,
	unclaimedOnly bool,
	onBatch func(batch []BackupSchedule) (bool, error),
) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		query := d.Cli.WithContext(ctx).
			Where("is_enabled = ? AND next_run_at <= ? AND id > ?", true, now, cursor)
		if unclaimedOnly {
			query = query.Where("(claimed_until IS NULL OR claimed_until <= ?)", now)
		}

		batch := []BackupSchedule{}
		d.Lock.Lock()
		err := query.Order("id").Limit(iterateBatchSize).Find(&batch).Error
		d.Lock.Unlock()
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		cont, err := onBatch(batch)
		if err != nil {
			return err
		}
		if !cont || len(batch) < iterateBatchSize {
			return nil
		}
		cursor = batch[len(batch)-1].ID
	}
}

// AdvanceSchedule records a run at now, moves next_run_at forward and
// drops the lease held by owner, in one statement.
func (d *Database) AdvanceSchedule(ctx context.Context, id string, owner string, now time.Time, nextRunAt time.Time) error {
	now = now.UTC()
	nextRunAt = nextRunAt.UTC()

	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Str("schedule", id).Time("next_run_at", nextRunAt).Msg("would advance schedule (dry run)")
		return nil
	}

	res := d.Cli.WithContext(ctx).Model(&BackupSchedule{}).
		Where("id = ? AND claimed_by = ?", id, owner).
		Updates(map[string]any{
			"last_run_at":   now,
			"next_run_at":   nextRunAt,
			"claimed_by":    gorm.Expr("NULL"),
			"claimed_until": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return fmt.Errorf("advance schedule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("advance schedule %s: %w", id, ErrLeaseLost)
	}
	return nil
}

// ReleaseSchedule drops the lease without touching the run timestamps, so
// the schedule stays due for the next sweep.
func (d *Database) ReleaseSchedule(ctx context.Context, id string, owner string) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		return nil
	}

	res := d.Cli.WithContext(ctx).Model(&BackupSchedule{}).
		Where("id = ? AND claimed_by = ?", id, owner).
		Updates(map[string]any{
			"claimed_by":    gorm.Expr("NULL"),
			"claimed_until": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return fmt.Errorf("release schedule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("release schedule %s: %w", id, ErrLeaseLost)
	}
	return nil
}
