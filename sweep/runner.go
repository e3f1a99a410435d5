package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stupid-simple/sweeper/database"
	"github.com/stupid-simple/sweeper/metrics"
	"github.com/stupid-simple/sweeper/schedule"
	"golang.org/x/sync/errgroup"
)

// Ledger is the part of the schedule ledger a sweep needs.
type Ledger interface {
	ClaimDueSchedules(ctx context.Context, now time.Time, p database.ClaimParams) ([]database.BackupSchedule, bool, error)
	CreateScheduledBackup(ctx context.Context, s *database.BackupSchedule, now time.Time, sizeMB int64) (*database.Backup, error)
	AdvanceSchedule(ctx context.Context, id string, owner string, now time.Time, nextRunAt time.Time) error
	ReleaseSchedule(ctx context.Context, id string, owner string) error
	PruneExpired(ctx context.Context, siteID string, backupType schedule.BackupType, cutoff time.Time) (int64, error)
}

// Notifier receives the result of every sweep, e.g. to alert on failed runs.
type Notifier interface {
	Notify(ctx context.Context, res *Result) error
}

type RunnerParams struct {
	Ledger Ledger
	Logger zerolog.Logger
}

type Runner struct {
	ledger Ledger
	logger zerolog.Logger
	opts   options
}

func NewRunner(params RunnerParams, opts ...Option) *Runner {
	o := options{
		estimator:   HashEstimator{MinMB: 50, MaxMB: 500},
		owner:       defaultOwner,
		lease:       defaultLease,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.lease <= 0 {
		o.lease = defaultLease
	}

	return &Runner{
		ledger: params.Ledger,
		logger: params.Logger,
		opts:   o,
	}
}

// Run performs one sweep over the schedules due at now. Only a failure to
// read the due set is returned as an error; per-schedule failures are
// reported in the result. Once the due set is claimed the sweep runs to
// completion even if ctx is cancelled, so no claimed schedule is left
// half-processed.
func (r *Runner) Run(ctx context.Context, now time.Time) (res *Result, err error) {
	startTime := time.Now()
	owner := r.opts.owner + "-" + uuid.NewString()
	logger := r.logger.With().Str("sweep", owner).Logger()

	logger.Info().Time("now", now).Msg("starting sweep")
	defer func() {
		metrics.ObserveSweep(startTime, err)
		tookSeconds := time.Since(startTime).Seconds()
		if err != nil {
			logger.Error().Err(err).Float64("seconds", tookSeconds).Msg("sweep failed")
			return
		}
		logger.Info().Object("result", res).Float64("seconds", tookSeconds).Msg("sweep done")
	}()

	claimed, hasMore, err := r.ledger.ClaimDueSchedules(ctx, now, database.ClaimParams{
		Owner: owner,
		Lease: r.opts.lease,
		Limit: r.opts.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerRead, err)
	}
	if hasMore {
		logger.Warn().Int("limit", r.opts.limit).Msg("due schedules left for the next sweep")
	}

	workCtx := context.WithoutCancel(ctx)
	results := make([]ScheduleResult, len(claimed))

	g := errgroup.Group{}
	g.SetLimit(r.opts.concurrency)
	for i := range claimed {
		g.Go(func() error {
			results[i] = r.runSchedule(workCtx, logger, owner, &claimed[i], now)
			return nil
		})
	}
	_ = g.Wait()

	res = &Result{
		Processed: len(results),
		Results:   results,
		HasMore:   hasMore,
	}

	if r.opts.notifier != nil {
		if err := r.opts.notifier.Notify(workCtx, res); err != nil {
			logger.Warn().Err(err).Msg("could not notify sweep result")
		}
	}

	return res, nil
}

func (r *Runner) runSchedule(
	ctx context.Context,
	parent zerolog.Logger,
	owner string,
	s *database.BackupSchedule,
	now time.Time,
) ScheduleResult {
	logger := parent.With().Str("schedule", s.ID).Str("site", s.SiteID).Logger()

	if err := s.Frequency.Validate(); err != nil {
		return r.fail(ctx, logger, owner, s, err)
	}

	sizeMB, err := r.opts.estimator.EstimateSizeMB(ctx, s, now)
	if err != nil {
		return r.fail(ctx, logger, owner, s, fmt.Errorf("%w: estimate size: %w", ErrBackupCreationFailed, err))
	}

	backup, err := r.ledger.CreateScheduledBackup(ctx, s, now, sizeMB)
	if err != nil {
		return r.fail(ctx, logger, owner, s, fmt.Errorf("%w: %w", ErrBackupCreationFailed, err))
	}

	res := ScheduleResult{
		ScheduleID: s.ID,
		Success:    true,
		BackupID:   backup.ID,
	}
	metrics.IncScheduleRun(true)

	next, err := schedule.NextRun(s.Frequency, now)
	if err != nil {
		// Frequency was validated above, keep the lease so the row is not
		// retried until it expires.
		r.warn(logger, &res, "advance", fmt.Errorf("%w: %w", ErrScheduleAdvanceFailed, err))
	} else {
		res.NextRunAt = &next
		if err := r.ledger.AdvanceSchedule(ctx, s.ID, owner, now, next); err != nil {
			r.warn(logger, &res, "advance", fmt.Errorf("%w: %w", ErrScheduleAdvanceFailed, err))
		}
	}

	cutoff := now.AddDate(0, 0, -s.RetentionDays)
	pruned, err := r.ledger.PruneExpired(ctx, s.SiteID, schedule.TypeScheduled, cutoff)
	if err != nil {
		r.warn(logger, &res, "prune", fmt.Errorf("%w: %w", ErrPruneFailed, err))
	} else {
		res.Pruned = pruned
		metrics.AddPruned(pruned)
	}

	logger.Info().
		Str("backup", backup.ID).
		Int64("size_mb", sizeMB).
		Time("next_run_at", next).
		Int64("pruned", pruned).
		Msg("schedule run recorded")

	return res
}

// fail releases the lease so the schedule stays due with its original
// timestamps, and reports the schedule as failed.
func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, owner string, s *database.BackupSchedule, err error) ScheduleResult {
	logger.Error().Err(err).Object("schedule", s).Msg("schedule run failed")
	metrics.IncScheduleRun(false)

	if relErr := r.ledger.ReleaseSchedule(ctx, s.ID, owner); relErr != nil {
		logger.Warn().Err(relErr).Msg("could not release schedule lease")
	}

	return ScheduleResult{
		ScheduleID: s.ID,
		Success:    false,
		Error:      err.Error(),
		err:        err,
	}
}

func (r *Runner) warn(logger zerolog.Logger, res *ScheduleResult, step string, err error) {
	logger.Warn().Err(err).Str("step", step).Msg("schedule run incomplete")
	metrics.IncWarning(step)
	res.Warnings = append(res.Warnings, err.Error())
}
