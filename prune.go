package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/sweeper/database"
	"github.com/stupid-simple/sweeper/metrics"
	"github.com/stupid-simple/sweeper/schedule"
)

func pruneCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Prune.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	startTime := time.Now()
	logger.Info().Msg("starting pruning expired backups")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("pruning cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("pruning done")
		}
	}()

	db, err := openDatabase(ctx, args.Prune.Database, logger, args.Prune.DryRun)
	if err != nil {
		return err
	}

	deleted, err := pruneExpiredBackups(ctx, pruneParams{
		siteID: args.Prune.Site,
		now:    time.Now(),
		db:     db,
		logger: logger,
	})
	if err != nil {
		return err
	}

	if deleted > 0 {
		logger.Info().Int64("backups_deleted", deleted).Msg("deleted expired backups")
	} else {
		logger.Info().Msg("no expired backups found")
	}
	return nil
}

type pruneParams struct {
	siteID string
	now    time.Time
	db     *database.Database
	logger zerolog.Logger
}

// pruneExpiredBackups applies the retention of every schedule to the
// scheduled backups of its site. A site with several schedules is pruned
// once per schedule, so the shortest retention wins.
func pruneExpiredBackups(ctx context.Context, p pruneParams) (int64, error) {
	opts := []database.FindSchedulesOptions{}
	if p.siteID != "" {
		opts = append(opts, database.WithFindSchedulesSite(p.siteID))
	}

	total := int64(0)
	for s := range p.db.IterSchedules(ctx, opts...) {
		if ctx.Err() != nil {
			break
		}
		logger := p.logger.With().Str("schedule", s.ID).Str("site", s.SiteID).Logger()

		cutoff := p.now.AddDate(0, 0, -s.RetentionDays)
		n, err := p.db.PruneExpired(ctx, s.SiteID, schedule.TypeScheduled, cutoff)
		if err != nil {
			return total, fmt.Errorf("error pruning backups of site %s: %w", s.SiteID, err)
		}
		logger.Debug().Time("cutoff", cutoff).Int64("deleted", n).Msg("pruned schedule retention")

		if !p.db.DryRun {
			metrics.AddPruned(n)
		}
		total += n
	}

	return total, nil
}
