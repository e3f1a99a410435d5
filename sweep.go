package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stupid-simple/sweeper/config"
	"github.com/stupid-simple/sweeper/database"
	"github.com/stupid-simple/sweeper/sweep"
)

func sweepCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Sweep.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	db, err := openDatabase(ctx, args.Sweep.Database, logger, args.Sweep.DryRun)
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Sweep.Limit = args.Sweep.Limit
	cfg.Sweep.Concurrency = max(args.Sweep.Concurrency, 1)
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := args.Sweep.At
	if now.IsZero() {
		now = time.Now()
	}

	res, err := newRunner(cfg.Sweep, db, logger).Run(ctx, now)
	if err != nil {
		return err
	}

	if args.Sweep.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("could not encode sweep result: %w", err)
		}
	}

	if failed := res.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d schedules failed", failed, res.Processed)
	}
	return nil
}

func newRunner(cfg config.ConfigSweep, db *database.Database, logger zerolog.Logger) *sweep.Runner {
	owner := cfg.Owner
	if owner == "" {
		owner, _ = os.Hostname()
	}
	if owner == "" {
		owner = "sweep"
	}

	return sweep.NewRunner(
		sweep.RunnerParams{
			Ledger: db,
			Logger: logger,
		},
		sweep.WithOwner(owner),
		sweep.WithLease(cfg.Lease.Duration),
		sweep.WithLimit(cfg.Limit),
		sweep.WithConcurrency(cfg.Concurrency),
		sweep.WithEstimator(sweep.HashEstimator{
			MinMB: cfg.MinSize.MB(),
			MaxMB: cfg.MaxSize.MB(),
		}),
		sweep.WithNotifier(&logNotifier{logger: logger}),
	)
}
