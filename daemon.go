package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/sweeper/config"
	"github.com/stupid-simple/sweeper/database"
	"github.com/stupid-simple/sweeper/fileutils"
	"github.com/stupid-simple/sweeper/metrics"
	"github.com/stupid-simple/sweeper/scheduler"
	"github.com/stupid-simple/sweeper/sweep"
)

const configWatchInterval = 30 * time.Second

func daemonCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Daemon.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg := config.Default()
	if args.Daemon.Config != "" {
		var err error
		cfg, err = config.LoadFromFile(args.Daemon.Config)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
	}

	db, err := openDatabase(ctx, args.Daemon.Database, logger, args.Daemon.DryRun)
	if err != nil {
		return err
	}

	metrics.Register()
	if cfg.Metrics.Listen != "" {
		stop := startMetricsServer(cfg.Metrics.Listen, logger)
		defer stop()
	}

	scheduler := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	job, err := addSweepJobFromConfig(ctx, scheduler, cfg, db, logger)
	if err != nil {
		return fmt.Errorf("could not add sweep job: %w", err)
	}

	if args.Daemon.Config != "" {
		startConfigFileWatcher(ctx, args.Daemon.Config, logger, func(newCfg *config.Config) {
			if newCfg.Metrics.Listen != cfg.Metrics.Listen {
				logger.Warn().Str("listen", newCfg.Metrics.Listen).Msg("metrics listen address changes need a restart")
			}
			scheduler.RemoveJobs()
			if _, err := addSweepJobFromConfig(ctx, scheduler, newCfg, db, logger); err != nil {
				logger.Error().Err(err).Msg("failed to add sweep job")
			}
		})
	}

	if cfg.Sweep.RunOnStart {
		job.Run()
	}

	scheduler.Start()
	defer scheduler.Stop()
	logger.Info().Time("next", scheduler.NextRun()).Msg("sweeper daemon started")

	<-ctx.Done()
	logger.Info().Msg("sweeper daemon stopping")

	return nil
}

func addSweepJobFromConfig(
	ctx context.Context,
	scheduler *scheduler.Scheduler,
	cfg *config.Config,
	db *database.Database,
	logger zerolog.Logger,
) (*sweepJob, error) {
	job := &sweepJob{
		ctx:    ctx,
		runner: newRunner(cfg.Sweep, db, logger),
		logger: logger,
	}

	if err := scheduler.AddJob(ctx, cfg.Sweep.Schedule, job); err != nil {
		return nil, err
	}

	logger.Info().
		Object("sweep", cfg.Sweep).
		Msg("added sweep job")
	return job, nil
}

func startMetricsServer(addr string, logger zerolog.Logger) func() {
	srv := metrics.NewServer(addr)
	go func() {
		logger.Info().Str("listen", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("could not stop metrics server")
		}
	}
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, logger zerolog.Logger, onChanged func(cfg *config.Config)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, configWatchInterval, func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for range watcher {
			logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

			cfg, err := config.LoadFromFile(cfgPath)
			if err != nil {
				logger.Error().Err(err).Msg("could not load config, keeping the previous one")
				continue
			}

			onChanged(cfg)
		}
	}()
}

type sweepJob struct {
	ctx    context.Context
	runner *sweep.Runner
	logger zerolog.Logger
}

func (j *sweepJob) Run() {
	if j.ctx.Err() != nil {
		return
	}

	_, err := j.runner.Run(j.ctx, time.Now())
	if err != nil {
		j.logger.Error().Err(err).Msg("sweep job failed")
	}
}
