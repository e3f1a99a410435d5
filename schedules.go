package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stupid-simple/sweeper/database"
	"github.com/stupid-simple/sweeper/schedule"
)

func scheduleAddCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	add := args.Schedule.Add
	if add.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	db, err := openDatabase(ctx, add.Database, logger, add.DryRun)
	if err != nil {
		return err
	}

	s, err := db.CreateSchedule(ctx, database.NewSchedule{
		SiteID:        add.Site,
		Name:          add.Name,
		Frequency:     add.Frequency,
		BackupType:    add.Type,
		RetentionDays: add.Retention,
		Enabled:       !add.Disabled,
	}, time.Now())
	if err != nil {
		return err
	}

	return writeJSONLines(os.Stdout, s)
}

func scheduleListCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	list := args.Schedule.List
	db, err := openDatabase(ctx, list.Database, logger, false)
	if err != nil {
		return err
	}

	if list.Due {
		due, err := db.ListDueSchedules(ctx, time.Now())
		if err != nil {
			return err
		}
		for _, s := range due {
			if list.Site != "" && s.SiteID != list.Site {
				continue
			}
			if err := writeJSONLines(os.Stdout, s); err != nil {
				return err
			}
		}
		return nil
	}

	opts := []database.FindSchedulesOptions{}
	if list.Site != "" {
		opts = append(opts, database.WithFindSchedulesSite(list.Site))
	}
	for s := range db.IterSchedules(ctx, opts...) {
		if err := writeJSONLines(os.Stdout, s); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func scheduleEnableCommand(ctx context.Context, dbPath string, id string, enabled bool, logger zerolog.Logger) error {
	db, err := openDatabase(ctx, dbPath, logger, false)
	if err != nil {
		return err
	}

	if err := db.SetScheduleEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("could not update schedule %s: %w", id, err)
	}

	logger.Info().Str("schedule", id).Bool("enabled", enabled).Msg("schedule updated")
	return nil
}

func scheduleRemoveCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	db, err := openDatabase(ctx, args.Schedule.Remove.Database, logger, false)
	if err != nil {
		return err
	}

	if err := db.DeleteSchedule(ctx, args.Schedule.Remove.ID); err != nil {
		return fmt.Errorf("could not remove schedule %s: %w", args.Schedule.Remove.ID, err)
	}

	logger.Info().Str("schedule", args.Schedule.Remove.ID).Msg("schedule removed")
	return nil
}

func nextRunCommand(args Command, logger zerolog.Logger) error {
	now := args.NextRun.At
	if now.IsZero() {
		now = time.Now()
	}

	next, err := schedule.NextRun(args.NextRun.Frequency, now)
	if err != nil {
		return err
	}

	logger.Debug().
		Str("frequency", args.NextRun.Frequency.String()).
		Time("now", now).
		Time("next", next).
		Msg("computed next run")

	_, err = fmt.Fprintln(os.Stdout, next.Format(time.RFC3339))
	return err
}

func backupsListCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	list := args.Backups.List
	db, err := openDatabase(ctx, list.Database, logger, false)
	if err != nil {
		return err
	}

	opts := []database.FindBackupsOptions{}
	if list.Limit > 0 {
		opts = append(opts, database.WithFindBackupsLimit(list.Limit))
	}
	if list.Type != "" {
		opts = append(opts, database.WithFindBackupsType(list.Type))
	}

	count := 0
	for b := range db.IterBackups(ctx, list.Site, opts...) {
		if err := writeJSONLines(os.Stdout, b); err != nil {
			return err
		}
		count++
	}

	logger.Debug().Str("site", list.Site).Int("count", count).Msg("listed backups")
	return ctx.Err()
}

// writeJSONLines writes each value as one compact JSON document per line.
func writeJSONLines(w io.Writer, values ...any) error {
	enc := json.NewEncoder(w)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("could not encode output: %w", err)
		}
	}
	return nil
}
