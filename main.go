package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
)

var version = "dev"

func newLogger() zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false, TimeFormat: time.RFC3339}
	consoleWriter.TimeFormat = "[" + time.RFC3339 + "]"
	consoleWriter.PartsOrder = []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}

	logger := zerolog.New(consoleWriter).
		With().Timestamp().Logger()

	level := zerolog.InfoLevel
	envLevel, ok := os.LookupEnv("LOG_LEVEL")
	if ok {
		parsed, err := zerolog.ParseLevel(envLevel)
		if err != nil {
			logger.Warn().Err(err).Msg("could not parse environment variable LOG_LEVEL")
			return logger
		}
		level = parsed
	}

	return logger.Level(level)
}

func main() {
	args := Command{}
	cli := kong.Parse(&args,
		kong.Name("sweeper"),
		kong.Description("Scheduled backup sweeper for the hosting panel"),
		kong.UsageOnError(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignals(cancel)

	logger := newLogger()

	var err error
	switch cli.Command() {
	case "version":
		fmt.Fprintln(os.Stdout, version)
	case "sweep":
		err = sweepCommand(ctx, args, logger)
	case "daemon":
		err = daemonCommand(ctx, args, logger)
	case "prune":
		err = pruneCommand(ctx, args, logger)
	case "next-run <frequency>":
		err = nextRunCommand(args, logger)
	case "schedule add":
		err = scheduleAddCommand(ctx, args, logger)
	case "schedule list":
		err = scheduleListCommand(ctx, args, logger)
	case "schedule enable <id>":
		err = scheduleEnableCommand(ctx, args.Schedule.Enable.Database, args.Schedule.Enable.ID, true, logger)
	case "schedule disable <id>":
		err = scheduleEnableCommand(ctx, args.Schedule.Disable.Database, args.Schedule.Disable.ID, false, logger)
	case "schedule remove <id>":
		err = scheduleRemoveCommand(ctx, args, logger)
	case "backups list <site>":
		err = backupsListCommand(ctx, args, logger)
	default:
		panic(cli.Command())
	}

	if err != nil {
		logger.Error().Err(err).Str("command", cli.Command()).Msg("command failed")
		cli.Exit(1)
	}
}

func setupSignals(onSignal func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		onSignal()
	}()
}
