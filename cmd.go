package main

import (
	"time"

	"github.com/stupid-simple/sweeper/schedule"
)

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Sweep   struct {
		Database    string    `help:"database path" short:"d" required:""`
		At          time.Time `help:"sweep as of this RFC3339 time instead of now"`
		Limit       int       `help:"maximum number of schedules processed"`
		Concurrency int       `help:"number of schedules processed in parallel" default:"1"`
		JSON        bool      `help:"print the sweep result as JSON on stdout" name:"json"`
		DryRun      bool      `help:"don't write anything, just print the output"`
	} `cmd:"" help:"Run one backup sweep over the due schedules."`
	Daemon struct {
		Config   string `help:"config file path" short:"c" type:"existingfile"`
		Database string `help:"database path" short:"d" required:""`
		DryRun   bool   `help:"don't write anything, just print the output"`
	} `cmd:"" help:"Run sweeps on a cron schedule."`
	Prune struct {
		Database string `help:"database path" short:"d" required:""`
		Site     string `help:"only prune backups of this site" short:"s"`
		DryRun   bool   `help:"don't delete anything, just print the output"`
	} `cmd:"" help:"Delete scheduled backups past the retention of their schedules."`
	NextRun struct {
		Frequency schedule.Frequency `arg:"" help:"daily, weekly or monthly"`
		At        time.Time          `help:"reference RFC3339 time instead of now"`
	} `cmd:"" name:"next-run" help:"Print the next run time of a frequency."`
	Schedule struct {
		Add struct {
			Database  string              `help:"database path" short:"d" required:""`
			Site      string              `help:"site id" short:"s" required:""`
			Name      string              `help:"schedule label" short:"n" required:""`
			Frequency schedule.Frequency  `help:"daily, weekly or monthly" short:"f" required:""`
			Type      schedule.BackupType `help:"full, files, database or scheduled" short:"t" default:"full"`
			Retention int                 `help:"retention in days" short:"r" default:"30"`
			Disabled  bool                `help:"create the schedule disabled"`
			DryRun    bool                `help:"don't write anything, just print the output"`
		} `cmd:"" help:"Create a backup schedule."`
		List struct {
			Database string `help:"database path" short:"d" required:""`
			Site     string `help:"only list schedules of this site" short:"s"`
			Due      bool   `help:"only list schedules due now"`
		} `cmd:"" help:"List backup schedules."`
		Enable struct {
			Database string `help:"database path" short:"d" required:""`
			ID       string `arg:"" help:"schedule id"`
		} `cmd:"" help:"Enable a backup schedule."`
		Disable struct {
			Database string `help:"database path" short:"d" required:""`
			ID       string `arg:"" help:"schedule id"`
		} `cmd:"" help:"Disable a backup schedule."`
		Remove struct {
			Database string `help:"database path" short:"d" required:""`
			ID       string `arg:"" help:"schedule id"`
		} `cmd:"" help:"Remove a backup schedule."`
	} `cmd:"" help:"Manage backup schedules."`
	Backups struct {
		List struct {
			Database string              `help:"database path" short:"d" required:""`
			Site     string              `arg:"" help:"site id"`
			Type     schedule.BackupType `help:"only list backups of this type" short:"t"`
			Limit    int                 `help:"maximum number of backups listed" default:"50"`
		} `cmd:"" help:"List the backups of a site."`
	} `cmd:"" help:"Inspect backups."`
}
