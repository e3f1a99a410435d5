package config

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultSchedule = "*/5 * * * *"
	DefaultLease    = 15 * time.Minute
)

type Config struct {
	Sweep   ConfigSweep   `json:"sweep"`
	Metrics ConfigMetrics `json:"metrics,omitempty"`
}

type ConfigSweep struct {
	Schedule    string       `json:"cron"`
	Lease       Duration     `json:"lease,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	Concurrency int          `json:"concurrency,omitempty"`
	Owner       string       `json:"owner,omitempty"`
	MinSize     SizeArgument `json:"min_size,omitempty"`
	MaxSize     SizeArgument `json:"max_size,omitempty"`
	RunOnStart  bool         `json:"run_on_start,omitempty"`
}

type ConfigMetrics struct {
	Listen string `json:"listen,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = DefaultSchedule
	}
	if c.Sweep.Lease.Duration == 0 {
		c.Sweep.Lease.Duration = DefaultLease
	}
	if c.Sweep.Concurrency == 0 {
		c.Sweep.Concurrency = 1
	}
	if c.Sweep.MinSize.Size == 0 && c.Sweep.MaxSize.Size == 0 {
		c.Sweep.MinSize.Size = 50 * units.MB
		c.Sweep.MaxSize.Size = 500 * units.MB
	}
}

func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
		return fmt.Errorf("invalid sweep cron %q: %w", c.Sweep.Schedule, err)
	}
	if c.Sweep.Lease.Duration < time.Minute {
		return fmt.Errorf("sweep lease must be at least 1m, got %s", c.Sweep.Lease.Duration)
	}
	if c.Sweep.Limit < 0 {
		return fmt.Errorf("sweep limit must not be negative")
	}
	if c.Sweep.Concurrency < 1 {
		return fmt.Errorf("sweep concurrency must be at least 1")
	}
	if c.Sweep.MinSize.Size < 0 || c.Sweep.MaxSize.Size < c.Sweep.MinSize.Size {
		return fmt.Errorf("sweep size range is invalid: %d..%d", c.Sweep.MinSize.Size, c.Sweep.MaxSize.Size)
	}
	return nil
}

func (s ConfigSweep) MarshalZerologObject(e *zerolog.Event) {
	e.Str("cron", s.Schedule)
	e.Dur("lease", s.Lease.Duration)
	e.Int("concurrency", s.Concurrency)
	e.Bool("run_on_start", s.RunOnStart)

	if s.Limit > 0 {
		e.Int("limit", s.Limit)
	}
	if s.Owner != "" {
		e.Str("owner", s.Owner)
	}
	e.Int64("min_size_mb", s.MinSize.MB())
	e.Int64("max_size_mb", s.MaxSize.MB())
}
