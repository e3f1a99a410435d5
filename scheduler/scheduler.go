package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Job interface {
	Run()
}

type SchedulerParams struct {
	Logger zerolog.Logger
}

func NewScheduler(params SchedulerParams) *Scheduler {
	return &Scheduler{
		// A sweep that outlasts its interval delays the next tick rather
		// than overlapping it.
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		logger: params.Logger,
		jobs:   make(map[cron.EntryID]Job),
	}
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   map[cron.EntryID]Job
	logger zerolog.Logger
}

// Start the scheduler in its own routine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop the scheduler and wait for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) AddJob(ctx context.Context, schedule string, job Job) error {
	entry, err := s.cron.AddJob(schedule, job)
	if err != nil {
		return fmt.Errorf("could not add job: %w", err)
	}

	s.jobs[entry] = job
	s.logger.Debug().Str("cron", schedule).Time("next", s.cron.Entry(entry).Next).Msg("job scheduled")

	return nil
}

// NextRun returns the earliest upcoming run of any job, zero when the
// scheduler is stopped or has no jobs.
func (s *Scheduler) NextRun() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

func (s *Scheduler) RemoveJobs() {
	for entry := range s.jobs {
		s.cron.Remove(entry)
		delete(s.jobs, entry)
	}
}
