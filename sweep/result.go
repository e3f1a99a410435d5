package sweep

import (
	"time"

	"github.com/rs/zerolog"
)

type ScheduleResult struct {
	ScheduleID string     `json:"scheduleId"`
	Success    bool       `json:"success"`
	BackupID   string     `json:"backupId,omitempty"`
	NextRunAt  *time.Time `json:"nextRunAt,omitempty"`
	Pruned     int64      `json:"pruned,omitempty"`
	Error      string     `json:"error,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`

	err error
}

// Err returns the error that failed this schedule, nil on success.
func (r ScheduleResult) Err() error {
	return r.err
}

func (r ScheduleResult) MarshalZerologObject(e *zerolog.Event) {
	e.Str("schedule", r.ScheduleID)
	e.Bool("success", r.Success)
	if r.BackupID != "" {
		e.Str("backup", r.BackupID)
	}
	if r.NextRunAt != nil {
		e.Time("next_run_at", *r.NextRunAt)
	}
	if r.Error != "" {
		e.Str("error", r.Error)
	}
	if len(r.Warnings) > 0 {
		e.Strs("warnings", r.Warnings)
	}
}

// Result is the audit of one sweep invocation.
type Result struct {
	Processed int              `json:"processed"`
	Results   []ScheduleResult `json:"results"`
	// HasMore is set when the claim limit left due schedules for the next sweep.
	HasMore bool `json:"hasMore,omitempty"`
}

func (r *Result) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}

func (r *Result) MarshalZerologObject(e *zerolog.Event) {
	e.Int("processed", r.Processed)
	e.Int("failed", r.Failed())
	e.Bool("has_more", r.HasMore)
}
