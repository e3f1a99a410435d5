package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sweeper"

var (
	once sync.Once

	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweep invocations by outcome.",
		},
		[]string{"outcome"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweep invocations.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	lastSweep = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time of the last successful sweep.",
		},
	)

	scheduleRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_runs_total",
			Help:      "Processed schedules by outcome.",
		},
		[]string{"outcome"},
	)

	sweepWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_warnings_total",
			Help:      "Best-effort steps that failed after a backup was created.",
		},
		[]string{"step"},
	)

	prunedBackups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_backups_total",
			Help:      "Backups deleted by retention pruning.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(sweepsTotal, sweepDuration, lastSweep, scheduleRuns, sweepWarnings, prunedBackups)
	})
}

// ObserveSweep records one sweep invocation that started at start.
func ObserveSweep(start time.Time, err error) {
	sweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		return
	}
	sweepsTotal.WithLabelValues("ok").Inc()
	lastSweep.SetToCurrentTime()
}

func IncScheduleRun(success bool) {
	if success {
		scheduleRuns.WithLabelValues("success").Inc()
	} else {
		scheduleRuns.WithLabelValues("failed").Inc()
	}
}

// IncWarning counts a failed best-effort step, "advance" or "prune".
func IncWarning(step string) {
	sweepWarnings.WithLabelValues(step).Inc()
}

func AddPruned(n int64) {
	if n > 0 {
		prunedBackups.Add(float64(n))
	}
}
