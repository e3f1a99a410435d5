package sweep

import (
	"time"
)

const (
	defaultLease = 15 * time.Minute
	defaultOwner = "sweep"
)

type options struct {
	estimator   SizeEstimator
	notifier    Notifier
	owner       string
	lease       time.Duration
	limit       int
	concurrency int
}

type Option func(o *options)

func WithEstimator(e SizeEstimator) Option {
	return func(o *options) {
		o.estimator = e
	}
}

// Forward every sweep result to n.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// Prefix of the lease owner recorded on claimed schedules, typically the host name.
func WithOwner(owner string) Option {
	return func(o *options) {
		o.owner = owner
	}
}

// How long a claimed schedule stays reserved if the sweep dies mid-run.
func WithLease(lease time.Duration) Option {
	return func(o *options) {
		o.lease = lease
	}
}

// Maximum number of schedules processed per sweep, 0 for no limit.
func WithLimit(limit int) Option {
	return func(o *options) {
		o.limit = limit
	}
}

// Number of schedules processed in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}
