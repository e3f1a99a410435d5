package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/sweeper/sweep"
)

// logNotifier reports failed and incomplete schedule runs of a sweep.
type logNotifier struct {
	logger zerolog.Logger
}

func (n *logNotifier) Notify(_ context.Context, res *sweep.Result) error {
	for _, r := range res.Results {
		switch {
		case !r.Success:
			n.logger.Error().Object("result", r).Msg("scheduled backup failed")
		case len(r.Warnings) > 0:
			n.logger.Warn().Object("result", r).Msg("scheduled backup completed with warnings")
		default:
			n.logger.Debug().Object("result", r).Msg("scheduled backup completed")
		}
	}
	return nil
}
