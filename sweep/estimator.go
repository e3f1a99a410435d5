package sweep

import (
	"context"
	"time"

	"github.com/cespare/xxhash"
	"github.com/stupid-simple/sweeper/database"
)

// SizeEstimator supplies the size of the artifact a schedule run produces.
// A real backup engine would report the snapshot size instead.
type SizeEstimator interface {
	EstimateSizeMB(ctx context.Context, s *database.BackupSchedule, now time.Time) (int64, error)
}

type FixedEstimator int64

func (f FixedEstimator) EstimateSizeMB(context.Context, *database.BackupSchedule, time.Time) (int64, error) {
	return int64(f), nil
}

// HashEstimator derives a stable size in [MinMB, MaxMB] from the site and
// the run date, so replaying a sweep yields the same sizes.
type HashEstimator struct {
	MinMB int64
	MaxMB int64
}

func (h HashEstimator) EstimateSizeMB(_ context.Context, s *database.BackupSchedule, now time.Time) (int64, error) {
	if h.MaxMB <= h.MinMB {
		return h.MinMB, nil
	}

	sum := xxhash.Sum64([]byte(s.SiteID + "/" + string(s.BackupType) + "/" + now.UTC().Format(time.DateOnly)))
	span := uint64(h.MaxMB - h.MinMB + 1)
	return h.MinMB + int64(sum%span), nil
}
