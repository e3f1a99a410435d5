package database_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stupid-simple/sweeper/database"
	"github.com/stupid-simple/sweeper/schedule"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Helper to set up a SQLite ledger in the test temp dir
func setupTestDB(t *testing.T) *database.Database {
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)

	db := &database.Database{
		Lock:   sync.Mutex{},
		Cli:    gormDB,
		Logger: zerolog.New(zerolog.NewTestWriter(t)),
		DryRun: false,
	}
	require.NoError(t, db.Migrate(context.Background()))

	t.Cleanup(func() {
		sqlDB, err := gormDB.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

var (
	jan10    = time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC)
	jan10At2 = time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC)
)

func newDailySchedule(t *testing.T, db *database.Database, siteID string, retention int) *database.BackupSchedule {
	t.Helper()
	s, err := db.CreateSchedule(context.Background(), database.NewSchedule{
		SiteID:        siteID,
		Name:          "nightly " + siteID,
		Frequency:     schedule.Daily,
		BackupType:    schedule.TypeFull,
		RetentionDays: retention,
		Enabled:       true,
	}, jan10.AddDate(0, 0, -1))
	require.NoError(t, err)
	return s
}

func TestDatabase_CreateSchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s, err := db.CreateSchedule(ctx, database.NewSchedule{
		SiteID:        "site-1",
		Name:          "weekly full",
		Frequency:     schedule.Weekly,
		BackupType:    schedule.TypeFull,
		RetentionDays: 14,
		Enabled:       true,
	}, jan10)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, time.Date(2024, 1, 14, 2, 0, 0, 0, time.UTC), s.NextRunAt)
	assert.Nil(t, s.LastRunAt)

	stored, err := db.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "site-1", stored.SiteID)
	assert.Equal(t, schedule.Weekly, stored.Frequency)
	assert.True(t, stored.NextRunAt.Equal(s.NextRunAt))
	assert.True(t, stored.IsEnabled)
}

func TestDatabase_CreateSchedule_AnchorsRunHourInCallerLocation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	plus3 := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 1, 10, 10, 0, 0, 0, plus3)

	s, err := db.CreateSchedule(ctx, database.NewSchedule{
		SiteID:        "site-1",
		Name:          "nightly",
		Frequency:     schedule.Daily,
		BackupType:    schedule.TypeFull,
		RetentionDays: 7,
		Enabled:       true,
	}, now)
	require.NoError(t, err)

	// Later runs are computed by the sweep from the same local clock.
	want, err := schedule.NextRun(schedule.Daily, now)
	require.NoError(t, err)

	stored, err := db.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, want.Equal(stored.NextRunAt), "want %s, got %s", want, stored.NextRunAt)
	assert.Equal(t, time.Date(2024, 1, 10, 23, 0, 0, 0, time.UTC), stored.NextRunAt.UTC())
	assert.Equal(t, 2, stored.NextRunAt.In(plus3).Hour())
}

func TestDatabase_CreateSchedule_Invalid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	valid := database.NewSchedule{
		SiteID:        "site-1",
		Name:          "n",
		Frequency:     schedule.Daily,
		BackupType:    schedule.TypeFull,
		RetentionDays: 7,
	}

	bad := valid
	bad.Frequency = "hourly"
	_, err := db.CreateSchedule(ctx, bad, jan10)
	assert.Error(t, err)

	bad = valid
	bad.BackupType = "incremental"
	_, err = db.CreateSchedule(ctx, bad, jan10)
	assert.Error(t, err)

	bad = valid
	bad.RetentionDays = 0
	_, err = db.CreateSchedule(ctx, bad, jan10)
	assert.Error(t, err)

	bad = valid
	bad.SiteID = ""
	_, err = db.CreateSchedule(ctx, bad, jan10)
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Cli.Model(&database.BackupSchedule{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDatabase_GetSchedule_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetSchedule(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestDatabase_ListDueSchedules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	due := newDailySchedule(t, db, "site-1", 7)
	disabled := newDailySchedule(t, db, "site-2", 7)
	require.NoError(t, db.SetScheduleEnabled(ctx, disabled.ID, false))
	future := newDailySchedule(t, db, "site-3", 7)
	require.NoError(t, db.Cli.Model(&database.BackupSchedule{}).
		Where("id = ?", future.ID).
		Update("next_run_at", jan10.Add(time.Hour)).Error)

	list, err := db.ListDueSchedules(ctx, jan10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	// next_run_at equal to now is due.
	list, err = db.ListDueSchedules(ctx, jan10At2)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = db.ListDueSchedules(ctx, jan10At2.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDatabase_ListDueSchedules_ManyBatches(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for range 120 {
		newDailySchedule(t, db, "site", 7)
	}

	list, err := db.ListDueSchedules(ctx, jan10)
	require.NoError(t, err)
	assert.Len(t, list, 120)
}

func TestDatabase_ClaimDueSchedules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s1 := newDailySchedule(t, db, "site-1", 7)
	s2 := newDailySchedule(t, db, "site-2", 7)

	claimed, hasMore, err := db.ClaimDueSchedules(ctx, jan10, database.ClaimParams{Owner: "sweep-a", Lease: time.Minute})
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, claimed, 2)
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, []string{claimed[0].ID, claimed[1].ID})
	require.NotNil(t, claimed[0].ClaimedBy)
	assert.Equal(t, "sweep-a", *claimed[0].ClaimedBy)

	// A second sweep overlapping the first sees nothing to claim.
	other, _, err := db.ClaimDueSchedules(ctx, jan10.Add(time.Second), database.ClaimParams{Owner: "sweep-b", Lease: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, other)

	// Leased schedules are still due.
	due, err := db.ListDueSchedules(ctx, jan10)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	// Once the lease expires another sweep can take over.
	other, _, err = db.ClaimDueSchedules(ctx, jan10.Add(2*time.Minute), database.ClaimParams{Owner: "sweep-b", Lease: time.Minute})
	require.NoError(t, err)
	assert.Len(t, other, 2)
}

func TestDatabase_ClaimDueSchedules_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	due := map[string]bool{}
	for i := range 40 {
		s := newDailySchedule(t, db, fmt.Sprintf("site-%d", i), 7)
		due[s.ID] = true
	}

	owners := []string{"sweep-a", "sweep-b"}
	claims := make([][]database.BackupSchedule, len(owners))
	errs := make([]error, len(owners))

	start := make(chan struct{})
	wg := sync.WaitGroup{}
	for i, owner := range owners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claims[i], _, errs[i] = db.ClaimDueSchedules(ctx, jan10, database.ClaimParams{Owner: owner, Lease: time.Minute})
		}()
	}
	close(start)
	wg.Wait()

	seen := map[string]string{}
	for i, owner := range owners {
		require.NoError(t, errs[i])
		for _, s := range claims[i] {
			prev, dup := seen[s.ID]
			assert.False(t, dup, "schedule %s claimed by %s and %s", s.ID, prev, owner)
			seen[s.ID] = owner
			require.NotNil(t, s.ClaimedBy)
			assert.Equal(t, owner, *s.ClaimedBy)
		}
	}
	assert.Len(t, seen, len(due))
	for id := range due {
		assert.Contains(t, seen, id)
	}

	// The stored lease matches the sweep that reported the claim.
	for id, owner := range seen {
		stored, err := db.GetSchedule(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, stored.ClaimedBy)
		assert.Equal(t, owner, *stored.ClaimedBy)
	}
}

func TestDatabase_ClaimDueSchedules_Limit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for range 3 {
		newDailySchedule(t, db, "site", 7)
	}

	claimed, hasMore, err := db.ClaimDueSchedules(ctx, jan10, database.ClaimParams{Owner: "a", Lease: time.Minute, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
	assert.True(t, hasMore)

	claimed, hasMore, err = db.ClaimDueSchedules(ctx, jan10, database.ClaimParams{Owner: "b", Lease: time.Minute, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
	assert.False(t, hasMore)
}

func TestDatabase_ClaimDueSchedules_BadParams(t *testing.T) {
	db := setupTestDB(t)

	_, _, err := db.ClaimDueSchedules(context.Background(), jan10, database.ClaimParams{Lease: time.Minute})
	assert.Error(t, err)
	_, _, err = db.ClaimDueSchedules(context.Background(), jan10, database.ClaimParams{Owner: "a"})
	assert.Error(t, err)
}

func TestDatabase_AdvanceSchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "site-1", 7)
	_, _, err := db.ClaimDueSchedules(ctx, jan10, database.ClaimParams{Owner: "sweep-a", Lease: time.Minute})
	require.NoError(t, err)

	next := time.Date(2024, 1, 11, 2, 0, 0, 0, time.UTC)

	err = db.AdvanceSchedule(ctx, s.ID, "sweep-b", jan10, next)
	assert.ErrorIs(t, err, database.ErrLeaseLost)

	require.NoError(t, db.AdvanceSchedule(ctx, s.ID, "sweep-a", jan10, next))

	stored, err := db.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRunAt)
	assert.True(t, stored.LastRunAt.Equal(jan10))
	assert.True(t, stored.NextRunAt.Equal(next))
	assert.Nil(t, stored.ClaimedBy)
	assert.Nil(t, stored.ClaimedUntil)

	due, err := db.ListDueSchedules(ctx, jan10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDatabase_ReleaseSchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "site-1", 7)
	_, _, err := db.ClaimDueSchedules(ctx, jan10, database.ClaimParams{Owner: "sweep-a", Lease: time.Hour})
	require.NoError(t, err)

	require.NoError(t, db.ReleaseSchedule(ctx, s.ID, "sweep-a"))
	assert.ErrorIs(t, db.ReleaseSchedule(ctx, s.ID, "sweep-a"), database.ErrLeaseLost)

	stored, err := db.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.Equal(s.NextRunAt))
	assert.Nil(t, stored.LastRunAt)

	claimed, _, err := db.ClaimDueSchedules(ctx, jan10, database.ClaimParams{Owner: "sweep-b", Lease: time.Hour})
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestDatabase_CreateScheduledBackup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "site-1", 30)
	b, err := db.CreateScheduledBackup(ctx, s, jan10, 250)
	require.NoError(t, err)

	assert.Equal(t, schedule.TypeScheduled, b.BackupType)
	assert.Equal(t, database.StatusCompleted, b.Status)
	assert.Equal(t, int64(250), b.SizeMB)
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, time.Date(2024, 2, 9, 3, 0, 0, 0, time.UTC), *b.ExpiresAt)
	require.NotNil(t, b.CompletedAt)
	assert.Equal(t, jan10, *b.CompletedAt)

	var stored database.Backup
	require.NoError(t, db.Cli.Where("id = ?", b.ID).First(&stored).Error)
	assert.Equal(t, "site-1", stored.SiteID)
	require.NotNil(t, stored.ScheduleID)
	assert.Equal(t, s.ID, *stored.ScheduleID)
	assert.True(t, stored.CreatedAt.Equal(jan10))
}

func TestDatabase_CreateScheduledBackup_BadRetention(t *testing.T) {
	db := setupTestDB(t)

	s := &database.BackupSchedule{ID: "x", SiteID: "site-1", RetentionDays: 0}
	_, err := db.CreateScheduledBackup(context.Background(), s, jan10, 1)
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Cli.Model(&database.Backup{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDatabase_CreateScheduledBackup_FailureLeavesNoRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "broken-site", 7)
	require.NoError(t, db.Cli.Exec(`CREATE TRIGGER reject_broken_site BEFORE INSERT ON backup
		WHEN NEW.site_id = 'broken-site'
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`).Error)

	_, err := db.CreateScheduledBackup(ctx, s, jan10, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	var count int64
	require.NoError(t, db.Cli.Model(&database.Backup{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDatabase_PruneExpired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "site-1", 7)
	other := newDailySchedule(t, db, "site-2", 7)

	old, err := db.CreateScheduledBackup(ctx, s, jan10.AddDate(0, 0, -8), 1)
	require.NoError(t, err)
	recent, err := db.CreateScheduledBackup(ctx, s, jan10.AddDate(0, 0, -6), 1)
	require.NoError(t, err)
	otherSite, err := db.CreateScheduledBackup(ctx, other, jan10.AddDate(0, 0, -8), 1)
	require.NoError(t, err)
	manual := database.Backup{
		ID:         "manual",
		SiteID:     "site-1",
		BackupType: schedule.TypeFull,
		Status:     database.StatusCompleted,
		CreatedAt:  jan10.AddDate(0, 0, -30),
	}
	require.NoError(t, db.Cli.Create(&manual).Error)

	deleted, err := db.PruneExpired(ctx, "site-1", schedule.TypeScheduled, jan10.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var ids []string
	require.NoError(t, db.Cli.Model(&database.Backup{}).Order("id").Pluck("id", &ids).Error)
	assert.ElementsMatch(t, []string{recent.ID, otherSite.ID, "manual"}, ids)
	assert.NotContains(t, ids, old.ID)
}

func TestDatabase_IterBackups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "site-1", 7)
	for i := range 60 {
		_, err := db.CreateScheduledBackup(ctx, s, jan10.Add(-time.Duration(i)*time.Hour), int64(i))
		require.NoError(t, err)
	}

	var all []database.Backup
	for b := range db.IterBackups(ctx, "site-1") {
		all = append(all, b)
	}
	require.Len(t, all, 60)
	assert.Equal(t, int64(0), all[0].SizeMB, "newest first")

	var limited []database.Backup
	for b := range db.IterBackups(ctx, "site-1", database.WithFindBackupsLimit(5)) {
		limited = append(limited, b)
	}
	assert.Len(t, limited, 5)

	var older []database.Backup
	for b := range db.IterBackups(ctx, "site-1", database.WithFindBackupsCreatedBefore(jan10.Add(-50*time.Hour))) {
		older = append(older, b)
	}
	assert.Len(t, older, 9)

	var none []database.Backup
	for b := range db.IterBackups(ctx, "site-1", database.WithFindBackupsType(schedule.TypeFull)) {
		none = append(none, b)
	}
	assert.Empty(t, none)
}

func TestDatabase_IterSchedules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := newDailySchedule(t, db, "site-1", 7)
	b := newDailySchedule(t, db, "site-2", 7)
	require.NoError(t, db.SetScheduleEnabled(ctx, b.ID, false))

	var ids []string
	for s := range db.IterSchedules(ctx) {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	ids = nil
	for s := range db.IterSchedules(ctx, database.WithFindSchedulesOnlyEnabled()) {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{a.ID}, ids)

	ids = nil
	for s := range db.IterSchedules(ctx, database.WithFindSchedulesSite("site-2")) {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{b.ID}, ids)
}

func TestDatabase_DeleteSchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "site-1", 7)
	require.NoError(t, db.DeleteSchedule(ctx, s.ID))
	assert.ErrorIs(t, db.DeleteSchedule(ctx, s.ID), database.ErrNotFound)
	assert.ErrorIs(t, db.SetScheduleEnabled(ctx, s.ID, true), database.ErrNotFound)
}

func TestDatabase_DryRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newDailySchedule(t, db, "site-1", 7)
	db.DryRun = true

	_, err := db.CreateScheduledBackup(ctx, s, jan10, 1)
	require.NoError(t, err)
	require.NoError(t, db.AdvanceSchedule(ctx, s.ID, "a", jan10, jan10.AddDate(0, 0, 1)))

	var count int64
	require.NoError(t, db.Cli.Model(&database.Backup{}).Count(&count).Error)
	assert.Zero(t, count)

	stored, err := db.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastRunAt)
}
