package sweep

import (
	"errors"

	"github.com/stupid-simple/sweeper/schedule"
)

var (
	// ErrInvalidFrequency marks a schedule whose frequency cannot be
	// computed. The schedule is left due and untouched.
	ErrInvalidFrequency = schedule.ErrInvalidFrequency
	// ErrBackupCreationFailed marks a schedule whose backup row could not be
	// written. The schedule is left due and retried by the next sweep.
	ErrBackupCreationFailed = errors.New("backup creation failed")
	// ErrScheduleAdvanceFailed is a warning: the backup exists but the
	// schedule may run again for the same window.
	ErrScheduleAdvanceFailed = errors.New("schedule advance failed")
	// ErrPruneFailed is a warning: expired backups survive until a later sweep.
	ErrPruneFailed = errors.New("prune failed")
	// ErrLedgerRead fails the whole sweep.
	ErrLedgerRead = errors.New("ledger read failed")
)
