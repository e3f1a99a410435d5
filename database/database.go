package database

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const iterateBatchSize = 50

var (
	ErrNotFound  = errors.New("record not found")
	ErrLeaseLost = errors.New("schedule lease not held")
)

// Database is the schedule ledger. All statements are serialized through
// Lock since the backing store is a single SQLite file.
type Database struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

func (d *Database) Migrate(ctx context.Context) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	return d.Cli.WithContext(ctx).AutoMigrate(Models()...)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
