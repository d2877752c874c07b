package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for storage drivers.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate brings the database schema up to the current version.
	Migrate(ctx context.Context) error

	CreateSchedule(ctx context.Context, create *Schedule) (*Schedule, error)
	ListSchedules(ctx context.Context, find *FindSchedule) ([]*Schedule, error)
	// UpdateSchedule replaces the stored record identified by the UID of
	// update; partial merges happen above the store.
	UpdateSchedule(ctx context.Context, update *Schedule) (*Schedule, error)
	DeleteSchedule(ctx context.Context, delete *DeleteSchedule) error
	// ListShops returns the distinct shop ids with at least one stored
	// schedule.
	ListShops(ctx context.Context) ([]string, error)

	CreateCustomHoliday(ctx context.Context, create *CustomHoliday) (*CustomHoliday, error)
	ListCustomHolidays(ctx context.Context, find *FindCustomHoliday) ([]*CustomHoliday, error)
	DeleteCustomHoliday(ctx context.Context, delete *DeleteCustomHoliday) error
}
