package store

import "time"

// CustomHoliday is a merchant-defined holiday used by the holiday
// detector alongside the built-in event calendar.
type CustomHoliday struct {
	ID     int32
	ShopID string
	Name   string
	// Date is the civil date of the holiday.
	Date time.Time
	// Recurring marks the holiday as repeating every year on the same
	// month and day.
	Recurring bool
	CreatedTs int64
}

// FindCustomHoliday filters custom holiday queries. Nil fields are
// ignored.
type FindCustomHoliday struct {
	ID     *int32
	ShopID *string
}

// DeleteCustomHoliday identifies a custom holiday to remove.
type DeleteCustomHoliday struct {
	ID     int32
	ShopID string
}
