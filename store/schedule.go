package store

import (
	"encoding/json"
	"time"
)

// ScheduleType classifies how a popup schedule recurs.
type ScheduleType string

const (
	// ScheduleOneTime fires on a single date.
	ScheduleOneTime ScheduleType = "one_time"
	// ScheduleDaily fires every N days counted from the start date.
	ScheduleDaily ScheduleType = "daily"
	// ScheduleWeekly fires on selected weekdays.
	ScheduleWeekly ScheduleType = "weekly"
	// ScheduleMonthly fires on selected days of the month.
	ScheduleMonthly ScheduleType = "monthly"
	// ScheduleYearly fires during selected months.
	ScheduleYearly ScheduleType = "yearly"
	// ScheduleCustom matches any day; conditions carry the semantics.
	ScheduleCustom ScheduleType = "custom"
)

// Valid reports whether t is one of the supported schedule types.
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleOneTime, ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleYearly, ScheduleCustom:
		return true
	}
	return false
}

// Recurrence describes the repetition pattern of a non-one_time
// schedule. Which fields apply depends on the schedule type.
type Recurrence struct {
	// Interval spaces daily repetitions: every Nth day from the start
	// date. Minimum 1.
	Interval int32 `json:"interval"`
	// DaysOfWeek selects weekdays for weekly schedules, 0=Sunday through
	// 6=Saturday.
	DaysOfWeek []int32 `json:"daysOfWeek,omitempty"`
	// DaysOfMonth selects calendar days (1-31) for monthly schedules.
	DaysOfMonth []int32 `json:"daysOfMonth,omitempty"`
	// MonthsOfYear selects months (1-12) for yearly schedules.
	MonthsOfYear []int32 `json:"monthsOfYear,omitempty"`
	// Exceptions lists ISO dates the schedule skips. Accepted and
	// persisted; evaluation does not consult them yet.
	Exceptions []string `json:"exceptions,omitempty"`
	// EndDate stops the recurrence. Accepted and persisted; evaluation
	// does not consult it yet.
	EndDate *time.Time `json:"endDate,omitempty"`
	// MaxOccurrences caps total activations. Accepted and persisted;
	// evaluation does not consult it yet.
	MaxOccurrences *int32 `json:"maxOccurrences,omitempty"`
}

// Schedule is a stored popup campaign schedule. All date fields are
// civil dates (midnight UTC); the Timezone field decides the zone they
// are evaluated in.
type Schedule struct {
	ID  int32
	UID string
	// ShopID scopes the schedule to one merchant shop.
	ShopID string
	Name   string
	Type   ScheduleType
	// StartDate is the first day the schedule may be active.
	StartDate time.Time
	// EndDate is the last day the schedule may be active. Nil means
	// open-ended.
	EndDate *time.Time
	// StartTime and EndTime bound the active window within a day,
	// zero-padded "HH:mm", inclusive on both ends.
	StartTime string
	EndTime   string
	// Timezone is the IANA zone the schedule is evaluated in.
	Timezone   string
	Recurrence *Recurrence
	// PopupConfig is the popup payload. The engine stores and forwards
	// it without interpretation, except for the statistics category key.
	PopupConfig json.RawMessage
	// Conditions is an opaque predicate payload for the conditions
	// evaluator. Empty means always true.
	Conditions json.RawMessage
	// Enabled is the master switch. A disabled schedule is never active
	// regardless of its dates.
	Enabled   bool
	Priority  int32
	CreatedTs int64
	UpdatedTs int64
}

// FindSchedule filters schedule queries. Nil fields are ignored.
type FindSchedule struct {
	ID      *int32
	UID     *string
	ShopID  *string
	Type    *ScheduleType
	Enabled *bool
	Limit   *int
	Offset  *int
}

// DeleteSchedule identifies a schedule to remove.
type DeleteSchedule struct {
	UID    string
	ShopID string
}
