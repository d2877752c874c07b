package scheduler

import (
	"time"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/store"
)

// matchesRecurrence reports whether the schedule's recurrence rule
// selects the civil date of zoned. zoned must already be expressed in
// the schedule's timezone. one_time schedules never reach this point.
func matchesRecurrence(s *store.Schedule, zoned time.Time) bool {
	switch s.Type {
	case store.ScheduleDaily:
		// Day counting anchors at the start date so intervals keep
		// their phase: an every-3-days schedule started on the 1st
		// fires on the 4th, 7th, and so on regardless of when it is
		// asked.
		days := timeutil.DaysBetween(s.StartDate, zoned)
		return days >= 0 && days%recurrenceInterval(s.Recurrence) == 0
	case store.ScheduleWeekly:
		if s.Recurrence == nil {
			return false
		}
		return containsInt32(s.Recurrence.DaysOfWeek, int32(zoned.Weekday()))
	case store.ScheduleMonthly:
		if s.Recurrence == nil {
			return false
		}
		return containsInt32(s.Recurrence.DaysOfMonth, int32(zoned.Day()))
	case store.ScheduleYearly:
		if s.Recurrence == nil {
			return false
		}
		return containsInt32(s.Recurrence.MonthsOfYear, int32(zoned.Month()))
	case store.ScheduleCustom:
		// Custom schedules defer entirely to the conditions payload.
		return true
	}
	return false
}

// recurrenceInterval returns the rule's interval clamped to at least
// one. A nil rule means every occurrence.
func recurrenceInterval(rule *store.Recurrence) int {
	if rule == nil || rule.Interval < 1 {
		return 1
	}
	return int(rule.Interval)
}

// stepOnce advances t by one recurrence unit of the schedule's type.
// Custom schedules step a single day so candidate scans stay dense.
func stepOnce(s *store.Schedule, t time.Time) time.Time {
	interval := recurrenceInterval(s.Recurrence)
	switch s.Type {
	case store.ScheduleDaily:
		return t.AddDate(0, 0, interval)
	case store.ScheduleWeekly:
		return t.AddDate(0, 0, 7*interval)
	case store.ScheduleMonthly:
		return t.AddDate(0, interval, 0)
	case store.ScheduleYearly:
		return t.AddDate(interval, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func containsInt32(values []int32, v int32) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
