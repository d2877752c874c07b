package scheduler

import (
	"sort"
	"time"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/scheduler/conditions"
	"github.com/popupkit/popupkit/store"
)

// IsActive reports whether the schedule should be showing its popup at
// the given instant. A zero instant means the manager's current time.
// Unknown UIDs are inactive rather than an error.
func (m *Manager) IsActive(uid string, at time.Time) bool {
	m.mu.RLock()
	s := m.index[uid]
	m.mu.RUnlock()
	if s == nil {
		return false
	}
	return m.scheduleActive(s, at)
}

// ActiveSchedules returns every schedule active at the given instant,
// highest priority first. Schedules with equal priority keep their
// insertion order.
func (m *Manager) ActiveSchedules(at time.Time) []*store.Schedule {
	m.mu.RLock()
	candidates := m.snapshotLocked()
	m.mu.RUnlock()

	active := make([]*store.Schedule, 0, len(candidates))
	for _, s := range candidates {
		if m.scheduleActive(s, at) {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})
	return active
}

func (m *Manager) scheduleActive(s *store.Schedule, at time.Time) bool {
	if at.IsZero() {
		at = m.nowFn()
	}
	active := s.Enabled && m.evaluateAt(s, at)
	if m.metrics != nil {
		m.metrics.RecordEvaluation(m.shopID, active)
	}
	return active
}

// evaluateAt runs the activation chain against the instant: date range,
// then daily time window, then recurrence, then conditions. Every step
// works on the instant as seen in the schedule's timezone.
func (m *Manager) evaluateAt(s *store.Schedule, at time.Time) bool {
	loc := scheduleLocation(s)
	zoned := at.In(loc)

	windowStart := timeutil.StartOfDayIn(s.StartDate, loc)
	windowEnd := timeutil.EndOfDayIn(effectiveEndDate(s), loc)
	if zoned.Before(windowStart) || zoned.After(windowEnd) {
		return false
	}

	// HH:mm strings compare lexically; bounds are inclusive.
	clock := timeutil.Clock(zoned)
	if clock < startClock(s) || clock > endClock(s) {
		return false
	}

	if s.Type != store.ScheduleOneTime && !matchesRecurrence(s, zoned) {
		return false
	}

	return m.evaluator.Evaluate(s.Conditions, conditions.Context{
		At:       zoned,
		ShopID:   s.ShopID,
		Schedule: s.UID,
		Type:     string(s.Type),
		Priority: s.Priority,
	})
}

// startClock and endClock guard against schedules written to the store
// without the creation-path defaults.
func startClock(s *store.Schedule) string {
	if s.StartTime == "" {
		return defaultStartClock
	}
	return s.StartTime
}

func endClock(s *store.Schedule) string {
	if s.EndTime == "" {
		return defaultEndClock
	}
	return s.EndTime
}
