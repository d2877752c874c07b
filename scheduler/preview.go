package scheduler

import (
	"time"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/store"
)

// maxPreviewIterations bounds the candidate scan. Recurrence rules
// that never produce a matching date (an empty weekly day set, or an
// interval whose phase never lines up with the step) exhaust the cap
// and yield an empty preview instead of hanging.
const maxPreviewIterations = 1000

// PreviewEntry is one projected occurrence of a schedule.
type PreviewEntry struct {
	// Date is the activation instant, start time in the schedule's
	// timezone.
	Date time.Time `json:"date"`
	// Duration is the length of the daily active window.
	Duration time.Duration `json:"duration"`
	// Active reports whether the full evaluation chain would fire at
	// Date, conditions included.
	Active bool `json:"active"`
}

// NextActivation returns the next time the schedule starts showing, or
// nil when there is none. One-time schedules return their start
// instant only while it is still in the future. For recurring types
// this is a coarse single-unit step from now; it does not check the
// stepped date against the recurrence rule. Preview applies full
// matching.
func (m *Manager) NextActivation(uid string) *time.Time {
	m.mu.RLock()
	s := m.index[uid]
	m.mu.RUnlock()
	if s == nil {
		return nil
	}

	now := m.nowFn()
	loc := scheduleLocation(s)

	if s.Type == store.ScheduleOneTime {
		startAt, err := timeutil.CombineDateClock(s.StartDate, startClock(s), loc)
		if err != nil || !startAt.After(now) {
			return nil
		}
		return &startAt
	}

	stepped := stepOnce(s, now.In(loc))
	next, err := timeutil.CombineDateClock(stepped, startClock(s), loc)
	if err != nil {
		return nil
	}
	return &next
}

// Preview projects up to limit future occurrences. The scan starts one
// step after now, skips dates outside the schedule's date range or not
// selected by the recurrence rule, and stops early once the end date
// is passed. The result may hold fewer entries than requested, or
// none.
func (m *Manager) Preview(uid string, limit int) []PreviewEntry {
	m.mu.RLock()
	s := m.index[uid]
	m.mu.RUnlock()
	if s == nil || limit <= 0 {
		return nil
	}

	now := m.nowFn()
	loc := scheduleLocation(s)

	if s.Type == store.ScheduleOneTime {
		startAt, err := timeutil.CombineDateClock(s.StartDate, startClock(s), loc)
		if err != nil || !startAt.After(now) {
			return nil
		}
		return []PreviewEntry{{
			Date:     startAt,
			Duration: activeWindow(s),
			Active:   s.Enabled && m.evaluateAt(s, startAt),
		}}
	}

	endCivil := timeutil.CivilDate(effectiveEndDate(s))
	cursor := now.In(loc)
	entries := make([]PreviewEntry, 0, limit)
	iterations := 0
	for ; iterations < maxPreviewIterations && len(entries) < limit; iterations++ {
		cursor = stepOnce(s, cursor)
		if timeutil.CivilDate(cursor).After(endCivil) {
			break
		}
		if timeutil.DaysBetween(s.StartDate, cursor) < 0 {
			continue
		}
		if !matchesRecurrence(s, cursor) {
			continue
		}
		candidate, err := timeutil.CombineDateClock(cursor, startClock(s), loc)
		if err != nil {
			break
		}
		entries = append(entries, PreviewEntry{
			Date:     candidate,
			Duration: activeWindow(s),
			Active:   s.Enabled && m.evaluateAt(s, candidate),
		})
	}
	if m.metrics != nil {
		m.metrics.RecordPreview(m.shopID, iterations)
	}
	return entries
}

// activeWindow measures the daily window between the start and end
// clocks. Malformed or inverted clocks collapse to zero.
func activeWindow(s *store.Schedule) time.Duration {
	start, err := time.Parse(timeutil.ClockLayout, startClock(s))
	if err != nil {
		return 0
	}
	end, err := time.Parse(timeutil.ClockLayout, endClock(s))
	if err != nil {
		return 0
	}
	window := end.Sub(start)
	if window < 0 {
		return 0
	}
	return window
}
