package scheduler

import (
	"encoding/json"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/store"
)

// uncategorized buckets schedules whose popup config carries no
// category field.
const uncategorized = "uncategorized"

// Statistics summarizes a shop's schedules. Active counts the enabled
// flag, not live evaluation. UpcomingCount and PastCount partition
// Total by start date relative to the manager's clock.
type Statistics struct {
	Total         int                        `json:"total"`
	Active        int                        `json:"active"`
	ByType        map[store.ScheduleType]int `json:"byType"`
	ByCategory    map[string]int             `json:"byCategory"`
	UpcomingCount int                        `json:"upcomingCount"`
	PastCount     int                        `json:"pastCount"`
}

// Statistics aggregates over the in-memory index.
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	schedules := m.snapshotLocked()
	m.mu.RUnlock()

	now := m.nowFn()
	stats := Statistics{
		ByType:     make(map[store.ScheduleType]int),
		ByCategory: make(map[string]int),
	}
	for _, s := range schedules {
		stats.Total++
		if s.Enabled {
			stats.Active++
		}
		stats.ByType[s.Type]++
		stats.ByCategory[popupCategory(s)]++

		// A schedule is upcoming until its first local midnight has
		// passed; from then on it counts as past even while running.
		startAt := timeutil.StartOfDayIn(s.StartDate, scheduleLocation(s))
		if startAt.After(now) {
			stats.UpcomingCount++
		} else {
			stats.PastCount++
		}
	}
	return stats
}

// popupCategory extracts popupConfig.category, defaulting to
// uncategorized for missing or malformed payloads.
func popupCategory(s *store.Schedule) string {
	if len(s.PopupConfig) == 0 {
		return uncategorized
	}
	var probe struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(s.PopupConfig, &probe); err != nil || probe.Category == "" {
		return uncategorized
	}
	return probe.Category
}
