package scheduler

import (
	"github.com/popupkit/popupkit/store"
)

// ConflictType classifies a detected conflict.
type ConflictType string

const (
	// ConflictTypeOverlap marks schedules whose date ranges intersect.
	ConflictTypeOverlap ConflictType = "overlap"
	// ConflictTypeResource marks schedules competing for the same
	// display resource, as judged by the installed ResourceChecker.
	ConflictTypeResource ConflictType = "resource"
)

// Conflict reports that Schedule collides with the listed others.
type Conflict struct {
	Schedule      *store.Schedule   `json:"schedule"`
	Type          ConflictType      `json:"type"`
	ConflictsWith []*store.Schedule `json:"conflictsWith"`
}

// ResourceChecker decides resource-level conflicts between a schedule
// and its shop siblings. No checker is installed by default, so
// resource conflicts are never reported unless one is provided.
type ResourceChecker interface {
	Check(target *store.Schedule, others []*store.Schedule) []*store.Schedule
}

// DetectConflicts reports the conflicts of a single schedule. The
// check compares civil date ranges only; time-of-day windows and
// recurrence rules are ignored, so two schedules sharing a date range
// conflict even when their popups could never show simultaneously.
// Unknown UIDs return nil.
func (m *Manager) DetectConflicts(uid string) []Conflict {
	m.mu.RLock()
	target := m.index[uid]
	others := m.snapshotLocked()
	m.mu.RUnlock()
	if target == nil {
		return nil
	}

	conflicts := m.conflictsOf(target, others)
	if m.metrics != nil {
		m.metrics.RecordConflictScan(m.shopID, len(conflicts))
	}
	return conflicts
}

// DetectAllConflicts runs the conflict scan for every schedule of the
// shop. Intersection is symmetric, so each side of a colliding pair
// reports the other.
func (m *Manager) DetectAllConflicts() []Conflict {
	m.mu.RLock()
	all := m.snapshotLocked()
	m.mu.RUnlock()

	var conflicts []Conflict
	for _, target := range all {
		conflicts = append(conflicts, m.conflictsOf(target, all)...)
	}
	if m.metrics != nil {
		m.metrics.RecordConflictScan(m.shopID, len(conflicts))
	}
	return conflicts
}

func (m *Manager) conflictsOf(target *store.Schedule, candidates []*store.Schedule) []Conflict {
	var overlapping []*store.Schedule
	var others []*store.Schedule
	for _, candidate := range candidates {
		if candidate.UID == target.UID {
			continue
		}
		others = append(others, candidate)
		if rangesOverlap(target, candidate) {
			overlapping = append(overlapping, candidate)
		}
	}

	var conflicts []Conflict
	if len(overlapping) > 0 {
		conflicts = append(conflicts, Conflict{
			Schedule:      target,
			Type:          ConflictTypeOverlap,
			ConflictsWith: overlapping,
		})
	}
	if m.resources != nil {
		if contested := m.resources.Check(target, others); len(contested) > 0 {
			conflicts = append(conflicts, Conflict{
				Schedule:      target,
				Type:          ConflictTypeResource,
				ConflictsWith: contested,
			})
		}
	}
	return conflicts
}

// rangesOverlap reports whether the inclusive civil date ranges of a
// and b intersect. Open-ended schedules extend to the far-future
// sentinel.
func rangesOverlap(a, b *store.Schedule) bool {
	aEnd := effectiveEndDate(a)
	bEnd := effectiveEndDate(b)
	return !a.StartDate.After(bEnd) && !b.StartDate.After(aEnd)
}
