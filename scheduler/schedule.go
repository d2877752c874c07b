package scheduler

import (
	"encoding/json"
	"time"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/internal/util"
	"github.com/popupkit/popupkit/store"
)

const (
	// defaultStartClock and defaultEndClock bound the daily active
	// window when a request leaves the times unset.
	defaultStartClock = "00:00"
	defaultEndClock   = "23:59"
)

// farFutureDate stands in for the end date of open-ended schedules so
// range checks never need a nil branch.
var farFutureDate = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// CreateScheduleRequest carries the caller-facing shape of a new
// schedule. Dates and times arrive as strings the way merchant
// dashboards submit them and are parsed during validation.
type CreateScheduleRequest struct {
	Name      string             `json:"name"`
	Type      store.ScheduleType `json:"type"`
	StartDate string             `json:"startDate"`
	// EndDate left empty means the schedule never expires.
	EndDate   string `json:"endDate,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Timezone  string `json:"timezone,omitempty"`

	Recurrence  *store.Recurrence `json:"recurrence,omitempty"`
	PopupConfig json.RawMessage   `json:"popupConfig,omitempty"`
	Conditions  json.RawMessage   `json:"conditions,omitempty"`
	Priority    int32             `json:"priority,omitempty"`
	// Enabled defaults to true when nil.
	Enabled *bool `json:"enabled,omitempty"`
}

// toSchedule converts a validated request into a store entity, filling
// defaults and generating the public UID. Callers must run
// validateCreate first; conversion assumes well-formed fields.
func (m *Manager) toSchedule(req *CreateScheduleRequest) (*store.Schedule, error) {
	startDate, err := timeutil.ParseDate(req.StartDate)
	if err != nil {
		return nil, newValidationError("startDate", err.Error())
	}

	var endDate *time.Time
	if req.EndDate != "" {
		parsed, err := timeutil.ParseDate(req.EndDate)
		if err != nil {
			return nil, newValidationError("endDate", err.Error())
		}
		endDate = &parsed
	}

	startClock := defaultStartClock
	if req.StartTime != "" {
		startClock = timeutil.NormalizeClock(req.StartTime)
	}
	endClock := defaultEndClock
	if req.EndTime != "" {
		endClock = timeutil.NormalizeClock(req.EndTime)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = m.defaultTimezone
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	recurrence := normalizeRecurrence(req.Type, req.Recurrence)

	return &store.Schedule{
		UID:         util.GenShortUUID(),
		ShopID:      m.shopID,
		Name:        req.Name,
		Type:        req.Type,
		StartDate:   startDate,
		EndDate:     endDate,
		StartTime:   startClock,
		EndTime:     endClock,
		Timezone:    timezone,
		Recurrence:  recurrence,
		PopupConfig: req.PopupConfig,
		Conditions:  req.Conditions,
		Priority:    req.Priority,
		Enabled:     enabled,
	}, nil
}

// normalizeRecurrence clamps the interval to at least one so modular
// arithmetic downstream never divides by zero. The rule is kept even
// for one_time schedules; evaluation simply ignores it there.
func normalizeRecurrence(_ store.ScheduleType, rule *store.Recurrence) *store.Recurrence {
	if rule == nil {
		return nil
	}
	normalized := *rule
	if normalized.Interval < 1 {
		normalized.Interval = 1
	}
	return &normalized
}

// effectiveEndDate resolves the open-ended sentinel for range checks.
func effectiveEndDate(s *store.Schedule) time.Time {
	if s.EndDate == nil {
		return farFutureDate
	}
	return *s.EndDate
}

// scheduleLocation resolves the schedule's timezone, falling back to
// UTC for unknown names.
func scheduleLocation(s *store.Schedule) *time.Location {
	return timeutil.Location(s.Timezone)
}
