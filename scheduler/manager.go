// Package scheduler decides when popup campaigns are visible. Each
// shop gets a Manager that keeps that shop's schedules in memory,
// evaluates activation against wall-clock time in the schedule's own
// timezone, and writes changes through to the backing store.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/popupkit/popupkit/holiday"
	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/internal/util"
	"github.com/popupkit/popupkit/scheduler/conditions"
	"github.com/popupkit/popupkit/store"
)

// ScheduleStore is the persistence surface a manager needs. The
// store.Store facade satisfies it; tests substitute in-memory fakes.
type ScheduleStore interface {
	LoadShopSchedules(ctx context.Context, shopID string) ([]*store.Schedule, error)
	CreateSchedule(ctx context.Context, create *store.Schedule) (*store.Schedule, error)
	UpdateSchedule(ctx context.Context, update *store.Schedule) (*store.Schedule, error)
	DeleteSchedule(ctx context.Context, delete *store.DeleteSchedule) error
	CreateCustomHoliday(ctx context.Context, create *store.CustomHoliday) (*store.CustomHoliday, error)
	ListCustomHolidays(ctx context.Context, find *store.FindCustomHoliday) ([]*store.CustomHoliday, error)
	DeleteCustomHoliday(ctx context.Context, delete *store.DeleteCustomHoliday) error
}

// MetricsRecorder receives evaluation and mutation counts. A nil
// recorder disables instrumentation.
type MetricsRecorder interface {
	RecordEvaluation(shopID string, active bool)
	RecordWrite(shopID string, op string)
	RecordPreview(shopID string, iterations int)
	RecordConflictScan(shopID string, conflicts int)
}

// Manager owns the schedules of a single shop. All read paths work off
// the in-memory index; mutations write through the store first and
// update the index only on success.
type Manager struct {
	shopID          string
	store           ScheduleStore
	detector        *holiday.Detector
	evaluator       conditions.Evaluator
	metrics         MetricsRecorder
	resources       ResourceChecker
	nowFn           func() time.Time
	defaultTimezone string

	mu sync.RWMutex
	// index maps UID to schedule; order keeps UIDs in insertion order
	// so listings and tie-breaks stay deterministic.
	index map[string]*store.Schedule
	order []string
}

// Option customizes a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the time source. Tests pin evaluation instants
// with this.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.nowFn = now }
}

// WithConditionEvaluator installs the evaluator for schedule condition
// payloads. The default treats every payload as satisfied.
func WithConditionEvaluator(e conditions.Evaluator) Option {
	return func(m *Manager) { m.evaluator = e }
}

// WithHolidayDetector replaces the built-in event calendar.
func WithHolidayDetector(d *holiday.Detector) Option {
	return func(m *Manager) { m.detector = d }
}

// WithMetrics attaches an instrumentation sink.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithResourceChecker installs a checker for resource-level conflicts
// between schedules of the same shop.
func WithResourceChecker(c ResourceChecker) Option {
	return func(m *Manager) { m.resources = c }
}

// WithDefaultTimezone sets the timezone applied to schedules created
// without one.
func WithDefaultTimezone(name string) Option {
	return func(m *Manager) { m.defaultTimezone = name }
}

// NewManager builds a manager for one shop. Call Load before serving
// reads; a fresh manager starts with an empty index.
func NewManager(shopID string, st ScheduleStore, opts ...Option) (*Manager, error) {
	m := &Manager{
		shopID:          shopID,
		store:           st,
		evaluator:       conditions.AlwaysTrue{},
		nowFn:           time.Now,
		defaultTimezone: timeutil.DefaultTimezone,
		index:           make(map[string]*store.Schedule),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.detector == nil {
		detector, err := holiday.NewDetector()
		if err != nil {
			return nil, errors.Wrap(err, "create holiday detector")
		}
		m.detector = detector
	}
	return m, nil
}

// Shop returns the shop this manager serves.
func (m *Manager) Shop() string {
	return m.shopID
}

// Load replaces the in-memory index with the store's current view of
// the shop and refreshes the detector's custom holidays.
func (m *Manager) Load(ctx context.Context) error {
	schedules, err := m.store.LoadShopSchedules(ctx, m.shopID)
	if err != nil {
		return errors.Wrapf(err, "load schedules for shop %s", m.shopID)
	}
	customs, err := m.loadCustomHolidays(ctx)
	if err != nil {
		return err
	}
	if err := m.detector.ReplaceCustoms(customs); err != nil {
		return errors.Wrapf(err, "load custom holidays for shop %s", m.shopID)
	}

	index := make(map[string]*store.Schedule, len(schedules))
	order := make([]string, 0, len(schedules))
	for _, s := range schedules {
		index[s.UID] = s
		order = append(order, s.UID)
	}

	m.mu.Lock()
	m.index = index
	m.order = order
	m.mu.Unlock()

	slog.Debug("schedules loaded", "shop", m.shopID, "count", len(schedules), "customHolidays", len(customs))
	return nil
}

func (m *Manager) loadCustomHolidays(ctx context.Context) ([]holiday.Custom, error) {
	rows, err := m.store.ListCustomHolidays(ctx, &store.FindCustomHoliday{ShopID: &m.shopID})
	if err != nil {
		return nil, errors.Wrapf(err, "list custom holidays for shop %s", m.shopID)
	}
	customs := make([]holiday.Custom, 0, len(rows))
	for _, row := range rows {
		customs = append(customs, holiday.Custom{
			Name:      row.Name,
			Date:      row.Date,
			Recurring: row.Recurring,
		})
	}
	return customs, nil
}

// CreateSchedule validates the request, persists the schedule and adds
// it to the index.
func (m *Manager) CreateSchedule(ctx context.Context, req *CreateScheduleRequest) (*store.Schedule, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	schedule, err := m.toSchedule(req)
	if err != nil {
		return nil, err
	}

	created, err := m.store.CreateSchedule(ctx, schedule)
	if err != nil {
		return nil, errors.Wrapf(err, "create schedule %q", req.Name)
	}

	m.mu.Lock()
	m.index[created.UID] = created
	m.order = append(m.order, created.UID)
	m.mu.Unlock()

	m.recordWrite("create")
	return created, nil
}

// CreateEventSchedule builds a one-day schedule for a calendar event.
// The event's next date at or after the current year is used; events
// with no remaining dates return ErrEventNotFound. The overrides
// request may adjust everything except type and dates.
func (m *Manager) CreateEventSchedule(ctx context.Context, eventKey string, overrides *CreateScheduleRequest) (*store.Schedule, error) {
	event, ok := m.detector.Event(eventKey)
	if !ok {
		return nil, errors.Wrapf(ErrEventNotFound, "unknown event %q", eventKey)
	}
	date, ok := m.detector.NextEventDate(eventKey, m.nowFn().Year())
	if !ok {
		return nil, errors.Wrapf(ErrEventNotFound, "event %q has no dates from %d on", eventKey, m.nowFn().Year())
	}

	req := &CreateScheduleRequest{
		Name:        event.Name,
		Type:        store.ScheduleOneTime,
		StartDate:   timeutil.FormatDate(date),
		EndDate:     timeutil.FormatDate(date),
		PopupConfig: eventPopupConfig(event, overrides),
	}
	if overrides != nil {
		if overrides.Name != "" {
			req.Name = overrides.Name
		}
		req.StartTime = overrides.StartTime
		req.EndTime = overrides.EndTime
		req.Timezone = overrides.Timezone
		req.Conditions = overrides.Conditions
		req.Priority = overrides.Priority
		req.Enabled = overrides.Enabled
	}
	return m.CreateSchedule(ctx, req)
}

// eventPopupConfig seeds the popup payload with the event's template
// and category, then overlays any caller-provided object on top.
func eventPopupConfig(event *holiday.Event, overrides *CreateScheduleRequest) json.RawMessage {
	merged := map[string]any{"category": event.Category}
	if event.Template != "" {
		merged["template"] = event.Template
	}
	if overrides != nil && len(overrides.PopupConfig) > 0 {
		var overlay map[string]any
		if err := json.Unmarshal(overrides.PopupConfig, &overlay); err != nil {
			slog.Warn("ignoring malformed popup config override", "error", err)
		} else {
			for k, v := range overlay {
				merged[k] = v
			}
		}
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil
	}
	return raw
}

// CreateRecurringSchedule attaches a recurrence rule to the request and
// runs the normal creation path.
func (m *Manager) CreateRecurringSchedule(ctx context.Context, req *CreateScheduleRequest, rule *store.Recurrence) (*store.Schedule, error) {
	if req == nil {
		return nil, newValidationError("request", "missing request body")
	}
	withRule := *req
	withRule.Recurrence = rule
	return m.CreateSchedule(ctx, &withRule)
}

// BulkError records one failed entry of a bulk creation.
type BulkError struct {
	Index int                    `json:"index"`
	Input *CreateScheduleRequest `json:"input"`
	Error string                 `json:"error"`
}

// BulkResult reports the outcome of CreateBulkSchedules. Created and
// Errors partition the input; an all-invalid batch is not an error.
// BatchID correlates the result with the log lines of the same run.
type BulkResult struct {
	BatchID string            `json:"batchId"`
	Created []*store.Schedule `json:"created"`
	Errors  []BulkError       `json:"errors"`
}

// CreateBulkSchedules creates each request independently. A failing
// entry is reported in the result and does not stop the rest.
func (m *Manager) CreateBulkSchedules(ctx context.Context, reqs []*CreateScheduleRequest) *BulkResult {
	result := &BulkResult{BatchID: util.GenUUID()}
	for i, req := range reqs {
		created, err := m.CreateSchedule(ctx, req)
		if err != nil {
			result.Errors = append(result.Errors, BulkError{Index: i, Input: req, Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, created)
	}
	slog.Info("bulk schedule creation finished",
		"shop", m.shopID,
		"batch", result.BatchID,
		"created", len(result.Created),
		"failed", len(result.Errors))
	return result
}

// UpdateScheduleRequest patches an existing schedule. Nil fields keep
// their current value. EndDate set to the empty string clears the end
// date, making the schedule open-ended.
type UpdateScheduleRequest struct {
	Name        *string             `json:"name,omitempty"`
	Type        *store.ScheduleType `json:"type,omitempty"`
	StartDate   *string             `json:"startDate,omitempty"`
	EndDate     *string             `json:"endDate,omitempty"`
	StartTime   *string             `json:"startTime,omitempty"`
	EndTime     *string             `json:"endTime,omitempty"`
	Timezone    *string             `json:"timezone,omitempty"`
	Recurrence  *store.Recurrence   `json:"recurrence,omitempty"`
	PopupConfig json.RawMessage     `json:"popupConfig,omitempty"`
	Conditions  json.RawMessage     `json:"conditions,omitempty"`
	Priority    *int32              `json:"priority,omitempty"`
	Enabled     *bool               `json:"enabled,omitempty"`
}

// UpdateSchedule applies the patch, revalidates the result and writes
// it through. Unknown UIDs return ErrScheduleNotFound.
func (m *Manager) UpdateSchedule(ctx context.Context, uid string, patch *UpdateScheduleRequest) (*store.Schedule, error) {
	m.mu.RLock()
	current := m.index[uid]
	m.mu.RUnlock()
	if current == nil {
		return nil, errors.Wrapf(ErrScheduleNotFound, "uid %s", uid)
	}

	next := *current
	if err := applyPatch(&next, patch); err != nil {
		return nil, err
	}
	if err := validateSchedule(&next); err != nil {
		return nil, err
	}

	updated, err := m.store.UpdateSchedule(ctx, &next)
	if err != nil {
		return nil, errors.Wrapf(err, "update schedule %s", uid)
	}

	m.mu.Lock()
	m.index[uid] = updated
	m.mu.Unlock()

	m.recordWrite("update")
	return updated, nil
}

func applyPatch(s *store.Schedule, patch *UpdateScheduleRequest) error {
	if patch == nil {
		return nil
	}
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Type != nil {
		s.Type = *patch.Type
	}
	if patch.StartDate != nil {
		parsed, err := timeutil.ParseDate(*patch.StartDate)
		if err != nil {
			return newValidationError("startDate", err.Error())
		}
		s.StartDate = parsed
	}
	if patch.EndDate != nil {
		if *patch.EndDate == "" {
			s.EndDate = nil
		} else {
			parsed, err := timeutil.ParseDate(*patch.EndDate)
			if err != nil {
				return newValidationError("endDate", err.Error())
			}
			s.EndDate = &parsed
		}
	}
	if patch.StartTime != nil {
		s.StartTime = timeutil.NormalizeClock(*patch.StartTime)
	}
	if patch.EndTime != nil {
		s.EndTime = timeutil.NormalizeClock(*patch.EndTime)
	}
	if patch.Timezone != nil {
		s.Timezone = *patch.Timezone
	}
	if patch.Recurrence != nil {
		s.Recurrence = normalizeRecurrence(s.Type, patch.Recurrence)
	}
	if patch.PopupConfig != nil {
		s.PopupConfig = patch.PopupConfig
	}
	if patch.Conditions != nil {
		s.Conditions = patch.Conditions
	}
	if patch.Priority != nil {
		s.Priority = *patch.Priority
	}
	if patch.Enabled != nil {
		s.Enabled = *patch.Enabled
	}
	return nil
}

// validateSchedule checks the invariants of a patched entity.
func validateSchedule(s *store.Schedule) error {
	if s.Name == "" {
		return newValidationError("name", "name is required")
	}
	if !s.Type.Valid() {
		return newValidationError("type", "unknown schedule type "+string(s.Type))
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return newValidationError("endDate", "endDate must not precede startDate")
	}
	if s.StartTime != "" && !timeutil.ValidClock(s.StartTime) {
		return newValidationError("startTime", "expected HH:mm, got "+s.StartTime)
	}
	if s.EndTime != "" && !timeutil.ValidClock(s.EndTime) {
		return newValidationError("endTime", "expected HH:mm, got "+s.EndTime)
	}
	return nil
}

// DeleteSchedule removes the schedule from the store and the index.
// Unknown UIDs return ErrScheduleNotFound.
func (m *Manager) DeleteSchedule(ctx context.Context, uid string) error {
	m.mu.RLock()
	_, ok := m.index[uid]
	m.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrScheduleNotFound, "uid %s", uid)
	}

	if err := m.store.DeleteSchedule(ctx, &store.DeleteSchedule{UID: uid, ShopID: m.shopID}); err != nil {
		return errors.Wrapf(err, "delete schedule %s", uid)
	}

	m.mu.Lock()
	delete(m.index, uid)
	for i, candidate := range m.order {
		if candidate == uid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.recordWrite("delete")
	return nil
}

// GetSchedule returns the schedule with the given UID, or nil when the
// shop has no such schedule.
func (m *Manager) GetSchedule(uid string) *store.Schedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index[uid]
}

// ListSchedules returns the shop's schedules in insertion order.
func (m *Manager) ListSchedules() []*store.Schedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// snapshotLocked copies the index into a slice following order. The
// caller must hold at least a read lock.
func (m *Manager) snapshotLocked() []*store.Schedule {
	schedules := make([]*store.Schedule, 0, len(m.order))
	for _, uid := range m.order {
		if s, ok := m.index[uid]; ok {
			schedules = append(schedules, s)
		}
	}
	return schedules
}

// AddCustomHoliday persists a shop-specific holiday and registers it
// with the detector.
func (m *Manager) AddCustomHoliday(ctx context.Context, name string, date time.Time, recurring bool) (*store.CustomHoliday, error) {
	if name == "" {
		return nil, newValidationError("name", "name is required")
	}
	created, err := m.store.CreateCustomHoliday(ctx, &store.CustomHoliday{
		ShopID:    m.shopID,
		Name:      name,
		Date:      timeutil.CivilDate(date),
		Recurring: recurring,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create custom holiday %q", name)
	}
	if _, err := m.detector.AddCustom(created.Name, created.Date, created.Recurring); err != nil {
		return nil, errors.Wrapf(err, "register custom holiday %q", name)
	}
	m.recordWrite("holiday")
	return created, nil
}

// DeleteCustomHoliday removes a custom holiday and rebuilds the
// detector's custom set from the store.
func (m *Manager) DeleteCustomHoliday(ctx context.Context, id int32) error {
	if err := m.store.DeleteCustomHoliday(ctx, &store.DeleteCustomHoliday{ID: id, ShopID: m.shopID}); err != nil {
		return errors.Wrapf(err, "delete custom holiday %d", id)
	}
	customs, err := m.loadCustomHolidays(ctx)
	if err != nil {
		return err
	}
	if err := m.detector.ReplaceCustoms(customs); err != nil {
		return errors.Wrap(err, "rebuild custom holidays")
	}
	m.recordWrite("holiday")
	return nil
}

// IsHoliday reports whether the given date is a built-in event day or
// one of the shop's custom holidays.
func (m *Manager) IsHoliday(date time.Time) *holiday.Match {
	return m.detector.IsHoliday(date)
}

// UpcomingHolidays scans the next daysAhead days from the manager's
// clock, current day included.
func (m *Manager) UpcomingHolidays(daysAhead int) []holiday.Occurrence {
	return m.detector.Upcoming(m.nowFn(), daysAhead)
}

// Detector exposes the holiday calendar for feed rendering.
func (m *Manager) Detector() *holiday.Detector {
	return m.detector
}

func (m *Manager) recordWrite(op string) {
	if m.metrics != nil {
		m.metrics.RecordWrite(m.shopID, op)
	}
}
