package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popupkit/popupkit/store"
)

// fakeScheduleStore is an in-memory RegistryStore for manager and
// registry tests.
type fakeScheduleStore struct {
	mu          sync.Mutex
	nextID      int32
	nextHoliday int32
	schedules   []*store.Schedule
	holidays    []*store.CustomHoliday
	loadCalls   map[string]int
	failLoad    error
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{loadCalls: make(map[string]int)}
}

func (f *fakeScheduleStore) LoadShopSchedules(_ context.Context, shopID string) ([]*store.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls[shopID]++
	if f.failLoad != nil {
		return nil, f.failLoad
	}
	var out []*store.Schedule
	for _, s := range f.schedules {
		if s.ShopID == shopID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) CreateSchedule(_ context.Context, create *store.Schedule) (*store.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	create.ID = f.nextID
	create.CreatedTs = time.Now().Unix()
	create.UpdatedTs = create.CreatedTs
	f.schedules = append(f.schedules, create)
	return create, nil
}

func (f *fakeScheduleStore) UpdateSchedule(_ context.Context, update *store.Schedule) (*store.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.schedules {
		if s.UID == update.UID && s.ShopID == update.ShopID {
			update.ID = s.ID
			update.CreatedTs = s.CreatedTs
			update.UpdatedTs = time.Now().Unix()
			f.schedules[i] = update
			return update, nil
		}
	}
	return nil, errors.Errorf("schedule %s not found", update.UID)
}

func (f *fakeScheduleStore) DeleteSchedule(_ context.Context, del *store.DeleteSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.schedules {
		if s.UID == del.UID && s.ShopID == del.ShopID {
			f.schedules = append(f.schedules[:i], f.schedules[i+1:]...)
			return nil
		}
	}
	return errors.Errorf("schedule %s not found", del.UID)
}

func (f *fakeScheduleStore) CreateCustomHoliday(_ context.Context, create *store.CustomHoliday) (*store.CustomHoliday, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHoliday++
	create.ID = f.nextHoliday
	create.CreatedTs = time.Now().Unix()
	f.holidays = append(f.holidays, create)
	return create, nil
}

func (f *fakeScheduleStore) ListCustomHolidays(_ context.Context, find *store.FindCustomHoliday) ([]*store.CustomHoliday, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.CustomHoliday
	for _, h := range f.holidays {
		if find.ShopID != nil && h.ShopID != *find.ShopID {
			continue
		}
		if find.ID != nil && h.ID != *find.ID {
			continue
		}
		copied := *h
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeScheduleStore) DeleteCustomHoliday(_ context.Context, del *store.DeleteCustomHoliday) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.holidays {
		if h.ID == del.ID && h.ShopID == del.ShopID {
			f.holidays = append(f.holidays[:i], f.holidays[i+1:]...)
			return nil
		}
	}
	return errors.Errorf("custom holiday %d not found", del.ID)
}

func (f *fakeScheduleStore) ListShops(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var shops []string
	for _, s := range f.schedules {
		if !seen[s.ShopID] {
			seen[s.ShopID] = true
			shops = append(shops, s.ShopID)
		}
	}
	return shops, nil
}

func (f *fakeScheduleStore) scheduleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.schedules)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeScheduleStore) {
	t.Helper()
	st := newFakeScheduleStore()
	mgr, err := NewManager("shop-1", st, opts...)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))
	return mgr, st
}

func TestCreateScheduleDefaults(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.CreateSchedule(ctx, &CreateScheduleRequest{
		Name:      "Summer Sale",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-07-01",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.UID)
	assert.Equal(t, "shop-1", created.ShopID)
	assert.Equal(t, "00:00", created.StartTime)
	assert.Equal(t, "23:59", created.EndTime)
	assert.Equal(t, "UTC", created.Timezone)
	assert.True(t, created.Enabled)
	assert.Nil(t, created.EndDate)
	assert.NotZero(t, created.ID)
}

func TestCreateScheduleValidation(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   *CreateScheduleRequest
		field string
	}{
		{
			name:  "missing name",
			req:   &CreateScheduleRequest{Type: store.ScheduleDaily, StartDate: "2025-06-01"},
			field: "name",
		},
		{
			name:  "missing start date",
			req:   &CreateScheduleRequest{Name: "x", Type: store.ScheduleDaily},
			field: "startDate",
		},
		{
			name:  "end date before start date",
			req:   &CreateScheduleRequest{Name: "x", Type: store.ScheduleOneTime, StartDate: "2025-06-01", EndDate: "2025-05-01"},
			field: "endDate",
		},
		{
			name:  "unknown type",
			req:   &CreateScheduleRequest{Name: "x", Type: "fortnightly", StartDate: "2025-06-01"},
			field: "type",
		},
		{
			name:  "malformed start date",
			req:   &CreateScheduleRequest{Name: "x", Type: store.ScheduleDaily, StartDate: "06/01/2025"},
			field: "startDate",
		},
		{
			name:  "malformed start time",
			req:   &CreateScheduleRequest{Name: "x", Type: store.ScheduleDaily, StartDate: "2025-06-01", StartTime: "25:00"},
			field: "startTime",
		},
		{
			name:  "malformed end time",
			req:   &CreateScheduleRequest{Name: "x", Type: store.ScheduleDaily, StartDate: "2025-06-01", EndTime: "9:5"},
			field: "endTime",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.CreateSchedule(ctx, tt.req)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Zero(t, st.scheduleCount(), "invalid requests must not persist anything")
}

func TestCreateScheduleRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	popup := json.RawMessage(`{"category":"sale","headline":"20% off"}`)
	created, err := mgr.CreateSchedule(ctx, &CreateScheduleRequest{
		Name:      "Weekday Lunch Popup",
		Type:      store.ScheduleWeekly,
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
		StartTime: "11:30",
		EndTime:   "13:30",
		Timezone:  "America/New_York",
		Recurrence: &store.Recurrence{
			Interval:   1,
			DaysOfWeek: []int32{1, 2, 3, 4, 5},
		},
		PopupConfig: popup,
		Priority:    7,
	})
	require.NoError(t, err)

	got := mgr.GetSchedule(created.UID)
	require.NotNil(t, got)
	assert.Equal(t, "Weekday Lunch Popup", got.Name)
	assert.Equal(t, store.ScheduleWeekly, got.Type)
	assert.Equal(t, utc(2025, time.January, 1, 0, 0), got.StartDate)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, utc(2025, time.December, 31, 0, 0), *got.EndDate)
	assert.Equal(t, "11:30", got.StartTime)
	assert.Equal(t, "13:30", got.EndTime)
	assert.Equal(t, "America/New_York", got.Timezone)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, got.Recurrence.DaysOfWeek)
	assert.JSONEq(t, string(popup), string(got.PopupConfig))
	assert.EqualValues(t, 7, got.Priority)
}

func TestCreateScheduleNormalizesClocksAndInterval(t *testing.T) {
	mgr, _ := newTestManager(t)

	created, err := mgr.CreateSchedule(context.Background(), &CreateScheduleRequest{
		Name:       "Morning",
		Type:       store.ScheduleDaily,
		StartDate:  "2025-06-01",
		StartTime:  "9:05",
		EndTime:    "9:45",
		Recurrence: &store.Recurrence{Interval: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "09:05", created.StartTime)
	assert.Equal(t, "09:45", created.EndTime)
	require.NotNil(t, created.Recurrence)
	assert.EqualValues(t, 1, created.Recurrence.Interval)
}

func TestCreateRecurringSchedule(t *testing.T) {
	mgr, _ := newTestManager(t)

	created, err := mgr.CreateRecurringSchedule(context.Background(), &CreateScheduleRequest{
		Name:      "Every third day",
		Type:      store.ScheduleDaily,
		StartDate: "2025-06-01",
	}, &store.Recurrence{Interval: 3})
	require.NoError(t, err)
	require.NotNil(t, created.Recurrence)
	assert.EqualValues(t, 3, created.Recurrence.Interval)

	_, err = mgr.CreateRecurringSchedule(context.Background(), nil, &store.Recurrence{Interval: 1})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateEventSchedule(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 15, 12, 0))))
	ctx := context.Background()

	created, err := mgr.CreateEventSchedule(ctx, "black_friday", nil)
	require.NoError(t, err)
	assert.Equal(t, "Black Friday", created.Name)
	assert.Equal(t, store.ScheduleOneTime, created.Type)
	assert.Equal(t, utc(2025, time.November, 28, 0, 0), created.StartDate)
	require.NotNil(t, created.EndDate)
	assert.Equal(t, created.StartDate, *created.EndDate)

	var popup map[string]any
	require.NoError(t, json.Unmarshal(created.PopupConfig, &popup))
	assert.Equal(t, "shopping", popup["category"])
	assert.NotEmpty(t, popup["template"])
}

func TestCreateEventScheduleOverrides(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 15, 12, 0))))

	created, err := mgr.CreateEventSchedule(context.Background(), "black_friday", &CreateScheduleRequest{
		Name:        "Doorbuster",
		StartTime:   "06:00",
		EndTime:     "23:00",
		Priority:    50,
		PopupConfig: json.RawMessage(`{"discount":50}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Doorbuster", created.Name)
	assert.Equal(t, "06:00", created.StartTime)
	assert.EqualValues(t, 50, created.Priority)

	var popup map[string]any
	require.NoError(t, json.Unmarshal(created.PopupConfig, &popup))
	assert.Equal(t, "shopping", popup["category"], "event defaults survive the overlay")
	assert.EqualValues(t, 50, popup["discount"])
}

func TestCreateEventScheduleNotFound(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 15, 12, 0))))

	_, err := mgr.CreateEventSchedule(context.Background(), "national_pancake_day", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventNotFound)

	// The calendar only reaches a few years out; far-future clocks
	// exhaust every date.
	late, _ := newTestManager(t, WithClock(fixedClock(utc(2099, time.January, 1, 0, 0))))
	_, err = late.CreateEventSchedule(context.Background(), "black_friday", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCreateBulkSchedules(t *testing.T) {
	mgr, st := newTestManager(t)

	reqs := []*CreateScheduleRequest{
		{Name: "ok-1", Type: store.ScheduleOneTime, StartDate: "2025-06-01"},
		{Type: store.ScheduleOneTime, StartDate: "2025-06-02"},
		{Name: "ok-2", Type: store.ScheduleDaily, StartDate: "2025-06-03"},
		{Name: "bad-type", Type: "hourly", StartDate: "2025-06-04"},
	}
	result := mgr.CreateBulkSchedules(context.Background(), reqs)

	assert.NotEmpty(t, result.BatchID)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "ok-1", result.Created[0].Name)
	assert.Equal(t, "ok-2", result.Created[1].Name)

	require.Len(t, result.Errors, 2)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Contains(t, result.Errors[0].Error, "name")
	assert.Equal(t, 3, result.Errors[1].Index)
	assert.Contains(t, result.Errors[1].Error, "type")
	assert.Same(t, reqs[1], result.Errors[0].Input)

	assert.Equal(t, 2, st.scheduleCount())
}

func TestCreateBulkSchedulesAllInvalid(t *testing.T) {
	mgr, _ := newTestManager(t)

	result := mgr.CreateBulkSchedules(context.Background(), []*CreateScheduleRequest{
		{Name: "", Type: store.ScheduleDaily, StartDate: "2025-06-01"},
		{Name: "x", Type: store.ScheduleDaily},
	})
	assert.Empty(t, result.Created)
	assert.Len(t, result.Errors, 2)
}

func TestUpdateSchedule(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.CreateSchedule(ctx, &CreateScheduleRequest{
		Name:      "Before",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-06-01",
		EndDate:   "2025-06-30",
	})
	require.NoError(t, err)

	name := "After"
	clearEnd := ""
	priority := int32(9)
	enabled := false
	updated, err := mgr.UpdateSchedule(ctx, created.UID, &UpdateScheduleRequest{
		Name:     &name,
		EndDate:  &clearEnd,
		Priority: &priority,
		Enabled:  &enabled,
	})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Name)
	assert.Nil(t, updated.EndDate)
	assert.EqualValues(t, 9, updated.Priority)
	assert.False(t, updated.Enabled)

	got := mgr.GetSchedule(created.UID)
	assert.Equal(t, "After", got.Name)
}

func TestUpdateScheduleRejectsInvertedDates(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.CreateSchedule(ctx, &CreateScheduleRequest{
		Name:      "x",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-06-10",
	})
	require.NoError(t, err)

	badEnd := "2025-06-01"
	_, err = mgr.UpdateSchedule(ctx, created.UID, &UpdateScheduleRequest{EndDate: &badEnd})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestUpdateScheduleNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	name := "x"
	_, err := mgr.UpdateSchedule(context.Background(), "missing", &UpdateScheduleRequest{Name: &name})
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestDeleteSchedule(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.CreateSchedule(ctx, &CreateScheduleRequest{
		Name:      "doomed",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-06-01",
	})
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteSchedule(ctx, created.UID))
	assert.Nil(t, mgr.GetSchedule(created.UID))
	assert.Zero(t, st.scheduleCount())
	assert.False(t, mgr.IsActive(created.UID, utc(2025, time.June, 1, 12, 0)))

	assert.ErrorIs(t, mgr.DeleteSchedule(ctx, created.UID), ErrScheduleNotFound)
}

func TestLoadReplacesIndex(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.CreateSchedule(ctx, &CreateScheduleRequest{
		Name:      "kept",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-06-01",
	})
	require.NoError(t, err)

	// Simulate an external write the manager has not seen.
	st.mu.Lock()
	st.schedules = append(st.schedules, &store.Schedule{
		ID: 99, UID: "external", ShopID: "shop-1", Name: "external",
		Type: store.ScheduleOneTime, StartDate: utc(2025, time.July, 1, 0, 0), Enabled: true,
	})
	st.mu.Unlock()

	require.NoError(t, mgr.Load(ctx))
	assert.NotNil(t, mgr.GetSchedule(created.UID))
	assert.NotNil(t, mgr.GetSchedule("external"))
	assert.Len(t, mgr.ListSchedules(), 2)
}

func TestListSchedulesInsertionOrder(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := mgr.CreateSchedule(ctx, &CreateScheduleRequest{
			Name:      fmt.Sprintf("s-%d", i),
			Type:      store.ScheduleOneTime,
			StartDate: "2025-06-01",
		})
		require.NoError(t, err)
	}
	listed := mgr.ListSchedules()
	require.Len(t, listed, 5)
	for i, s := range listed {
		assert.Equal(t, fmt.Sprintf("s-%d", i), s.Name)
	}
}

func TestAddCustomHolidayFlowsIntoDetector(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.AddCustomHoliday(ctx, "Founders Day", utc(2025, time.September, 9, 15, 30), false)
	require.NoError(t, err)
	assert.Equal(t, utc(2025, time.September, 9, 0, 0), created.Date, "time of day is truncated")

	match := mgr.IsHoliday(utc(2025, time.September, 9, 0, 0))
	require.NotNil(t, match)
	assert.Equal(t, "Founders Day", match.Name)
	assert.True(t, match.Custom)

	require.NoError(t, mgr.DeleteCustomHoliday(ctx, created.ID))
	assert.Nil(t, mgr.IsHoliday(utc(2025, time.September, 9, 0, 0)))
	assert.Empty(t, st.holidays)
}
