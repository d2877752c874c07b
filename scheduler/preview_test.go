package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popupkit/popupkit/store"
)

func TestNextActivationOneTime(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))

	future := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "upcoming",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-07-04",
		StartTime: "10:00",
	})
	past := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "gone",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-05-01",
	})

	next := mgr.NextActivation(future.UID)
	require.NotNil(t, next)
	assert.Equal(t, utc(2025, time.July, 4, 10, 0), *next)

	assert.Nil(t, mgr.NextActivation(past.UID))
	assert.Nil(t, mgr.NextActivation("no-such-uid"))
}

func TestNextActivationRecurringSteps(t *testing.T) {
	now := utc(2025, time.June, 10, 8, 0) // Tuesday
	mgr, _ := newTestManager(t, WithClock(fixedClock(now)))

	tests := []struct {
		name string
		req  *CreateScheduleRequest
		want time.Time
	}{
		{
			name: "daily interval 2",
			req: &CreateScheduleRequest{
				Name: "d", Type: store.ScheduleDaily, StartDate: "2025-06-01",
				StartTime: "09:00", Recurrence: &store.Recurrence{Interval: 2},
			},
			want: utc(2025, time.June, 12, 9, 0),
		},
		{
			name: "weekly lands a week out",
			req: &CreateScheduleRequest{
				Name: "w", Type: store.ScheduleWeekly, StartDate: "2025-06-01",
				StartTime: "09:00", Recurrence: &store.Recurrence{Interval: 1, DaysOfWeek: []int32{2}},
			},
			want: utc(2025, time.June, 17, 9, 0),
		},
		{
			name: "monthly",
			req: &CreateScheduleRequest{
				Name: "m", Type: store.ScheduleMonthly, StartDate: "2025-06-01",
				StartTime: "09:00", Recurrence: &store.Recurrence{Interval: 1, DaysOfMonth: []int32{10}},
			},
			want: utc(2025, time.July, 10, 9, 0),
		},
		{
			name: "yearly",
			req: &CreateScheduleRequest{
				Name: "y", Type: store.ScheduleYearly, StartDate: "2025-06-01",
				StartTime: "09:00", Recurrence: &store.Recurrence{Interval: 1, MonthsOfYear: []int32{6}},
			},
			want: utc(2026, time.June, 10, 9, 0),
		},
		{
			name: "custom steps one day",
			req: &CreateScheduleRequest{
				Name: "c", Type: store.ScheduleCustom, StartDate: "2025-06-01",
				StartTime: "09:00",
			},
			want: utc(2025, time.June, 11, 9, 0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustCreate(t, mgr, tt.req)
			next := mgr.NextActivation(s.UID)
			require.NotNil(t, next)
			assert.Equal(t, tt.want, *next)
		})
	}
}

func TestPreviewDaily(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))
	s := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "daily popup",
		Type:      store.ScheduleDaily,
		StartDate: "2025-06-01",
		StartTime: "09:00",
		EndTime:   "17:00",
	})

	entries := mgr.Preview(s.UID, 5)
	require.Len(t, entries, 5)
	for i, entry := range entries {
		assert.Equal(t, utc(2025, time.June, 11+i, 9, 0), entry.Date)
		assert.Equal(t, 8*time.Hour, entry.Duration)
		assert.True(t, entry.Active)
	}
}

// The candidate scan steps by the interval from "now", while matching
// counts days from the start date. When the two phases disagree the
// scan can never hit a matching day and the preview comes back empty.
func TestPreviewDailyIntervalPhase(t *testing.T) {
	newDaily := func(mgr *Manager) *store.Schedule {
		return mustCreate(t, mgr, &CreateScheduleRequest{
			Name:       "every third day",
			Type:       store.ScheduleDaily,
			StartDate:  "2025-06-01",
			StartTime:  "09:00",
			Recurrence: &store.Recurrence{Interval: 3},
		})
	}

	aligned, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 1, 8, 0))))
	s := newDaily(aligned)
	entries := aligned.Preview(s.UID, 3)
	require.Len(t, entries, 3)
	assert.Equal(t, utc(2025, time.June, 4, 9, 0), entries[0].Date)
	assert.Equal(t, utc(2025, time.June, 7, 9, 0), entries[1].Date)
	assert.Equal(t, utc(2025, time.June, 10, 9, 0), entries[2].Date)

	offPhase, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 2, 8, 0))))
	s = newDaily(offPhase)
	assert.Empty(t, offPhase.Preview(s.UID, 3))
}

func TestPreviewWeeklyEmptyDaysTerminates(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))
	s := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:       "never",
		Type:       store.ScheduleWeekly,
		StartDate:  "2025-01-01",
		Recurrence: &store.Recurrence{Interval: 1},
	})

	done := make(chan []PreviewEntry, 1)
	go func() { done <- mgr.Preview(s.UID, 10) }()
	select {
	case entries := <-done:
		assert.Empty(t, entries)
	case <-time.After(5 * time.Second):
		t.Fatal("preview did not terminate")
	}
}

func TestPreviewStopsAtEndDate(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))
	s := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "short run",
		Type:      store.ScheduleDaily,
		StartDate: "2025-06-01",
		EndDate:   "2025-06-13",
		StartTime: "09:00",
	})

	entries := mgr.Preview(s.UID, 10)
	require.Len(t, entries, 3)
	assert.Equal(t, utc(2025, time.June, 11, 9, 0), entries[0].Date)
	assert.Equal(t, utc(2025, time.June, 13, 9, 0), entries[2].Date)
}

func TestPreviewSkipsDaysBeforeStartDate(t *testing.T) {
	// The schedule starts two weeks out; stepping from now passes
	// through days before the window that must not produce entries.
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))
	s := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "starts later",
		Type:      store.ScheduleDaily,
		StartDate: "2025-06-24",
		StartTime: "09:00",
	})

	entries := mgr.Preview(s.UID, 3)
	require.Len(t, entries, 3)
	assert.Equal(t, utc(2025, time.June, 24, 9, 0), entries[0].Date)
	assert.Equal(t, utc(2025, time.June, 25, 9, 0), entries[1].Date)
}

func TestPreviewOneTime(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))
	future := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "upcoming",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-07-04",
		StartTime: "10:00",
		EndTime:   "14:00",
	})
	past := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "gone",
		Type:      store.ScheduleOneTime,
		StartDate: "2025-05-01",
	})

	entries := mgr.Preview(future.UID, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, utc(2025, time.July, 4, 10, 0), entries[0].Date)
	assert.Equal(t, 4*time.Hour, entries[0].Duration)
	assert.True(t, entries[0].Active)

	assert.Empty(t, mgr.Preview(past.UID, 10))
}

func TestPreviewDisabledScheduleMarksInactive(t *testing.T) {
	off := false
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))
	s := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "dark launch",
		Type:      store.ScheduleDaily,
		StartDate: "2025-06-01",
		StartTime: "09:00",
		Enabled:   &off,
	})

	entries := mgr.Preview(s.UID, 2)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.False(t, entry.Active)
	}
}

func TestPreviewEdgeInputs(t *testing.T) {
	mgr, _ := newTestManager(t)
	s := mustCreate(t, mgr, &CreateScheduleRequest{
		Name: "x", Type: store.ScheduleDaily, StartDate: "2025-06-01",
	})

	assert.Nil(t, mgr.Preview("no-such-uid", 10))
	assert.Nil(t, mgr.Preview(s.UID, 0))
	assert.Nil(t, mgr.Preview(s.UID, -3))
}

func TestPreviewTimezoneInstants(t *testing.T) {
	mgr, _ := newTestManager(t, WithClock(fixedClock(utc(2025, time.June, 10, 8, 0))))
	s := mustCreate(t, mgr, &CreateScheduleRequest{
		Name:      "new york daily",
		Type:      store.ScheduleDaily,
		StartDate: "2025-06-01",
		StartTime: "09:00",
		Timezone:  "America/New_York",
	})

	entries := mgr.Preview(s.UID, 1)
	require.Len(t, entries, 1)
	// 09:00 EDT is 13:00 UTC.
	assert.Equal(t, utc(2025, time.June, 11, 13, 0), entries[0].Date.UTC())
}
