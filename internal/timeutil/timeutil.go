// Package timeutil provides timezone resolution and civil date/clock
// helpers for schedule evaluation. All conversions go through the IANA
// zone database; offsets are never computed by hand.
package timeutil

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimezone is used when a schedule carries no timezone of its own.
const DefaultTimezone = "UTC"

// DateLayout is the ISO calendar date layout used across the engine.
const DateLayout = "2006-01-02"

// ClockLayout is the wall-clock layout used for schedule time bounds.
const ClockLayout = "15:04"

// validClock accepts 24h wall-clock strings, with or without a leading
// zero on the hour.
var validClock = regexp.MustCompile(`^([0-9]|0[0-9]|1[0-9]|2[0-3]):([0-5][0-9])$`)

// zoneCache caches parsed timezone locations for performance.
var zoneCache = struct {
	locations map[string]*time.Location
	mu        sync.RWMutex
}{
	locations: make(map[string]*time.Location),
}

var (
	zoneCacheHits   atomic.Int64
	zoneCacheMisses atomic.Int64
)

// Location resolves an IANA timezone name through the process-wide
// cache. Unknown or empty names fall back to UTC; failures are logged
// once per name, not per call.
func Location(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}

	zoneCache.mu.RLock()
	loc, ok := zoneCache.locations[name]
	zoneCache.mu.RUnlock()

	if ok {
		zoneCacheHits.Add(1)
		return loc
	}

	zoneCache.mu.Lock()
	defer zoneCache.mu.Unlock()

	// Double-check after acquiring write lock
	if loc, ok := zoneCache.locations[name]; ok {
		zoneCacheHits.Add(1)
		return loc
	}
	zoneCacheMisses.Add(1)

	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("failed to load timezone, using UTC", "timezone", name, "error", err)
		loc = time.UTC
	}

	zoneCache.locations[name] = loc
	return loc
}

// ValidTimezone reports whether name resolves in the IANA database.
func ValidTimezone(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// ZoneCacheHits returns the cumulative zone cache hit count.
func ZoneCacheHits() int64 { return zoneCacheHits.Load() }

// ZoneCacheMisses returns the cumulative zone cache miss count.
func ZoneCacheMisses() int64 { return zoneCacheMisses.Load() }

// ValidClock reports whether s is a 24h HH:mm wall-clock string.
func ValidClock(s string) bool {
	return validClock.MatchString(s)
}

// NormalizeClock zero-pads the hour of a valid clock string so that
// lexical comparison between clock strings matches chronological order.
// Invalid input is returned unchanged.
func NormalizeClock(s string) string {
	m := validClock.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	if len(m[1]) == 1 {
		return "0" + s
	}
	return s
}

// Clock formats the wall-clock of t as a zero-padded HH:mm string.
func Clock(t time.Time) string {
	return t.Format(ClockLayout)
}

// ParseDate parses an ISO calendar date into a civil date, represented
// as midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats the civil date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CivilDate strips the clock and zone from t, keeping the calendar date
// t shows in its own location. The result is midnight UTC of that day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameCivilDate reports whether a and b show the same calendar date,
// each in its own location.
func SameCivilDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the whole calendar days from a's date to b's
// date, each taken in its own location. Negative when b precedes a.
// Counting calendar days instead of dividing elapsed seconds keeps DST
// transition days at length one.
func DaysBetween(a, b time.Time) int {
	return int(CivilDate(b).Sub(CivilDate(a)).Hours() / 24)
}

// StartOfDayIn returns midnight of t's calendar date in loc.
func StartOfDayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDayIn returns the last representable instant of t's calendar
// date in loc.
func EndOfDayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

// CombineDateClock builds the instant at the given civil date and HH:mm
// wall clock in loc. The zone database decides the UTC offset, so dates
// that straddle DST transitions resolve the way a local clock would.
func CombineDateClock(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	m := validClock.FindStringSubmatch(clock)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid clock %q: expected HH:mm", clock)
	}
	parsed, err := time.Parse(ClockLayout, NormalizeClock(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock %q: expected HH:mm", clock)
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
