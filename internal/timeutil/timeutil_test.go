package timeutil

import (
	"testing"
	"time"
)

func TestLocationResolvesAndCaches(t *testing.T) {
	loc := Location("America/New_York")
	if loc == nil || loc.String() != "America/New_York" {
		t.Fatalf("Location() = %v, want America/New_York", loc)
	}

	// Second lookup must come from the cache and return the same pointer.
	again := Location("America/New_York")
	if loc != again {
		t.Error("expected cached *time.Location on repeat lookup")
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	loc := Location("Not/AZone")
	if loc != time.UTC {
		t.Errorf("Location(unknown) = %v, want UTC", loc)
	}
	if Location("") != time.UTC {
		t.Error("Location(\"\") should resolve the UTC default")
	}
}

func TestValidClock(t *testing.T) {
	valid := []string{"00:00", "09:30", "9:30", "23:59", "12:05"}
	for _, s := range valid {
		if !ValidClock(s) {
			t.Errorf("ValidClock(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "24:00", "12:60", "12:5", "1230", "12:30:00", "ab:cd", "-1:00"}
	for _, s := range invalid {
		if ValidClock(s) {
			t.Errorf("ValidClock(%q) = true, want false", s)
		}
	}
}

func TestNormalizeClock(t *testing.T) {
	if got := NormalizeClock("9:05"); got != "09:05" {
		t.Errorf("NormalizeClock(9:05) = %q, want 09:05", got)
	}
	if got := NormalizeClock("19:05"); got != "19:05" {
		t.Errorf("NormalizeClock(19:05) = %q, want 19:05", got)
	}
	if got := NormalizeClock("whatever"); got != "whatever" {
		t.Errorf("NormalizeClock should leave invalid input unchanged, got %q", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-02")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Year() != 2025 || d.Month() != time.June || d.Day() != 2 {
		t.Errorf("ParseDate = %v, want 2025-06-02", d)
	}
	if d.Location() != time.UTC || d.Hour() != 0 {
		t.Errorf("civil date should be midnight UTC, got %v", d)
	}

	for _, s := range []string{"", "2025/06/02", "06-02-2025", "2025-13-01"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q) should fail", s)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	a, _ := ParseDate("2025-06-01")
	b, _ := ParseDate("2025-06-11")
	if got := DaysBetween(a, b); got != 10 {
		t.Errorf("DaysBetween = %d, want 10", got)
	}
	if got := DaysBetween(b, a); got != -10 {
		t.Errorf("DaysBetween reversed = %d, want -10", got)
	}
	if got := DaysBetween(a, a); got != 0 {
		t.Errorf("DaysBetween same day = %d, want 0", got)
	}
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	loc := Location("America/New_York")
	// 2025-03-09 is the US spring-forward date; the local day is 23h long.
	before := time.Date(2025, 3, 8, 12, 0, 0, 0, loc)
	after := time.Date(2025, 3, 10, 12, 0, 0, 0, loc)
	if got := DaysBetween(before, after); got != 2 {
		t.Errorf("DaysBetween across DST = %d, want 2", got)
	}
}

func TestCombineDateClock(t *testing.T) {
	loc := Location("America/New_York")
	date, _ := ParseDate("2025-06-02")

	got, err := CombineDateClock(date, "09:30", loc)
	if err != nil {
		t.Fatalf("CombineDateClock: %v", err)
	}
	if got.Hour() != 9 || got.Minute() != 30 {
		t.Errorf("local clock = %02d:%02d, want 09:30", got.Hour(), got.Minute())
	}
	// June in New York is EDT, UTC-4.
	if utc := got.UTC(); utc.Hour() != 13 {
		t.Errorf("UTC hour = %d, want 13", utc.Hour())
	}

	if _, err := CombineDateClock(date, "25:00", loc); err == nil {
		t.Error("expected error for invalid clock")
	}
}

func TestStartAndEndOfDay(t *testing.T) {
	loc := Location("Asia/Tokyo")
	at := time.Date(2025, 6, 2, 15, 42, 7, 0, loc)

	start := StartOfDayIn(at, loc)
	if start.Hour() != 0 || start.Minute() != 0 || start.Day() != 2 {
		t.Errorf("StartOfDayIn = %v", start)
	}

	end := EndOfDayIn(at, loc)
	if end.Hour() != 23 || end.Minute() != 59 || end.Second() != 59 {
		t.Errorf("EndOfDayIn = %v", end)
	}
	if !end.After(at) {
		t.Error("end of day should be after the source instant")
	}
}

func TestClockFormatting(t *testing.T) {
	loc := Location("Europe/Berlin")
	at := time.Date(2025, 6, 2, 7, 5, 0, 0, loc)
	if got := Clock(at); got != "07:05" {
		t.Errorf("Clock = %q, want 07:05", got)
	}
}
