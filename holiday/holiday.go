// Package holiday detects named marketing events and holidays for
// schedule bootstrapping. A built-in calendar ships with the binary;
// merchants extend it with custom holidays, optionally recurring every
// year.
package holiday

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/teambition/rrule-go"

	"github.com/popupkit/popupkit/internal/timeutil"
)

var (
	lookupCount atomic.Int64
	matchCount  atomic.Int64
)

// Match describes the holiday found on a date.
type Match struct {
	// Key is the calendar key of a built-in event, empty for custom
	// holidays.
	Key      string
	Name     string
	Category string
	Template string
	Custom   bool
}

// Custom is a merchant-defined holiday. Recurring holidays repeat
// yearly on the same month and day.
type Custom struct {
	Name      string
	Date      time.Time
	Recurring bool

	rule *rrule.RRule
}

// Occurrence is one day of the upcoming-holiday scan.
type Occurrence struct {
	Date  time.Time
	Match *Match
}

// Detector answers date-to-holiday lookups. Reads are safe for
// concurrent use; custom holiday mutations are serialized internally.
type Detector struct {
	events  map[string]*Event
	byDate  map[string]*Match
	customs []*Custom
	mu      sync.RWMutex
}

// NewDetector loads the built-in event calendar.
func NewDetector() (*Detector, error) {
	events, err := loadEvents()
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*Match)
	for _, key := range sortedKeys(events) {
		event := events[key]
		match := &Match{
			Key:      key,
			Name:     event.Name,
			Category: event.Category,
			Template: event.Template,
		}
		for _, d := range event.Dates {
			// First event wins on date collisions; iteration order is
			// deterministic via the sorted keys.
			if _, taken := byDate[d]; !taken {
				byDate[d] = match
			}
		}
	}

	return &Detector{events: events, byDate: byDate}, nil
}

// IsHoliday returns the holiday on the calendar date of t, or nil. The
// built-in calendar is consulted before custom holidays.
func (d *Detector) IsHoliday(t time.Time) *Match {
	lookupCount.Add(1)
	date := timeutil.CivilDate(t)
	key := timeutil.FormatDate(date)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if match, ok := d.byDate[key]; ok {
		matchCount.Add(1)
		return match
	}
	for _, custom := range d.customs {
		if custom.matches(date) {
			matchCount.Add(1)
			return &Match{Name: custom.Name, Category: "custom", Custom: true}
		}
	}
	return nil
}

// Lookups returns the cumulative holiday lookup count.
func Lookups() int64 { return lookupCount.Load() }

// LookupMatches returns the cumulative count of lookups that found a
// holiday.
func LookupMatches() int64 { return matchCount.Load() }

// Upcoming scans the calendar days from the date of `from` through
// daysAhead days later, inclusive, and reports every day that is a
// holiday. The result is a finite slice; scanning again restarts from
// scratch.
func (d *Detector) Upcoming(from time.Time, daysAhead int) []Occurrence {
	if daysAhead < 0 {
		return nil
	}

	start := timeutil.CivilDate(from)
	var occurrences []Occurrence
	for i := 0; i <= daysAhead; i++ {
		date := start.AddDate(0, 0, i)
		if match := d.IsHoliday(date); match != nil {
			occurrences = append(occurrences, Occurrence{Date: date, Match: match})
		}
	}
	return occurrences
}

// AddCustom registers a merchant holiday. Recurring holidays repeat
// yearly from their first date.
func (d *Detector) AddCustom(name string, date time.Time, recurring bool) (*Custom, error) {
	custom := &Custom{Name: name, Date: timeutil.CivilDate(date), Recurring: recurring}
	if err := custom.compile(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.customs = append(d.customs, custom)
	return custom, nil
}

// ReplaceCustoms swaps the whole custom holiday set, used when a shop's
// persisted holidays are (re)loaded.
func (d *Detector) ReplaceCustoms(customs []Custom) error {
	compiled := make([]*Custom, 0, len(customs))
	for i := range customs {
		custom := customs[i]
		custom.Date = timeutil.CivilDate(custom.Date)
		if err := custom.compile(); err != nil {
			return err
		}
		compiled = append(compiled, &custom)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.customs = compiled
	return nil
}

// Customs returns a snapshot of the custom holiday set.
func (d *Detector) Customs() []Custom {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Custom, 0, len(d.customs))
	for _, c := range d.customs {
		out = append(out, Custom{Name: c.Name, Date: c.Date, Recurring: c.Recurring})
	}
	return out
}

// Event returns a built-in event by key.
func (d *Detector) Event(key string) (*Event, bool) {
	event, ok := d.events[key]
	return event, ok
}

// Events returns the built-in events sorted by key.
func (d *Detector) Events() []*Event {
	out := make([]*Event, 0, len(d.events))
	for _, key := range sortedKeys(d.events) {
		out = append(out, d.events[key])
	}
	return out
}

// NextEventDate returns the earliest date of the event whose year is
// fromYear or later. The date may already have passed within that
// year; selection is by year, matching how event campaigns are planned.
func (d *Detector) NextEventDate(key string, fromYear int) (time.Time, bool) {
	event, ok := d.events[key]
	if !ok {
		return time.Time{}, false
	}
	for _, ds := range event.Dates {
		date, err := timeutil.ParseDate(ds)
		if err != nil {
			continue
		}
		if date.Year() >= fromYear {
			return date, true
		}
	}
	return time.Time{}, false
}

func (c *Custom) compile() error {
	if !c.Recurring {
		c.rule = nil
		return nil
	}
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.YEARLY,
		Dtstart: c.Date,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to build recurrence for holiday %q", c.Name)
	}
	c.rule = rule
	return nil
}

// matches reports whether the custom holiday falls on the given civil
// date.
func (c *Custom) matches(date time.Time) bool {
	if !c.Recurring {
		return timeutil.SameCivilDate(c.Date, date)
	}
	if c.rule == nil {
		return false
	}
	// Yearly instances land at the dtstart clock, midnight UTC of the
	// civil date, so a same-instant window finds exactly that day.
	return len(c.rule.Between(date, date, true)) > 0
}

func sortedKeys(m map[string]*Event) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
