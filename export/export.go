// Package export renders a shop's schedule outlook as calendar and
// feed documents. The sweeper regenerates them after each resync so
// merchants can subscribe from standard calendar and RSS clients.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gorilla/feeds"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/popupkit/popupkit/scheduler"
	"github.com/popupkit/popupkit/store"
)

const (
	defaultHorizonDays   = 30
	defaultPerSchedule   = 10
	calendarProductID    = "-//popupkit//schedule calendar//EN"
	feedGeneratorComment = "popup schedule outlook"
)

// Exporter writes per-shop calendar and feed files into a directory.
type Exporter struct {
	dir         string
	baseURL     string
	horizonDays int
	perSchedule int
	md          goldmark.Markdown
}

// Option adjusts an Exporter.
type Option func(*Exporter)

// WithHorizon sets how many days ahead the holiday scan looks.
func WithHorizon(days int) Option {
	return func(e *Exporter) { e.horizonDays = days }
}

// WithPerSchedule caps the projected occurrences per schedule.
func WithPerSchedule(n int) Option {
	return func(e *Exporter) { e.perSchedule = n }
}

// New builds an exporter rooted at dir. baseURL prefixes the links
// embedded in feed items.
func New(dir, baseURL string, opts ...Option) *Exporter {
	e := &Exporter{
		dir:         dir,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		horizonDays: defaultHorizonDays,
		perSchedule: defaultPerSchedule,
		md:          goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CalendarICS renders the shop's projected occurrences and upcoming
// holidays as an iCalendar document.
func (e *Exporter) CalendarICS(mgr *scheduler.Manager) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName(fmt.Sprintf("Popup schedules (%s)", mgr.Shop()))

	stamp := time.Now().UTC()
	for _, s := range mgr.ListSchedules() {
		for _, entry := range mgr.Preview(s.UID, e.perSchedule) {
			uid := fmt.Sprintf("%s-%s@popupkit", s.UID, entry.Date.UTC().Format("20060102T150405Z"))
			event := cal.AddEvent(uid)
			event.SetDtStampTime(stamp)
			event.SetStartAt(entry.Date)
			event.SetEndAt(entry.Date.Add(entry.Duration))
			event.SetSummary(s.Name)
			event.SetDescription(describeSchedule(s, entry))
			event.AddProperty(ics.ComponentPropertyCategories, scheduleCategory(s))
			if e.baseURL != "" {
				event.SetURL(e.scheduleURL(mgr.Shop(), s.UID))
			}
		}
	}

	for _, occ := range mgr.UpcomingHolidays(e.horizonDays) {
		uid := fmt.Sprintf("holiday-%s-%s@popupkit", slugify(occ.Match.Name), occ.Date.Format("20060102"))
		event := cal.AddEvent(uid)
		event.SetDtStampTime(stamp)
		event.SetAllDayStartAt(occ.Date)
		event.SetAllDayEndAt(occ.Date.AddDate(0, 0, 1))
		event.SetSummary(occ.Match.Name)
		event.AddProperty(ics.ComponentPropertyCategories, occ.Match.Category)
	}

	return cal.Serialize()
}

// UpcomingRSS renders the same outlook as an RSS 2.0 feed. Holiday
// descriptions written in markdown are rendered to HTML.
func (e *Exporter) UpcomingRSS(mgr *scheduler.Manager) (string, error) {
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Popup schedules (%s)", mgr.Shop()),
		Link:        &feeds.Link{Href: e.shopURL(mgr.Shop())},
		Description: feedGeneratorComment,
		Created:     time.Now().UTC(),
	}

	for _, s := range mgr.ListSchedules() {
		for _, entry := range mgr.Preview(s.UID, e.perSchedule) {
			feed.Items = append(feed.Items, &feeds.Item{
				Id:          fmt.Sprintf("%s-%d", s.UID, entry.Date.Unix()),
				Title:       s.Name,
				Link:        &feeds.Link{Href: e.scheduleURL(mgr.Shop(), s.UID)},
				Description: describeSchedule(s, entry),
				Created:     entry.Date,
			})
		}
	}

	for _, occ := range mgr.UpcomingHolidays(e.horizonDays) {
		item := &feeds.Item{
			Id:      fmt.Sprintf("holiday-%s-%s", slugify(occ.Match.Name), occ.Date.Format("2006-01-02")),
			Title:   occ.Match.Name,
			Link:    &feeds.Link{Href: e.eventURL(occ.Match.Key)},
			Created: occ.Date,
		}
		if event, ok := mgr.Detector().Event(occ.Match.Key); ok && event.Description != "" {
			item.Description = e.renderMarkdown(event.Description)
		} else {
			item.Description = occ.Match.Category
		}
		feed.Items = append(feed.Items, item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", errors.Wrap(err, "render rss feed")
	}
	return rss, nil
}

// WriteShop writes <shop>.ics and <shop>.xml under the export
// directory.
func (e *Exporter) WriteShop(mgr *scheduler.Manager) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create export directory %s", e.dir)
	}

	icsPath := filepath.Join(e.dir, mgr.Shop()+".ics")
	if err := os.WriteFile(icsPath, []byte(e.CalendarICS(mgr)), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", icsPath)
	}

	rss, err := e.UpcomingRSS(mgr)
	if err != nil {
		return err
	}
	rssPath := filepath.Join(e.dir, mgr.Shop()+".xml")
	if err := os.WriteFile(rssPath, []byte(rss), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", rssPath)
	}
	return nil
}

// Hook adapts the exporter to the sweeper, regenerating every loaded
// shop after each resync pass.
func (e *Exporter) Hook() scheduler.SweepHook {
	return func(_ context.Context, r *scheduler.Registry) {
		for _, shop := range r.Shops() {
			mgr := r.Peek(shop)
			if mgr == nil {
				continue
			}
			if err := e.WriteShop(mgr); err != nil {
				slog.Error("export failed", "shop", shop, "error", err)
			}
		}
	}
}

func (e *Exporter) renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(src), &buf); err != nil {
		slog.Warn("markdown render failed", "error", err)
		return src
	}
	return strings.TrimSpace(buf.String())
}

func (e *Exporter) shopURL(shop string) string {
	return fmt.Sprintf("%s/shops/%s", e.baseURL, shop)
}

func (e *Exporter) scheduleURL(shop, uid string) string {
	return fmt.Sprintf("%s/shops/%s/schedules/%s", e.baseURL, shop, uid)
}

func (e *Exporter) eventURL(key string) string {
	if key == "" {
		return e.baseURL
	}
	return fmt.Sprintf("%s/events/%s", e.baseURL, key)
}

func describeSchedule(s *store.Schedule, entry scheduler.PreviewEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active %s to %s", s.StartTime, s.EndTime)
	if s.Timezone != "" {
		fmt.Fprintf(&b, " (%s)", s.Timezone)
	}
	if !entry.Active {
		b.WriteString(", currently suppressed")
	}
	return b.String()
}

func scheduleCategory(s *store.Schedule) string {
	if len(s.PopupConfig) == 0 {
		return string(s.Type)
	}
	var probe struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(s.PopupConfig, &probe); err != nil || probe.Category == "" {
		return string(s.Type)
	}
	return probe.Category
}

func slugify(name string) string {
	slug := strings.ToLower(name)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}
