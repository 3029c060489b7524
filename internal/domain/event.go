package domain

import (
	"regexp"
	"strings"
	"time"
)

// Event is the canonical shape every extractor converges on.
// Title and StartDate are required; everything else is best-effort.
type Event struct {
	Title       string `json:"title"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Price       string `json:"price,omitempty"`
	EventURL    string `json:"eventUrl,omitempty"`
	City        string `json:"city,omitempty"`
}

// StartDateLayout is the wire format extractors emit for StartDate.
const StartDateLayout = "2006-01-02T15:04:05"

var (
	titleKeyStrip = regexp.MustCompile(`[^a-z0-9\s-]`)
	spaceRun      = regexp.MustCompile(`\s+`)
	dayPrefix     = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	compactDay    = regexp.MustCompile(`^(\d{8})`)
)

// Valid reports whether the event carries the two required fields.
func (e Event) Valid() bool {
	return strings.TrimSpace(e.Title) != "" && strings.TrimSpace(e.StartDate) != ""
}

// Start parses StartDate, tolerating a bare date without a time part.
func (e Event) Start() (time.Time, bool) {
	raw := strings.TrimSpace(e.StartDate)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{StartDateLayout, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// DedupKey identifies one occurrence of an event within a venue:
// normalized title plus the calendar day it starts on.
func (e Event) DedupKey() string {
	return normalizeTitleKey(e.Title) + "::" + normalizeDayKey(e.StartDate)
}

func normalizeTitleKey(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = titleKeyStrip.ReplaceAllString(t, "")
	return strings.TrimSpace(spaceRun.ReplaceAllString(t, " "))
}

func normalizeDayKey(start string) string {
	raw := strings.TrimSpace(start)
	if m := dayPrefix.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := compactDay.FindStringSubmatch(raw); m != nil {
		d := m[1]
		return d[:4] + "-" + d[4:6] + "-" + d[6:8]
	}
	return strings.ToLower(raw)
}

// DedupEvents keeps the first event seen for each dedup key, preserving
// input order otherwise.
func DedupEvents(events []Event) []Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]Event, 0, len(events))
	for _, e := range events {
		key := e.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// FilterUpcoming drops events that start before the given day cutoff.
// Events with an unparseable start date are dropped as well; the cache
// only ever holds dated, future listings.
func FilterUpcoming(events []Event, today time.Time) []Event {
	cutoff := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]Event, 0, len(events))
	for _, e := range events {
		start, ok := e.Start()
		if !ok {
			continue
		}
		if start.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}
