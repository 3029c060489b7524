// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/curateworld/venue-scraper/internal/categorize"
	"github.com/curateworld/venue-scraper/internal/domain"
)

// ScanCalendarLinks is the second fallback: "add to calendar" buttons
// embed the whole event (title, dates, details, location) as Google
// Calendar template URL parameters, so events can be reconstructed even
// when the listing markup itself resists parsing.
func ScanCalendarLinks(rawHTML string, venue domain.VenueDescriptor, today time.Time) []domain.Event {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	events := make([]domain.Event, 0, 8)
	doc.Find(`a[href*="calendar.google.com"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if e, ok := eventFromCalendarLink(href, venue); ok {
			events = append(events, e)
		}
	})

	return domain.DedupEvents(domain.FilterUpcoming(events, today))
}

func eventFromCalendarLink(href string, venue domain.VenueDescriptor) (domain.Event, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return domain.Event{}, false
	}
	q := u.Query()
	if !strings.EqualFold(q.Get("action"), "TEMPLATE") {
		return domain.Event{}, false
	}

	title := strings.TrimSpace(q.Get("text"))
	if title == "" {
		return domain.Event{}, false
	}

	start, end, ok := parseTemplateDates(q.Get("dates"))
	if !ok {
		return domain.Event{}, false
	}

	description := strings.TrimSpace(q.Get("details"))
	city := venue.City
	if loc := strings.TrimSpace(q.Get("location")); loc != "" && city == "" {
		city = loc
	}

	return domain.Event{
		Title:       title,
		StartDate:   start,
		EndDate:     end,
		Description: description,
		Category:    categorize.Assign(title+" "+description, venue.Category),
		City:        city,
	}, true
}

// parseTemplateDates decodes the "dates" parameter, shaped
// start/end in either compact datetime or date-only form.
func parseTemplateDates(raw string) (string, string, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	start, ok := parseTemplateStamp(parts[0])
	if !ok {
		return "", "", false
	}

	end := ""
	if len(parts) == 2 {
		if t, ok := parseTemplateStamp(parts[1]); ok {
			end = t
		}
	}
	return start, end, true
}

func parseTemplateStamp(value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(domain.StartDateLayout), true
		}
	}
	return "", false
}
