// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/curateworld/venue-scraper/internal/categorize"
	"github.com/curateworld/venue-scraper/internal/domain"
	"github.com/curateworld/venue-scraper/internal/fetch"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// FromTribe maps The Events Calendar records onto canonical events.
// Unpublished and hidden records are skipped; markup is stripped from
// descriptions.
func FromTribe(records []fetch.TribeRecord, venue domain.VenueDescriptor, today time.Time) []domain.Event {
	events := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		if rec.Status != "" && rec.Status != "publish" {
			continue
		}
		if rec.HideFromListings {
			continue
		}

		title := StripMarkup(rec.Title)
		if title == "" {
			continue
		}

		description := StripMarkup(rec.Description)
		city := rec.Venue.City
		if city == "" {
			city = venue.City
		}

		events = append(events, domain.Event{
			Title:       title,
			StartDate:   tribeDate(rec.StartDate),
			EndDate:     tribeDate(rec.EndDate),
			Description: description,
			Category:    categorize.Assign(title+" "+description, venue.Category),
			Price:       strings.TrimSpace(rec.Cost),
			EventURL:    strings.TrimSpace(rec.URL),
			City:        city,
		})
	}
	return domain.DedupEvents(domain.FilterUpcoming(events, today))
}

// tribeDate converts the plugin's "2006-01-02 15:04:05" timestamps to
// the canonical ISO shape.
func tribeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t.Format(domain.StartDateLayout)
	}
	return raw
}

// StripMarkup removes tags and decodes entities from plugin-supplied
// rich text.
func StripMarkup(raw string) string {
	text := htmlTag.ReplaceAllString(raw, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
