// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/curateworld/venue-scraper/internal/categorize"
	"github.com/curateworld/venue-scraper/internal/domain"
)

// FromICS converts a raw iCalendar feed into canonical events.
// Cancelled and past entries are dropped; all-day DATE ranges are
// end-exclusive on the wire and converted to inclusive; recurring
// series collapse to one occurrence per (title, start day).
func FromICS(feed string, venue domain.VenueDescriptor, today time.Time) ([]domain.Event, error) {
	cal, err := ics.ParseCalendar(strings.NewReader(feed))
	if err != nil {
		return nil, fmt.Errorf("parsing ics feed for %s: %w", venue.Domain, err)
	}

	events := make([]domain.Event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		if strings.EqualFold(propValue(ve, ics.ComponentPropertyStatus), "CANCELLED") {
			continue
		}

		title := decodeICSText(propValue(ve, ics.ComponentPropertySummary))
		if title == "" {
			continue
		}

		start, allDay, ok := parseICSDate(ve.GetProperty(ics.ComponentPropertyDtStart))
		if !ok {
			continue
		}

		end := ""
		if endTime, endAllDay, endOK := parseICSDate(ve.GetProperty(ics.ComponentPropertyDtEnd)); endOK {
			if allDay && endAllDay {
				// DATE-valued DTEND is exclusive per RFC 5545.
				endTime = endTime.AddDate(0, 0, -1)
			}
			if !endTime.Before(start) {
				end = endTime.Format(domain.StartDateLayout)
			}
		}

		description := decodeICSText(propValue(ve, ics.ComponentPropertyDescription))
		eventURL := decodeICSText(propValue(ve, ics.ComponentPropertyUrl))

		events = append(events, domain.Event{
			Title:       title,
			StartDate:   start.Format(domain.StartDateLayout),
			EndDate:     end,
			Description: description,
			Category:    categorize.Assign(title+" "+description, venue.Category),
			EventURL:    eventURL,
			City:        venue.City,
		})
	}

	return domain.DedupEvents(domain.FilterUpcoming(events, today)), nil
}

func propValue(ve *ics.VEvent, name ics.ComponentProperty) string {
	prop := ve.GetProperty(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}

// decodeICSText undoes RFC 5545 text escaping. golang-ical unfolds
// continuation lines but keeps property values escaped.
func decodeICSText(value string) string {
	replacer := strings.NewReplacer(
		`\n`, " ",
		`\N`, " ",
		`\,`, ",",
		`\;`, ";",
		`\\`, `\`,
	)
	return strings.TrimSpace(replacer.Replace(value))
}

// parseICSDate handles the three DTSTART/DTEND shapes seen in venue
// feeds: date-only, floating local datetime and UTC datetime. TZID
// values are treated as wall time; listings only need the local day
// and hour.
func parseICSDate(prop *ics.IANAProperty) (time.Time, bool, bool) {
	if prop == nil {
		return time.Time{}, false, false
	}
	value := strings.TrimSpace(prop.Value)

	allDay := len(value) == 8
	if params, ok := prop.ICalParameters["VALUE"]; ok {
		for _, p := range params {
			if strings.EqualFold(p, "DATE") {
				allDay = true
			}
		}
	}

	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, allDay, true
		}
	}
	return time.Time{}, false, false
}
